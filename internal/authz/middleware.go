package authz

import (
	"net/http"
	"strconv"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/atrium-hq/atrium/internal/shared"
)

// ResourceResolver extracts the resource scope for a permission check from the
// request. Returning a zero EntityType means the check is global.
type ResourceResolver func(r *http.Request) (EntityType, int64)

// ResourceFromURLParam resolves the resource ID from a chi URL parameter.
func ResourceFromURLParam(entity EntityType, param string) ResourceResolver {
	return func(r *http.Request) (EntityType, int64) {
		id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
		if err != nil {
			return entity, 0
		}
		return entity, id
	}
}

// GlobalScope resolves every request to the global scope.
func GlobalScope() ResourceResolver {
	return func(*http.Request) (EntityType, int64) { return "", 0 }
}

// Middleware wires authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Require ensures the current user holds the permission for the resource
// resolved from the request.
func (m Middleware) Require(permission string, resolve ResourceResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := m.currentUserID(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			entity, resourceID := resolve(r)
			allowed, err := m.Service.HasPermission(r.Context(), userID, permission, entity, resourceID)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("authz require", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthenticated only checks that a user is logged in.
func (m Middleware) RequireAuthenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := m.currentUserID(r); !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := sess.User()
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("authz parse user id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}

// CurrentUserID exposes the session user for handlers.
func CurrentUserID(r *http.Request) (int64, bool) {
	return Middleware{}.currentUserID(r)
}
