package groups

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atrium-hq/atrium/internal/authz"
	"github.com/atrium-hq/atrium/internal/platform/httpx"
	"github.com/atrium-hq/atrium/internal/shared"
)

// Handler manages people group endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	mw       authz.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw authz.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		mw:       mw,
	}
}

type createGroupRequest struct {
	OrganizationID int64  `json:"organization_id" validate:"required"`
	ParentID       *int64 `json:"parent_id"`
	Name           string `json:"name" validate:"required,min=1,max=255"`
}

type setParentRequest struct {
	ParentID *int64 `json:"parent_id"`
}

type memberRequest struct {
	UserID int64  `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required"`
}

type groupResponse struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organization_id"`
	ParentID       *int64 `json:"parent_id,omitempty"`
	Name           string `json:"name"`
	IsRoot         bool   `json:"is_root"`
}

// MountRoutes registers people group routes.
func (h *Handler) MountRoutes(r chi.Router) {
	scope := authz.ResourceFromURLParam(authz.EntityPeopleGroup, "groupID")

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAuthenticated())
		r.Post("/", h.create)
	})
	r.Route("/{groupID}", func(r chi.Router) {
		r.With(h.mw.Require(authz.PermGroupView, scope)).Get("/", h.get)
		r.With(h.mw.Require(authz.PermGroupEdit, scope)).Put("/parent", h.setParent)
		r.With(h.mw.Require(authz.PermGroupEdit, scope)).Put("/name", h.rename)
		r.With(h.mw.Require(authz.PermGroupDelete, scope)).Delete("/", h.delete)
		r.With(h.mw.Require(authz.PermGroupMemberAdd, scope)).Post("/members", h.addMember)
		r.With(h.mw.Require(authz.PermGroupMemberRemove, scope)).Delete("/members", h.removeMember)
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	creatorID, _ := authz.CurrentUserID(r)
	g, err := h.service.Create(r.Context(), PeopleGroup{
		OrganizationID: req.OrganizationID,
		ParentID:       req.ParentID,
		Name:           req.Name,
	}, creatorID)
	if err != nil {
		h.respondServiceError(w, "create people group", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(g))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.groupID(w, r)
	if !ok {
		return
	}
	g, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, "get people group", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(g))
}

func (h *Handler) setParent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.groupID(w, r)
	if !ok {
		return
	}
	var req setParentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	g, err := h.service.SetParent(r.Context(), id, req.ParentID)
	if err != nil {
		h.respondServiceError(w, "set group parent", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(g))
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	id, ok := h.groupID(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	g, err := h.service.Rename(r.Context(), id, req.Name)
	if err != nil {
		h.respondServiceError(w, "rename people group", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(g))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.groupID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondServiceError(w, "delete people group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	id, ok := h.groupID(w, r)
	if !ok {
		return
	}
	var req memberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AddMember(r.Context(), id, req.Role, req.UserID); err != nil {
		h.respondServiceError(w, "add group member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	id, ok := h.groupID(w, r)
	if !ok {
		return
	}
	var req memberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.service.RemoveMember(r.Context(), id, req.Role, req.UserID); err != nil {
		h.respondServiceError(w, "remove group member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) groupID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "group id must be numeric")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toResponse(g PeopleGroup) groupResponse {
	return groupResponse{
		ID:             g.ID,
		OrganizationID: g.OrganizationID,
		ParentID:       g.ParentID,
		Name:           g.Name,
		IsRoot:         g.IsRoot,
	}
}
