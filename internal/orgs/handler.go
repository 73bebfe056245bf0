package orgs

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

// Handler manages organization endpoints.
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

type organizationRequest struct {
	Code          string   `json:"code" validate:"required,min=2,max=64"`
	Name          string   `json:"name" validate:"required,min=2,max=255"`
	ParentID      *int64   `json:"parent_id"`
	Languages     []string `json:"languages" validate:"dive,min=2,max=16"`
	AutoTranslate bool     `json:"auto_translate"`
}

type memberRequest struct {
	UserID int64  `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required"`
}

type organizationResponse struct {
	ID            int64    `json:"id"`
	Code          string   `json:"code"`
	Name          string   `json:"name"`
	ParentID      *int64   `json:"parent_id,omitempty"`
	Languages     []string `json:"languages"`
	AutoTranslate bool     `json:"auto_translate"`
}

// MountRoutes registers organization routes.
func (h *Handler) MountRoutes(r chi.Router) {
	scope := authz.ResourceFromURLParam(authz.EntityOrganization, "orgID")

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAuthenticated())
		r.Get("/", h.list)
		r.Post("/", h.create)
	})
	r.Route("/{orgID}", func(r chi.Router) {
		r.With(h.mw.Require(authz.PermOrgView, scope)).Get("/", h.get)
		r.With(h.mw.Require(authz.PermOrgEdit, scope)).Put("/", h.update)
		r.With(h.mw.Require(authz.PermOrgDelete, scope)).Delete("/", h.delete)
		r.With(h.mw.Require(authz.PermOrgMemberAdd, scope)).Post("/members", h.addMember)
		r.With(h.mw.Require(authz.PermOrgMemberRemove, scope)).Delete("/members", h.removeMember)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list organizations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]organizationResponse, 0, len(list))
	for _, org := range list {
		out = append(out, toResponse(org))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req organizationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	creatorID, _ := authz.CurrentUserID(r)
	org, err := h.service.Create(r.Context(), Organization{
		Code:          req.Code,
		Name:          req.Name,
		ParentID:      req.ParentID,
		Languages:     req.Languages,
		AutoTranslate: req.AutoTranslate,
	}, creatorID)
	if err != nil {
		h.respondServiceError(w, "create organization", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(org))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orgID(w, r)
	if !ok {
		return
	}
	org, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, "get organization", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(org))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orgID(w, r)
	if !ok {
		return
	}
	var req organizationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	org, err := h.service.Update(r.Context(), Organization{
		ID:            id,
		Name:          req.Name,
		ParentID:      req.ParentID,
		Languages:     req.Languages,
		AutoTranslate: req.AutoTranslate,
	})
	if err != nil {
		h.respondServiceError(w, "update organization", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(org))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orgID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondServiceError(w, "delete organization", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orgID(w, r)
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
		h.respondServiceError(w, "add organization member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orgID(w, r)
	if !ok {
		return
	}
	var req memberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.service.RemoveMember(r.Context(), id, req.Role, req.UserID); err != nil {
		h.respondServiceError(w, "remove organization member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) orgID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orgID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "organization id must be numeric")
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

func toResponse(org Organization) organizationResponse {
	return organizationResponse{
		ID:            org.ID,
		Code:          org.Code,
		Name:          org.Name,
		ParentID:      org.ParentID,
		Languages:     org.Languages,
		AutoTranslate: org.AutoTranslate,
	}
}
