package projects

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

// Handler manages project endpoints.
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

type projectRequest struct {
	Title           string  `json:"title" validate:"required,min=1,max=255"`
	Description     string  `json:"description"`
	IsPublic        bool    `json:"is_public"`
	OrganizationIDs []int64 `json:"organization_ids" validate:"min=1"`
}

type memberRequest struct {
	UserID int64  `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required"`
}

type projectResponse struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	IsPublic        bool    `json:"is_public"`
	OrganizationIDs []int64 `json:"organization_ids,omitempty"`
}

// MountRoutes registers project routes.
func (h *Handler) MountRoutes(r chi.Router) {
	scope := authz.ResourceFromURLParam(authz.EntityProject, "projectID")

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAuthenticated())
		r.Get("/", h.list)
		r.Post("/", h.create)
	})
	r.Route("/{projectID}", func(r chi.Router) {
		r.With(h.mw.Require(authz.PermProjectView, scope)).Get("/", h.get)
		r.With(h.mw.Require(authz.PermProjectEdit, scope)).Put("/", h.update)
		r.With(h.mw.Require(authz.PermProjectDelete, scope)).Delete("/", h.delete)
		r.With(h.mw.Require(authz.PermProjectMemberAdd, scope)).Post("/members", h.addMember)
		r.With(h.mw.Require(authz.PermProjectMemberRemove, scope)).Delete("/members", h.removeMember)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list projects", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]projectResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	creatorID, _ := authz.CurrentUserID(r)
	p, err := h.service.Create(r.Context(), Project{
		Title:           req.Title,
		Description:     req.Description,
		IsPublic:        req.IsPublic,
		OrganizationIDs: req.OrganizationIDs,
	}, creatorID)
	if err != nil {
		h.respondServiceError(w, "create project", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.projectID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, "get project", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.projectID(w, r)
	if !ok {
		return
	}
	var req projectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	p, err := h.service.Update(r.Context(), Project{
		ID:              id,
		Title:           req.Title,
		Description:     req.Description,
		IsPublic:        req.IsPublic,
		OrganizationIDs: req.OrganizationIDs,
	})
	if err != nil {
		h.respondServiceError(w, "update project", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.projectID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondServiceError(w, "delete project", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	id, ok := h.projectID(w, r)
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
		h.respondServiceError(w, "add project member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	id, ok := h.projectID(w, r)
	if !ok {
		return
	}
	var req memberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.service.RemoveMember(r.Context(), id, req.Role, req.UserID); err != nil {
		h.respondServiceError(w, "remove project member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) projectID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "project id must be numeric")
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

func toResponse(p Project) projectResponse {
	return projectResponse{
		ID:              p.ID,
		Title:           p.Title,
		Description:     p.Description,
		IsPublic:        p.IsPublic,
		OrganizationIDs: p.OrganizationIDs,
	}
}
