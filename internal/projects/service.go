package projects

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atrium-hq/atrium/internal/authz"
	"github.com/atrium-hq/atrium/internal/shared"
)

// RepositoryPort defines data access methods for projects.
type RepositoryPort interface {
	Create(ctx context.Context, p Project) (Project, error)
	Get(ctx context.Context, id int64) (Project, error)
	List(ctx context.Context) ([]Project, error)
	Update(ctx context.Context, p Project) (Project, error)
	Delete(ctx context.Context, id int64) error
}

// PermissionSetup is the slice of the authz engine the service depends on.
type PermissionSetup interface {
	SetupPermissions(ctx context.Context, entity authz.EntityType, id int64) error
	AddMember(ctx context.Context, entity authz.EntityType, id int64, role string, userID int64) error
	RemoveMember(ctx context.Context, entity authz.EntityType, id int64, role string, userID int64) error
}

// TranslationTracker is the slice of the translation engine the service uses
// to keep staleness rows in step with project writes.
type TranslationTracker interface {
	EnsureTracked(ctx context.Context, contentType string, objectID int64, fields []string) error
	MarkStale(ctx context.Context, contentType string, objectID int64, fields []string) error
	DeleteTracking(ctx context.Context, contentType string, objectID int64) error
}

// Service handles project business logic.
type Service struct {
	repo    RepositoryPort
	perms   PermissionSetup
	tracker TranslationTracker
	logger  *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, perms PermissionSetup, tracker TranslationTracker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, perms: perms, tracker: tracker, logger: logger}
}

// Create validates and persists a new project, provisions its role groups,
// makes the creator an owner, and seeds translation tracking.
func (s *Service) Create(ctx context.Context, p Project, creatorID int64) (Project, error) {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return Project{}, fmt.Errorf("%w: title is required", shared.ErrValidation)
	}
	if len(p.OrganizationIDs) == 0 {
		return Project{}, fmt.Errorf("%w: project needs at least one organization", shared.ErrValidation)
	}

	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return Project{}, err
	}
	if err := s.perms.SetupPermissions(ctx, authz.EntityProject, created.ID); err != nil {
		return Project{}, err
	}
	if creatorID != 0 {
		if err := s.perms.AddMember(ctx, authz.EntityProject, created.ID, authz.RoleOwners, creatorID); err != nil {
			return Project{}, err
		}
	}
	if err := s.tracker.EnsureTracked(ctx, ContentType, created.ID, TranslatableFields); err != nil {
		s.logger.Warn("seed translation tracking", slog.Int64("project", created.ID), slog.Any("error", err))
	}
	created.PermissionsUpToDate = true
	return created, nil
}

// Get fetches one project.
func (s *Service) Get(ctx context.Context, id int64) (Project, error) {
	return s.repo.Get(ctx, id)
}

// List returns all projects.
func (s *Service) List(ctx context.Context) ([]Project, error) {
	return s.repo.List(ctx)
}

// Update persists project changes and flags changed translatable fields
// stale, comparing against the pre-save snapshot.
func (s *Service) Update(ctx context.Context, p Project) (Project, error) {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return Project{}, fmt.Errorf("%w: title is required", shared.ErrValidation)
	}
	before, err := s.repo.Get(ctx, p.ID)
	if err != nil {
		return Project{}, err
	}

	updated, err := s.repo.Update(ctx, p)
	if err != nil {
		return Project{}, err
	}

	var stale []string
	if before.Title != updated.Title {
		stale = append(stale, "title")
	}
	if before.Description != updated.Description {
		stale = append(stale, "description")
	}
	if len(stale) > 0 {
		if err := s.tracker.MarkStale(ctx, ContentType, updated.ID, stale); err != nil {
			s.logger.Warn("mark translations stale", slog.Int64("project", updated.ID), slog.Any("error", err))
		}
	}
	return updated, nil
}

// Delete removes a project and its translation tracking rows.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.tracker.DeleteTracking(ctx, ContentType, id); err != nil {
		s.logger.Warn("delete translation tracking", slog.Int64("project", id), slog.Any("error", err))
	}
	return nil
}

// AddMember places a user into one of the project's role groups.
func (s *Service) AddMember(ctx context.Context, projectID int64, role string, userID int64) error {
	if !validRole(role) {
		return fmt.Errorf("%w: unknown project role %q", shared.ErrValidation, role)
	}
	return s.perms.AddMember(ctx, authz.EntityProject, projectID, role, userID)
}

// RemoveMember removes a user from one of the project's role groups.
func (s *Service) RemoveMember(ctx context.Context, projectID int64, role string, userID int64) error {
	if !validRole(role) {
		return fmt.Errorf("%w: unknown project role %q", shared.ErrValidation, role)
	}
	return s.perms.RemoveMember(ctx, authz.EntityProject, projectID, role, userID)
}

func validRole(role string) bool {
	switch role {
	case authz.RoleOwners, authz.RoleReviewers, authz.RoleMembers:
		return true
	}
	return false
}
