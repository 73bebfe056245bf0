package groups

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atrium-hq/atrium/internal/authz"
	"github.com/atrium-hq/atrium/internal/shared"
)

// RepositoryPort defines data access methods for people groups.
type RepositoryPort interface {
	Create(ctx context.Context, g PeopleGroup) (PeopleGroup, error)
	Get(ctx context.Context, id int64) (PeopleGroup, error)
	GetRoot(ctx context.Context, organizationID int64) (PeopleGroup, error)
	ListByOrganization(ctx context.Context, organizationID int64) ([]PeopleGroup, error)
	Update(ctx context.Context, g PeopleGroup) (PeopleGroup, error)
	Delete(ctx context.Context, id int64) error
}

// PermissionSetup is the slice of the authz engine the service depends on.
type PermissionSetup interface {
	SetupPermissions(ctx context.Context, entity authz.EntityType, id int64) error
	AddMember(ctx context.Context, entity authz.EntityType, id int64, role string, userID int64) error
	RemoveMember(ctx context.Context, entity authz.EntityType, id int64, role string, userID int64) error
}

// Service handles people group business logic and tree invariants.
type Service struct {
	repo   RepositoryPort
	perms  PermissionSetup
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, perms PermissionSetup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, perms: perms, logger: logger}
}

// EnsureRoot returns the organization's root group, creating it when missing.
func (s *Service) EnsureRoot(ctx context.Context, organizationID int64, name string) (int64, error) {
	root, err := s.repo.GetRoot(ctx, organizationID)
	if err == nil {
		return root.ID, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return 0, err
	}
	created, err := s.repo.Create(ctx, PeopleGroup{
		OrganizationID: organizationID,
		Name:           name,
		IsRoot:         true,
	})
	if err != nil {
		// Lost a race with a concurrent creation; the winner's root serves.
		if errors.Is(err, ErrRootExists) {
			root, rootErr := s.repo.GetRoot(ctx, organizationID)
			if rootErr == nil {
				return root.ID, nil
			}
		}
		return 0, err
	}
	if err := s.perms.SetupPermissions(ctx, authz.EntityPeopleGroup, created.ID); err != nil {
		return 0, err
	}
	return created.ID, nil
}

// Create validates and persists a new people group. A group created without a
// parent is attached to the organization's root group.
func (s *Service) Create(ctx context.Context, g PeopleGroup, creatorID int64) (PeopleGroup, error) {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		return PeopleGroup{}, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	g.IsRoot = false

	if g.ParentID == nil {
		root, err := s.repo.GetRoot(ctx, g.OrganizationID)
		if err != nil {
			return PeopleGroup{}, fmt.Errorf("groups: resolve root: %w", err)
		}
		g.ParentID = &root.ID
	} else {
		parent, err := s.repo.Get(ctx, *g.ParentID)
		if err != nil {
			return PeopleGroup{}, err
		}
		if parent.OrganizationID != g.OrganizationID {
			return PeopleGroup{}, ErrCrossOrg
		}
	}

	created, err := s.repo.Create(ctx, g)
	if err != nil {
		return PeopleGroup{}, err
	}
	if err := s.perms.SetupPermissions(ctx, authz.EntityPeopleGroup, created.ID); err != nil {
		return PeopleGroup{}, err
	}
	if creatorID != 0 {
		if err := s.perms.AddMember(ctx, authz.EntityPeopleGroup, created.ID, authz.RoleLeaders, creatorID); err != nil {
			return PeopleGroup{}, err
		}
	}
	created.PermissionsUpToDate = true
	return created, nil
}

// Get fetches one people group.
func (s *Service) Get(ctx context.Context, id int64) (PeopleGroup, error) {
	return s.repo.Get(ctx, id)
}

// ListByOrganization returns the organization's groups.
func (s *Service) ListByOrganization(ctx context.Context, organizationID int64) ([]PeopleGroup, error) {
	return s.repo.ListByOrganization(ctx, organizationID)
}

// SetParent re-parents a group after validating the tree invariants. All
// checks run before any write, so a rejected move leaves the tree untouched.
func (s *Service) SetParent(ctx context.Context, groupID int64, parentID *int64) (PeopleGroup, error) {
	g, err := s.repo.Get(ctx, groupID)
	if err != nil {
		return PeopleGroup{}, err
	}
	if g.IsRoot {
		if parentID != nil {
			return PeopleGroup{}, ErrRootParent
		}
		return g, nil
	}
	if parentID == nil {
		root, err := s.repo.GetRoot(ctx, g.OrganizationID)
		if err != nil {
			return PeopleGroup{}, err
		}
		parentID = &root.ID
	}
	if *parentID == groupID {
		return PeopleGroup{}, ErrSelfParent
	}
	parent, err := s.repo.Get(ctx, *parentID)
	if err != nil {
		return PeopleGroup{}, err
	}
	if parent.OrganizationID != g.OrganizationID {
		return PeopleGroup{}, ErrCrossOrg
	}
	if err := s.checkNoCycle(ctx, groupID, parent); err != nil {
		return PeopleGroup{}, err
	}
	g.ParentID = parentID
	return s.repo.Update(ctx, g)
}

// Rename updates the group's name.
func (s *Service) Rename(ctx context.Context, groupID int64, name string) (PeopleGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return PeopleGroup{}, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	g, err := s.repo.Get(ctx, groupID)
	if err != nil {
		return PeopleGroup{}, err
	}
	g.Name = name
	return s.repo.Update(ctx, g)
}

// Delete removes a non-root group.
func (s *Service) Delete(ctx context.Context, id int64) error {
	g, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if g.IsRoot {
		return ErrRootDelete
	}
	return s.repo.Delete(ctx, id)
}

// AddMember places a user into one of the group's role groups.
func (s *Service) AddMember(ctx context.Context, groupID int64, role string, userID int64) error {
	if !validRole(role) {
		return fmt.Errorf("%w: unknown people group role %q", shared.ErrValidation, role)
	}
	return s.perms.AddMember(ctx, authz.EntityPeopleGroup, groupID, role, userID)
}

// RemoveMember removes a user from one of the group's role groups.
func (s *Service) RemoveMember(ctx context.Context, groupID int64, role string, userID int64) error {
	if !validRole(role) {
		return fmt.Errorf("%w: unknown people group role %q", shared.ErrValidation, role)
	}
	return s.perms.RemoveMember(ctx, authz.EntityPeopleGroup, groupID, role, userID)
}

// checkNoCycle walks from the candidate parent to the root, failing when it
// crosses the group being moved.
func (s *Service) checkNoCycle(ctx context.Context, groupID int64, parent PeopleGroup) error {
	current := parent
	for {
		if current.ID == groupID {
			return ErrCycle
		}
		if current.ParentID == nil {
			return nil
		}
		next, err := s.repo.Get(ctx, *current.ParentID)
		if err != nil {
			return err
		}
		current = next
	}
}

func validRole(role string) bool {
	switch role {
	case authz.RoleLeaders, authz.RoleManagers, authz.RoleMembers:
		return true
	}
	return false
}
