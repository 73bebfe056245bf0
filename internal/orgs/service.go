package orgs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/language"

	"github.com/atrium-hq/atrium/internal/authz"
	"github.com/atrium-hq/atrium/internal/shared"
)

// RepositoryPort defines data access methods for organizations.
type RepositoryPort interface {
	Create(ctx context.Context, org Organization) (Organization, error)
	Get(ctx context.Context, id int64) (Organization, error)
	List(ctx context.Context) ([]Organization, error)
	Update(ctx context.Context, org Organization) (Organization, error)
	Delete(ctx context.Context, id int64) error
}

// PermissionSetup is the slice of the authz engine the service depends on.
type PermissionSetup interface {
	SetupPermissions(ctx context.Context, entity authz.EntityType, id int64) error
	MarkStale(ctx context.Context, entity authz.EntityType, id int64) error
	AddMember(ctx context.Context, entity authz.EntityType, id int64, role string, userID int64) error
	RemoveMember(ctx context.Context, entity authz.EntityType, id int64, role string, userID int64) error
}

// RootGroupCreator provisions the organization's root people group.
type RootGroupCreator interface {
	EnsureRoot(ctx context.Context, organizationID int64, name string) (int64, error)
}

// Service handles organization business logic.
type Service struct {
	repo   RepositoryPort
	perms  PermissionSetup
	roots  RootGroupCreator
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, perms PermissionSetup, roots RootGroupCreator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, perms: perms, roots: roots, logger: logger}
}

// Create validates and persists a new organization, provisions its root people
// group and its role groups, and makes the creator an admin.
func (s *Service) Create(ctx context.Context, org Organization, creatorID int64) (Organization, error) {
	org.Code = strings.TrimSpace(org.Code)
	org.Name = strings.TrimSpace(org.Name)
	if org.Code == "" || org.Name == "" {
		return Organization{}, fmt.Errorf("%w: code and name are required", shared.ErrValidation)
	}
	langs, err := NormalizeLanguages(org.Languages)
	if err != nil {
		return Organization{}, err
	}
	org.Languages = langs

	created, err := s.repo.Create(ctx, org)
	if err != nil {
		return Organization{}, err
	}

	if _, err := s.roots.EnsureRoot(ctx, created.ID, created.Name); err != nil {
		return Organization{}, fmt.Errorf("orgs: ensure root group: %w", err)
	}
	if err := s.perms.SetupPermissions(ctx, authz.EntityOrganization, created.ID); err != nil {
		return Organization{}, err
	}
	if creatorID != 0 {
		if err := s.perms.AddMember(ctx, authz.EntityOrganization, created.ID, authz.RoleAdmins, creatorID); err != nil {
			return Organization{}, err
		}
	}
	created.PermissionsUpToDate = true
	return created, nil
}

// Get fetches one organization.
func (s *Service) Get(ctx context.Context, id int64) (Organization, error) {
	return s.repo.Get(ctx, id)
}

// List returns all organizations.
func (s *Service) List(ctx context.Context) ([]Organization, error) {
	return s.repo.List(ctx)
}

// Update persists organization changes.
func (s *Service) Update(ctx context.Context, org Organization) (Organization, error) {
	org.Name = strings.TrimSpace(org.Name)
	if org.Name == "" {
		return Organization{}, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	langs, err := NormalizeLanguages(org.Languages)
	if err != nil {
		return Organization{}, err
	}
	org.Languages = langs
	return s.repo.Update(ctx, org)
}

// Delete removes an organization. Grants left behind are collected by the
// orphan cleanup task.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// AddMember places a user into one of the organization's role groups.
func (s *Service) AddMember(ctx context.Context, orgID int64, role string, userID int64) error {
	if !validRole(role) {
		return fmt.Errorf("%w: unknown organization role %q", shared.ErrValidation, role)
	}
	return s.perms.AddMember(ctx, authz.EntityOrganization, orgID, role, userID)
}

// RemoveMember removes a user from one of the organization's role groups.
func (s *Service) RemoveMember(ctx context.Context, orgID int64, role string, userID int64) error {
	if !validRole(role) {
		return fmt.Errorf("%w: unknown organization role %q", shared.ErrValidation, role)
	}
	return s.perms.RemoveMember(ctx, authz.EntityOrganization, orgID, role, userID)
}

// NormalizeLanguages parses and canonicalizes BCP47 language codes.
func NormalizeLanguages(codes []string) ([]string, error) {
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid language %q", shared.ErrValidation, code)
		}
		base, _ := tag.Base()
		normalized := base.String()
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out, nil
}

func validRole(role string) bool {
	switch role {
	case authz.RoleAdmins, authz.RoleFacilitators, authz.RoleUsers:
		return true
	}
	return false
}
