package authz

import (
	"context"
	"fmt"
	"log/slog"
)

// Store defines the persistence operations the engine needs.
type Store interface {
	EnsureGroup(ctx context.Context, entity EntityType, id int64, role string) (RoleGroup, error)
	GroupGrants(ctx context.Context, groupID int64) ([]Grant, error)
	AddGroupGrant(ctx context.Context, groupID int64, permission string, entity EntityType, resourceID int64) error
	RemoveGroupGrant(ctx context.Context, groupID int64, permission string, entity EntityType, resourceID int64) error
	AddMember(ctx context.Context, groupID, userID int64) error
	RemoveMember(ctx context.Context, groupID, userID int64) error
	GroupMembers(ctx context.Context, groupID int64) ([]int64, error)
	ListInstanceIDs(ctx context.Context, entity EntityType) ([]int64, error)
	ListStaleInstanceIDs(ctx context.Context, entity EntityType) ([]int64, error)
	SetPermissionsUpToDate(ctx context.Context, entity EntityType, id int64, upToDate bool) error
	HasPermission(ctx context.Context, userID int64, permission string, entity EntityType, resourceID int64) (bool, error)
	DeleteOrphanGrants(ctx context.Context) (int64, error)
}

// Service reconciles role group grants against the catalog and answers
// authorization checks.
type Service struct {
	store  Store
	cache  *Cache
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(store Store, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, logger: logger}
}

// SetupPermissions converges one instance's role groups on the catalog
// defaults: missing grants are added, extraneous ones revoked, and the
// staleness flag cleared. Calling it on an already-correct instance performs
// no writes beyond the flag update, so it is safe to repeat.
func (s *Service) SetupPermissions(ctx context.Context, entity EntityType, id int64) error {
	for _, role := range Roles(entity) {
		desired := DefaultPermissions(entity, role)
		if err := s.applyRoleGrants(ctx, entity, id, role, desired); err != nil {
			return fmt.Errorf("authz: setup %s #%d role %s: %w", entity, id, role, err)
		}
	}
	if err := s.store.SetPermissionsUpToDate(ctx, entity, id, true); err != nil {
		return fmt.Errorf("authz: mark up to date %s #%d: %w", entity, id, err)
	}
	s.bumpCache(ctx)
	return nil
}

// SetupGlobalPermissions converges the platform superadmins group on the
// global permission set. Grants carry no resource scope.
func (s *Service) SetupGlobalPermissions(ctx context.Context) error {
	group, err := s.store.EnsureGroup(ctx, EntityPlatform, 0, RoleSuperAdmins)
	if err != nil {
		return fmt.Errorf("authz: ensure superadmins group: %w", err)
	}
	current, err := s.store.GroupGrants(ctx, group.ID)
	if err != nil {
		return err
	}
	have := make(map[string]struct{}, len(current))
	for _, g := range current {
		if g.ResourceType == "" {
			have[g.Permission] = struct{}{}
		}
	}
	want := make(map[string]struct{})
	for _, perm := range GlobalPermissions() {
		want[perm] = struct{}{}
		if _, ok := have[perm]; !ok {
			if err := s.store.AddGroupGrant(ctx, group.ID, perm, "", 0); err != nil {
				return err
			}
		}
	}
	for perm := range have {
		if _, ok := want[perm]; !ok {
			if err := s.store.RemoveGroupGrant(ctx, group.ID, perm, "", 0); err != nil {
				return err
			}
		}
	}
	s.bumpCache(ctx)
	return nil
}

// BatchReassignPermissions applies an explicit role→permission override across
// every instance of the entity type. Roles absent from the overrides keep
// their current grants. Permissions dropped from an override are revoked from
// every holder, not merely withheld from new ones.
func (s *Service) BatchReassignPermissions(ctx context.Context, entity EntityType, overrides []RolePermissions) error {
	ids, err := s.store.ListInstanceIDs(ctx, entity)
	if err != nil {
		return fmt.Errorf("authz: list %s instances: %w", entity, err)
	}
	for _, id := range ids {
		for _, override := range overrides {
			if err := s.applyRoleGrants(ctx, entity, id, override.Role, override.Permissions); err != nil {
				return fmt.Errorf("authz: reassign %s #%d role %s: %w", entity, id, override.Role, err)
			}
		}
	}
	s.bumpCache(ctx)
	return nil
}

// ReassignStale runs SetupPermissions on every instance flagged stale.
// Failures on one instance are logged and do not stop the sweep; the instance
// stays flagged and is retried on the next run.
func (s *Service) ReassignStale(ctx context.Context, entity EntityType) (int, error) {
	ids, err := s.store.ListStaleInstanceIDs(ctx, entity)
	if err != nil {
		return 0, fmt.Errorf("authz: list stale %s: %w", entity, err)
	}
	done := 0
	for _, id := range ids {
		if err := s.SetupPermissions(ctx, entity, id); err != nil {
			s.logger.Error("permission reassignment failed",
				slog.String("entity", string(entity)),
				slog.Int64("id", id),
				slog.Any("error", err),
			)
			continue
		}
		done++
	}
	return done, nil
}

// MarkStale flags an instance for the next reassignment sweep.
func (s *Service) MarkStale(ctx context.Context, entity EntityType, id int64) error {
	return s.store.SetPermissionsUpToDate(ctx, entity, id, false)
}

// AddMember puts a user into the named role group of an instance.
func (s *Service) AddMember(ctx context.Context, entity EntityType, id int64, role string, userID int64) error {
	group, err := s.store.EnsureGroup(ctx, entity, id, role)
	if err != nil {
		return err
	}
	if err := s.store.AddMember(ctx, group.ID, userID); err != nil {
		return err
	}
	s.bumpCache(ctx)
	return nil
}

// RemoveMember removes a user from the named role group of an instance.
func (s *Service) RemoveMember(ctx context.Context, entity EntityType, id int64, role string, userID int64) error {
	group, err := s.store.EnsureGroup(ctx, entity, id, role)
	if err != nil {
		return err
	}
	if err := s.store.RemoveMember(ctx, group.ID, userID); err != nil {
		return err
	}
	s.bumpCache(ctx)
	return nil
}

// Members lists the user IDs in the named role group of an instance.
func (s *Service) Members(ctx context.Context, entity EntityType, id int64, role string) ([]int64, error) {
	group, err := s.store.EnsureGroup(ctx, entity, id, role)
	if err != nil {
		return nil, err
	}
	return s.store.GroupMembers(ctx, group.ID)
}

// HasPermission answers an authorization check, consulting the cache first.
func (s *Service) HasPermission(ctx context.Context, userID int64, permission string, entity EntityType, resourceID int64) (bool, error) {
	if allowed, ok := s.cache.GetDecision(ctx, userID, permission, entity, resourceID); ok {
		return allowed, nil
	}
	allowed, err := s.store.HasPermission(ctx, userID, permission, entity, resourceID)
	if err != nil {
		return false, err
	}
	s.cache.SetDecision(ctx, userID, permission, entity, resourceID, allowed)
	return allowed, nil
}

// CleanupOrphanGrants drops grants and groups whose resource was deleted.
func (s *Service) CleanupOrphanGrants(ctx context.Context) (int64, error) {
	removed, err := s.store.DeleteOrphanGrants(ctx)
	if err != nil {
		return removed, err
	}
	if removed > 0 {
		s.bumpCache(ctx)
	}
	return removed, nil
}

// applyRoleGrants diffs the group's grants against the wanted set and applies
// the delta. All grants are scoped to the instance.
func (s *Service) applyRoleGrants(ctx context.Context, entity EntityType, id int64, role string, wanted []string) error {
	group, err := s.store.EnsureGroup(ctx, entity, id, role)
	if err != nil {
		return err
	}
	current, err := s.store.GroupGrants(ctx, group.ID)
	if err != nil {
		return err
	}
	have := make(map[string]struct{}, len(current))
	for _, g := range current {
		if g.ResourceType == entity && g.ResourceID == id {
			have[g.Permission] = struct{}{}
		}
	}
	want := make(map[string]struct{}, len(wanted))
	for _, perm := range wanted {
		want[perm] = struct{}{}
		if _, ok := have[perm]; !ok {
			if err := s.store.AddGroupGrant(ctx, group.ID, perm, entity, id); err != nil {
				return err
			}
		}
	}
	for perm := range have {
		if _, ok := want[perm]; !ok {
			if err := s.store.RemoveGroupGrant(ctx, group.ID, perm, entity, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) bumpCache(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("authz cache bump", slog.Any("error", err))
	}
}
