package authz

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	groups      map[string]RoleGroup
	nextGroupID int64
	grants      map[int64]map[string]Grant
	members     map[int64]map[int64]bool
	instances   map[EntityType][]int64
	stale       map[EntityType]map[int64]bool

	addCalls    int
	removeCalls int

	ensureGroupErr map[string]error
	orphanRemoved  int64
}

func newMockStore() *mockStore {
	return &mockStore{
		groups:         make(map[string]RoleGroup),
		nextGroupID:    1,
		grants:         make(map[int64]map[string]Grant),
		members:        make(map[int64]map[int64]bool),
		instances:      make(map[EntityType][]int64),
		stale:          make(map[EntityType]map[int64]bool),
		ensureGroupErr: make(map[string]error),
	}
}

func (m *mockStore) addInstance(entity EntityType, id int64) {
	m.instances[entity] = append(m.instances[entity], id)
	if m.stale[entity] == nil {
		m.stale[entity] = make(map[int64]bool)
	}
	m.stale[entity][id] = true
}

func grantKey(permission string, entity EntityType, resourceID int64) string {
	return fmt.Sprintf("%s|%s|%d", permission, entity, resourceID)
}

func (m *mockStore) EnsureGroup(ctx context.Context, entity EntityType, id int64, role string) (RoleGroup, error) {
	name := GroupName(entity, id, role)
	if err := m.ensureGroupErr[name]; err != nil {
		return RoleGroup{}, err
	}
	if g, ok := m.groups[name]; ok {
		return g, nil
	}
	g := RoleGroup{ID: m.nextGroupID, ResourceType: entity, ResourceID: id, Role: role, Name: name}
	m.nextGroupID++
	m.groups[name] = g
	m.grants[g.ID] = make(map[string]Grant)
	m.members[g.ID] = make(map[int64]bool)
	return g, nil
}

func (m *mockStore) GroupGrants(ctx context.Context, groupID int64) ([]Grant, error) {
	var out []Grant
	for _, g := range m.grants[groupID] {
		out = append(out, g)
	}
	return out, nil
}

func (m *mockStore) AddGroupGrant(ctx context.Context, groupID int64, permission string, entity EntityType, resourceID int64) error {
	m.addCalls++
	if m.grants[groupID] == nil {
		m.grants[groupID] = make(map[string]Grant)
	}
	m.grants[groupID][grantKey(permission, entity, resourceID)] = Grant{
		GroupID:      groupID,
		Permission:   permission,
		ResourceType: entity,
		ResourceID:   resourceID,
	}
	return nil
}

func (m *mockStore) RemoveGroupGrant(ctx context.Context, groupID int64, permission string, entity EntityType, resourceID int64) error {
	m.removeCalls++
	delete(m.grants[groupID], grantKey(permission, entity, resourceID))
	return nil
}

func (m *mockStore) AddMember(ctx context.Context, groupID, userID int64) error {
	if m.members[groupID] == nil {
		m.members[groupID] = make(map[int64]bool)
	}
	m.members[groupID][userID] = true
	return nil
}

func (m *mockStore) RemoveMember(ctx context.Context, groupID, userID int64) error {
	delete(m.members[groupID], userID)
	return nil
}

func (m *mockStore) GroupMembers(ctx context.Context, groupID int64) ([]int64, error) {
	var out []int64
	for id := range m.members[groupID] {
		out = append(out, id)
	}
	return out, nil
}

func (m *mockStore) ListInstanceIDs(ctx context.Context, entity EntityType) ([]int64, error) {
	return m.instances[entity], nil
}

func (m *mockStore) ListStaleInstanceIDs(ctx context.Context, entity EntityType) ([]int64, error) {
	var out []int64
	for _, id := range m.instances[entity] {
		if m.stale[entity][id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *mockStore) SetPermissionsUpToDate(ctx context.Context, entity EntityType, id int64, upToDate bool) error {
	if m.stale[entity] == nil {
		m.stale[entity] = make(map[int64]bool)
	}
	m.stale[entity][id] = !upToDate
	return nil
}

func (m *mockStore) HasPermission(ctx context.Context, userID int64, permission string, entity EntityType, resourceID int64) (bool, error) {
	for _, group := range m.groups {
		if !m.members[group.ID][userID] {
			continue
		}
		if _, ok := m.grants[group.ID][grantKey(permission, entity, resourceID)]; ok {
			return true, nil
		}
		if _, ok := m.grants[group.ID][grantKey(permission, "", 0)]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) DeleteOrphanGrants(ctx context.Context) (int64, error) {
	return m.orphanRemoved, nil
}

func (m *mockStore) grantsFor(entity EntityType, id int64, role string) map[string]bool {
	group, ok := m.groups[GroupName(entity, id, role)]
	if !ok {
		return nil
	}
	out := make(map[string]bool)
	for _, g := range m.grants[group.ID] {
		if g.ResourceType == entity && g.ResourceID == id {
			out[g.Permission] = true
		}
	}
	return out
}

func TestSetupPermissionsMatchesCatalog(t *testing.T) {
	store := newMockStore()
	store.addInstance(EntityOrganization, 7)
	svc := NewService(store, nil, nil)

	require.NoError(t, svc.SetupPermissions(context.Background(), EntityOrganization, 7))

	for _, role := range Roles(EntityOrganization) {
		have := store.grantsFor(EntityOrganization, 7, role)
		want := DefaultPermissions(EntityOrganization, role)
		assert.Len(t, have, len(want), "role %s", role)
		for _, perm := range want {
			assert.True(t, have[perm], "role %s missing %s", role, perm)
		}
	}
	assert.False(t, store.stale[EntityOrganization][7], "instance should be marked up to date")
}

func TestSetupPermissionsIdempotent(t *testing.T) {
	store := newMockStore()
	store.addInstance(EntityProject, 3)
	svc := NewService(store, nil, nil)

	require.NoError(t, svc.SetupPermissions(context.Background(), EntityProject, 3))
	addsAfterFirst := store.addCalls

	require.NoError(t, svc.SetupPermissions(context.Background(), EntityProject, 3))
	assert.Equal(t, addsAfterFirst, store.addCalls, "second run must not add grants")
	assert.Zero(t, store.removeCalls, "second run must not revoke grants")
}

func TestSetupPermissionsRepairsDrift(t *testing.T) {
	store := newMockStore()
	store.addInstance(EntityPeopleGroup, 5)
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.SetupPermissions(ctx, EntityPeopleGroup, 5))

	// Inject drift: an extra grant and a missing one.
	group := store.groups[GroupName(EntityPeopleGroup, 5, RoleMembers)]
	require.NoError(t, store.AddGroupGrant(ctx, group.ID, "peoplegroup.bogus", EntityPeopleGroup, 5))
	require.NoError(t, store.RemoveGroupGrant(ctx, group.ID, PermGroupView, EntityPeopleGroup, 5))

	require.NoError(t, svc.SetupPermissions(ctx, EntityPeopleGroup, 5))
	have := store.grantsFor(EntityPeopleGroup, 5, RoleMembers)
	assert.False(t, have["peoplegroup.bogus"], "extraneous grant must be revoked")
	assert.True(t, have[PermGroupView], "missing grant must be restored")
}

func TestBatchReassignRevokesDroppedPermission(t *testing.T) {
	store := newMockStore()
	store.addInstance(EntityOrganization, 1)
	store.addInstance(EntityOrganization, 2)
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.SetupPermissions(ctx, EntityOrganization, 1))
	require.NoError(t, svc.SetupPermissions(ctx, EntityOrganization, 2))

	// Drop organization.view from the users role everywhere.
	reduced := []RolePermissions{{Role: RoleUsers, Permissions: []string{}}}
	require.NoError(t, svc.BatchReassignPermissions(ctx, EntityOrganization, reduced))

	for _, id := range []int64{1, 2} {
		have := store.grantsFor(EntityOrganization, id, RoleUsers)
		assert.Empty(t, have, "org #%d users role must lose all grants", id)

		admins := store.grantsFor(EntityOrganization, id, RoleAdmins)
		assert.True(t, admins[PermOrgView], "org #%d admins role must be untouched", id)
	}
}

func TestReassignStaleSkipsFailuresAndContinues(t *testing.T) {
	store := newMockStore()
	store.addInstance(EntityOrganization, 1)
	store.addInstance(EntityOrganization, 2)
	store.addInstance(EntityOrganization, 3)
	store.ensureGroupErr[GroupName(EntityOrganization, 2, RoleAdmins)] = errors.New("boom")
	svc := NewService(store, nil, nil)

	done, err := svc.ReassignStale(context.Background(), EntityOrganization)
	require.NoError(t, err)
	assert.Equal(t, 2, done)
	assert.False(t, store.stale[EntityOrganization][1])
	assert.True(t, store.stale[EntityOrganization][2], "failed instance stays stale")
	assert.False(t, store.stale[EntityOrganization][3])
}

func TestReassignStaleConverges(t *testing.T) {
	store := newMockStore()
	store.addInstance(EntityProject, 10)
	store.addInstance(EntityProject, 11)
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	done, err := svc.ReassignStale(ctx, EntityProject)
	require.NoError(t, err)
	assert.Equal(t, 2, done)

	done, err = svc.ReassignStale(ctx, EntityProject)
	require.NoError(t, err)
	assert.Zero(t, done, "nothing stale on the second sweep")
}

func TestSetupGlobalPermissions(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, nil, nil)

	require.NoError(t, svc.SetupGlobalPermissions(context.Background()))

	group, ok := store.groups[GroupName(EntityPlatform, 0, RoleSuperAdmins)]
	require.True(t, ok, "superadmins group must exist")
	for _, perm := range GlobalPermissions() {
		_, found := store.grants[group.ID][grantKey(perm, "", 0)]
		assert.True(t, found, "missing global grant %s", perm)
	}
}

func TestHasPermissionThroughMembership(t *testing.T) {
	store := newMockStore()
	store.addInstance(EntityOrganization, 4)
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.SetupPermissions(ctx, EntityOrganization, 4))
	require.NoError(t, svc.AddMember(ctx, EntityOrganization, 4, RoleUsers, 99))

	allowed, err := svc.HasPermission(ctx, 99, PermOrgView, EntityOrganization, 4)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = svc.HasPermission(ctx, 99, PermOrgDelete, EntityOrganization, 4)
	require.NoError(t, err)
	assert.False(t, allowed, "users role must not hold delete")
}

func TestMembersRoundTrip(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.AddMember(ctx, EntityProject, 8, RoleOwners, 42))
	members, err := svc.Members(ctx, EntityProject, 8, RoleOwners)
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, members)

	require.NoError(t, svc.RemoveMember(ctx, EntityProject, 8, RoleOwners, 42))
	members, err = svc.Members(ctx, EntityProject, 8, RoleOwners)
	require.NoError(t, err)
	assert.Empty(t, members)
}
