package orgs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atrium-hq/atrium/internal/authz"
	"github.com/atrium-hq/atrium/internal/shared"
)

type mockRepo struct {
	nextID int64
	orgs   map[int64]Organization
}

func newMockRepo() *mockRepo {
	return &mockRepo{orgs: make(map[int64]Organization)}
}

func (m *mockRepo) Create(_ context.Context, org Organization) (Organization, error) {
	m.nextID++
	org.ID = m.nextID
	m.orgs[org.ID] = org
	return org, nil
}

func (m *mockRepo) Get(_ context.Context, id int64) (Organization, error) {
	org, ok := m.orgs[id]
	if !ok {
		return Organization{}, shared.ErrNotFound
	}
	return org, nil
}

func (m *mockRepo) List(context.Context) ([]Organization, error) {
	out := make([]Organization, 0, len(m.orgs))
	for _, org := range m.orgs {
		out = append(out, org)
	}
	return out, nil
}

func (m *mockRepo) Update(_ context.Context, org Organization) (Organization, error) {
	if _, ok := m.orgs[org.ID]; !ok {
		return Organization{}, shared.ErrNotFound
	}
	m.orgs[org.ID] = org
	return org, nil
}

func (m *mockRepo) Delete(_ context.Context, id int64) error {
	delete(m.orgs, id)
	return nil
}

type memberCall struct {
	entity authz.EntityType
	id     int64
	role   string
	userID int64
}

type mockPerms struct {
	setup []int64
	added []memberCall
}

func (m *mockPerms) SetupPermissions(_ context.Context, _ authz.EntityType, id int64) error {
	m.setup = append(m.setup, id)
	return nil
}

func (m *mockPerms) MarkStale(context.Context, authz.EntityType, int64) error { return nil }

func (m *mockPerms) AddMember(_ context.Context, entity authz.EntityType, id int64, role string, userID int64) error {
	m.added = append(m.added, memberCall{entity: entity, id: id, role: role, userID: userID})
	return nil
}

func (m *mockPerms) RemoveMember(context.Context, authz.EntityType, int64, string, int64) error {
	return nil
}

type mockRoots struct {
	created []int64
}

func (m *mockRoots) EnsureRoot(_ context.Context, organizationID int64, _ string) (int64, error) {
	m.created = append(m.created, organizationID)
	return 100 + organizationID, nil
}

func TestCreateProvisionsRootGroupAndRoles(t *testing.T) {
	repo := newMockRepo()
	perms := &mockPerms{}
	roots := &mockRoots{}
	svc := NewService(repo, perms, roots, nil)

	org, err := svc.Create(context.Background(), Organization{Code: "ACME", Name: "Acme"}, 7)
	require.NoError(t, err)

	assert.Equal(t, []int64{org.ID}, roots.created)
	assert.Equal(t, []int64{org.ID}, perms.setup)
	require.Len(t, perms.added, 1)
	assert.Equal(t, memberCall{entity: authz.EntityOrganization, id: org.ID, role: authz.RoleAdmins, userID: 7}, perms.added[0])
	assert.True(t, org.PermissionsUpToDate)
}

func TestCreateRequiresCodeAndName(t *testing.T) {
	svc := NewService(newMockRepo(), &mockPerms{}, &mockRoots{}, nil)

	_, err := svc.Create(context.Background(), Organization{Code: " ", Name: "Acme"}, 0)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), Organization{Code: "ACME"}, 0)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateWithoutCreatorSkipsMembership(t *testing.T) {
	perms := &mockPerms{}
	svc := NewService(newMockRepo(), perms, &mockRoots{}, nil)

	_, err := svc.Create(context.Background(), Organization{Code: "ACME", Name: "Acme"}, 0)
	require.NoError(t, err)
	assert.Empty(t, perms.added)
}

func TestAddMemberRejectsUnknownRole(t *testing.T) {
	svc := NewService(newMockRepo(), &mockPerms{}, &mockRoots{}, nil)

	err := svc.AddMember(context.Background(), 1, "owners", 7)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestNormalizeLanguages(t *testing.T) {
	langs, err := NormalizeLanguages([]string{" FR ", "de-DE", "fr", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"fr", "de"}, langs, "canonical base tags, deduplicated, order kept")
}

func TestNormalizeLanguagesRejectsGarbage(t *testing.T) {
	_, err := NormalizeLanguages([]string{"not a language!"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}
