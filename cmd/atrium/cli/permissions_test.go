package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atrium-hq/atrium/internal/authz"
)

type fakeReassigner struct {
	entity    authz.EntityType
	overrides []authz.RolePermissions
	calls     int
}

func (f *fakeReassigner) BatchReassignPermissions(_ context.Context, entity authz.EntityType, overrides []authz.RolePermissions) error {
	f.calls++
	f.entity = entity
	f.overrides = overrides
	return nil
}

func TestPermissionsReassign(t *testing.T) {
	fake := &fakeReassigner{}
	cli := NewPermissionsCLI(fake)
	var out bytes.Buffer

	err := cli.Reassign(context.Background(), "organization",
		[]string{"users=organization.view", "facilitators=organization.view,organization.project.new"}, &out)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, authz.EntityOrganization, fake.entity)
	require.Len(t, fake.overrides, 2)
	assert.Equal(t, authz.RolePermissions{Role: "users", Permissions: []string{"organization.view"}}, fake.overrides[0])
	assert.Equal(t, []string{"organization.view", "organization.project.new"}, fake.overrides[1].Permissions)
	assert.Contains(t, out.String(), "organization users -> [organization.view]")
}

func TestPermissionsReassignEmptySetRevokes(t *testing.T) {
	fake := &fakeReassigner{}
	cli := NewPermissionsCLI(fake)
	var out bytes.Buffer

	err := cli.Reassign(context.Background(), "project", []string{"members="}, &out)
	require.NoError(t, err)
	require.Len(t, fake.overrides, 1)
	assert.Equal(t, "members", fake.overrides[0].Role)
	assert.Empty(t, fake.overrides[0].Permissions)
}

func TestPermissionsReassignRejectsBadInput(t *testing.T) {
	fake := &fakeReassigner{}
	cli := NewPermissionsCLI(fake)
	var out bytes.Buffer

	err := cli.Reassign(context.Background(), "warehouse", []string{"users=x"}, &out)
	assert.ErrorContains(t, err, "unknown entity type")

	err = cli.Reassign(context.Background(), "organization", []string{"no-equals-sign"}, &out)
	assert.ErrorContains(t, err, "expected role=")

	err = cli.Reassign(context.Background(), "organization", nil, &out)
	assert.ErrorContains(t, err, "at least one role")
	assert.Zero(t, fake.calls)
}
