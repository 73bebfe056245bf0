package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/atrium-hq/atrium/internal/authz"
)

// Reassigner is the slice of the authz engine the permissions command uses.
type Reassigner interface {
	BatchReassignPermissions(ctx context.Context, entity authz.EntityType, overrides []authz.RolePermissions) error
}

// PermissionsCLI applies role permission overrides across every instance of
// an entity type. This is the operator lever for catalog changes: edit the
// catalog, then reassign the affected entity types in bulk.
type PermissionsCLI struct {
	service Reassigner
}

// NewPermissionsCLI initialises the CLI helper.
func NewPermissionsCLI(service Reassigner) *PermissionsCLI {
	return &PermissionsCLI{service: service}
}

// Reassign parses "role=perm1,perm2" arguments and applies them to every
// instance of the entity type. An empty permission list ("role=") revokes the
// role's permissions everywhere.
func (c *PermissionsCLI) Reassign(ctx context.Context, entityArg string, roleArgs []string, out io.Writer) error {
	if c == nil || c.service == nil {
		return errors.New("permissions cli: service not configured")
	}
	entity, err := parseEntityType(entityArg)
	if err != nil {
		return err
	}
	overrides, err := parseRoleOverrides(roleArgs)
	if err != nil {
		return err
	}
	if len(overrides) == 0 {
		return errors.New("permissions cli: at least one role=perm,... argument is required")
	}
	if err := c.service.BatchReassignPermissions(ctx, entity, overrides); err != nil {
		return err
	}
	for _, o := range overrides {
		if _, err := fmt.Fprintf(out, "%s %s -> [%s]\n", entity, o.Role, strings.Join(o.Permissions, ", ")); err != nil {
			return err
		}
	}
	return nil
}

func parseEntityType(arg string) (authz.EntityType, error) {
	for _, entity := range authz.KnownEntityTypes() {
		if string(entity) == arg {
			return entity, nil
		}
	}
	return "", fmt.Errorf("permissions cli: unknown entity type %q", arg)
}

func parseRoleOverrides(args []string) ([]authz.RolePermissions, error) {
	overrides := make([]authz.RolePermissions, 0, len(args))
	for _, arg := range args {
		role, rawPerms, ok := strings.Cut(arg, "=")
		role = strings.TrimSpace(role)
		if !ok || role == "" {
			return nil, fmt.Errorf("permissions cli: expected role=perm1,perm2, got %q", arg)
		}
		var perms []string
		for _, p := range strings.Split(rawPerms, ",") {
			if p = strings.TrimSpace(p); p != "" {
				perms = append(perms, p)
			}
		}
		overrides = append(overrides, authz.RolePermissions{Role: role, Permissions: perms})
	}
	return overrides, nil
}
