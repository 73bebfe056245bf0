package authz

import (
	"fmt"
	"time"
)

// EntityType identifies the kind of resource a grant or role group is scoped to.
type EntityType string

const (
	// EntityOrganization scopes groups and grants to an organization.
	EntityOrganization EntityType = "organization"
	// EntityProject scopes groups and grants to a project.
	EntityProject EntityType = "project"
	// EntityPeopleGroup scopes groups and grants to a people group.
	EntityPeopleGroup EntityType = "peoplegroup"
	// EntityPlatform scopes the platform-wide superadmin group. Grants held by
	// it carry no resource and apply everywhere.
	EntityPlatform EntityType = "platform"
)

// RoleGroup is a named permission-bearing group tied to one resource instance.
type RoleGroup struct {
	ID           int64
	ResourceType EntityType
	ResourceID   int64
	Role         string
	Name         string
	CreatedAt    time.Time
}

// Grant attaches a permission to a group or directly to a user. A grant with
// an empty ResourceType is global.
type Grant struct {
	ID           int64
	GroupID      int64
	UserID       int64
	Permission   string
	ResourceType EntityType
	ResourceID   int64
}

// RolePermissions pairs a role with an explicit permission set. Used by
// BatchReassignPermissions to override the catalog defaults.
type RolePermissions struct {
	Role        string
	Permissions []string
}

// GroupName derives the unique name of a role group from its scope.
func GroupName(entity EntityType, id int64, role string) string {
	return fmt.Sprintf("%s:#%d:%s", entity, id, role)
}
