package authz

// Role labels shared across entity types.
const (
	RoleAdmins       = "admins"
	RoleFacilitators = "facilitators"
	RoleUsers        = "users"

	RoleOwners    = "owners"
	RoleReviewers = "reviewers"
	RoleMembers   = "members"

	RoleLeaders  = "leaders"
	RoleManagers = "managers"

	RoleSuperAdmins = "superadmins"
)

// Permission codenames. The catalog below is the single source of truth for
// which role holds which permission by default; changing it and running
// BatchReassignPermissions is how the granted sets evolve.
const (
	PermOrgView         = "organization.view"
	PermOrgEdit         = "organization.edit"
	PermOrgDelete       = "organization.delete"
	PermOrgMemberAdd    = "organization.member.add"
	PermOrgMemberRemove = "organization.member.remove"
	PermOrgProjectNew   = "organization.project.create"
	PermOrgGroupNew     = "organization.peoplegroup.create"

	PermProjectView         = "project.view"
	PermProjectEdit         = "project.edit"
	PermProjectDelete       = "project.delete"
	PermProjectReview       = "project.review"
	PermProjectMemberAdd    = "project.member.add"
	PermProjectMemberRemove = "project.member.remove"

	PermGroupView         = "peoplegroup.view"
	PermGroupEdit         = "peoplegroup.edit"
	PermGroupDelete       = "peoplegroup.delete"
	PermGroupMemberAdd    = "peoplegroup.member.add"
	PermGroupMemberRemove = "peoplegroup.member.remove"
)

var catalog = map[EntityType]map[string][]string{
	EntityOrganization: {
		RoleAdmins: {
			PermOrgView, PermOrgEdit, PermOrgDelete,
			PermOrgMemberAdd, PermOrgMemberRemove,
			PermOrgProjectNew, PermOrgGroupNew,
		},
		RoleFacilitators: {
			PermOrgView, PermOrgProjectNew, PermOrgGroupNew,
		},
		RoleUsers: {
			PermOrgView,
		},
	},
	EntityProject: {
		RoleOwners: {
			PermProjectView, PermProjectEdit, PermProjectDelete,
			PermProjectReview, PermProjectMemberAdd, PermProjectMemberRemove,
		},
		RoleReviewers: {
			PermProjectView, PermProjectReview,
		},
		RoleMembers: {
			PermProjectView, PermProjectEdit,
		},
	},
	EntityPeopleGroup: {
		RoleLeaders: {
			PermGroupView, PermGroupEdit, PermGroupDelete,
			PermGroupMemberAdd, PermGroupMemberRemove,
		},
		RoleManagers: {
			PermGroupView, PermGroupEdit, PermGroupMemberAdd,
		},
		RoleMembers: {
			PermGroupView,
		},
	},
}

// globalPermissions are held by the platform superadmins group without any
// resource scope.
var globalPermissions = []string{
	PermOrgView, PermOrgEdit, PermOrgDelete,
	PermProjectView, PermProjectEdit, PermProjectDelete,
	PermGroupView, PermGroupEdit, PermGroupDelete,
}

// Roles lists the role labels defined for an entity type.
func Roles(entity EntityType) []string {
	roles := make([]string, 0, len(catalog[entity]))
	for role := range catalog[entity] {
		roles = append(roles, role)
	}
	return roles
}

// DefaultPermissions returns the catalog permission set for the role. The
// result is a copy; mutating it does not alter the catalog.
func DefaultPermissions(entity EntityType, role string) []string {
	perms := catalog[entity][role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// GlobalPermissions returns the superadmin-wide permission set.
func GlobalPermissions() []string {
	out := make([]string, len(globalPermissions))
	copy(out, globalPermissions)
	return out
}

// KnownEntityTypes lists the entity types carrying per-instance role groups.
func KnownEntityTypes() []EntityType {
	return []EntityType{EntityOrganization, EntityProject, EntityPeopleGroup}
}
