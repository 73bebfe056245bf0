package authz

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for groups and grants.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// entityTables maps entity types to the table carrying permissions_up_to_date.
var entityTables = map[EntityType]string{
	EntityOrganization: "organizations",
	EntityProject:      "projects",
	EntityPeopleGroup:  "people_groups",
}

func tableFor(entity EntityType) (string, error) {
	table, ok := entityTables[entity]
	if !ok {
		return "", fmt.Errorf("authz: unknown entity type %q", entity)
	}
	return table, nil
}

// EnsureGroup upserts the role group for (entity, id, role) and returns it.
func (r *Repository) EnsureGroup(ctx context.Context, entity EntityType, id int64, role string) (RoleGroup, error) {
	var g RoleGroup
	err := r.pool.QueryRow(ctx, `
		INSERT INTO role_groups (resource_type, resource_id, role, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (resource_type, resource_id, role) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, resource_type, resource_id, role, name, created_at`,
		string(entity), id, role, GroupName(entity, id, role),
	).Scan(&g.ID, &g.ResourceType, &g.ResourceID, &g.Role, &g.Name, &g.CreatedAt)
	if err != nil {
		return RoleGroup{}, fmt.Errorf("authz: ensure group: %w", err)
	}
	return g, nil
}

// GroupGrants lists the grants currently held by a group.
func (r *Repository) GroupGrants(ctx context.Context, groupID int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, group_id, permission, COALESCE(resource_type, ''), COALESCE(resource_id, 0)
		FROM permission_grants WHERE group_id = $1`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var g Grant
		var rt string
		if err := rows.Scan(&g.ID, &g.GroupID, &g.Permission, &rt, &g.ResourceID); err != nil {
			return nil, err
		}
		g.ResourceType = EntityType(rt)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// AddGroupGrant attaches a permission to a group. Passing an empty entity
// records a global grant. Already-present grants are left untouched.
func (r *Repository) AddGroupGrant(ctx context.Context, groupID int64, permission string, entity EntityType, resourceID int64) error {
	var err error
	if entity == "" {
		_, err = r.pool.Exec(ctx, `
			INSERT INTO permission_grants (group_id, permission)
			VALUES ($1, $2) ON CONFLICT DO NOTHING`, groupID, permission)
	} else {
		_, err = r.pool.Exec(ctx, `
			INSERT INTO permission_grants (group_id, permission, resource_type, resource_id)
			VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
			groupID, permission, string(entity), resourceID)
	}
	return err
}

// RemoveGroupGrant revokes a permission from a group.
func (r *Repository) RemoveGroupGrant(ctx context.Context, groupID int64, permission string, entity EntityType, resourceID int64) error {
	if entity == "" {
		_, err := r.pool.Exec(ctx, `
			DELETE FROM permission_grants
			WHERE group_id = $1 AND permission = $2 AND resource_type IS NULL`, groupID, permission)
		return err
	}
	_, err := r.pool.Exec(ctx, `
		DELETE FROM permission_grants
		WHERE group_id = $1 AND permission = $2 AND resource_type = $3 AND resource_id = $4`,
		groupID, permission, string(entity), resourceID)
	return err
}

// AddMember inserts a user into a role group.
func (r *Repository) AddMember(ctx context.Context, groupID, userID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_group_members (group_id, user_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`, groupID, userID)
	return err
}

// RemoveMember removes a user from a role group.
func (r *Repository) RemoveMember(ctx context.Context, groupID, userID int64) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM role_group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	return err
}

// GroupMembers lists the user IDs belonging to a group.
func (r *Repository) GroupMembers(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM role_group_members WHERE group_id = $1 ORDER BY user_id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListInstanceIDs returns every instance ID of the entity type.
func (r *Repository) ListInstanceIDs(ctx context.Context, entity EntityType) ([]int64, error) {
	table, err := tableFor(entity)
	if err != nil {
		return nil, err
	}
	return r.scanIDs(ctx, `SELECT id FROM `+table+` ORDER BY id`)
}

// ListStaleInstanceIDs returns instances whose grants may diverge from the catalog.
func (r *Repository) ListStaleInstanceIDs(ctx context.Context, entity EntityType) ([]int64, error) {
	table, err := tableFor(entity)
	if err != nil {
		return nil, err
	}
	return r.scanIDs(ctx, `SELECT id FROM `+table+` WHERE NOT permissions_up_to_date ORDER BY id`)
}

// SetPermissionsUpToDate flips the staleness flag on an instance.
func (r *Repository) SetPermissionsUpToDate(ctx context.Context, entity EntityType, id int64, upToDate bool) error {
	table, err := tableFor(entity)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE `+table+` SET permissions_up_to_date = $1, updated_at = now() WHERE id = $2`,
		upToDate, id)
	return err
}

// HasPermission reports whether the user holds the permission for the resource,
// via superuser status, a direct grant, or membership in a granted group.
// Global grants (no resource) match any resource.
func (r *Repository) HasPermission(ctx context.Context, userID int64, permission string, entity EntityType, resourceID int64) (bool, error) {
	var allowed bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM users u WHERE u.id = $1 AND u.is_superuser AND u.is_active
		) OR EXISTS (
			SELECT 1 FROM permission_grants g
			WHERE g.permission = $2
			  AND (g.resource_type IS NULL OR (g.resource_type = $3 AND g.resource_id = $4))
			  AND (g.user_id = $1 OR g.group_id IN (
				SELECT group_id FROM role_group_members WHERE user_id = $1))
		)`, userID, permission, string(entity), resourceID).Scan(&allowed)
	if err != nil {
		return false, err
	}
	return allowed, nil
}

// DeleteOrphanGrants removes grants and role groups whose resource row no
// longer exists. Returns the number of rows removed.
func (r *Repository) DeleteOrphanGrants(ctx context.Context) (int64, error) {
	var total int64
	for entity, table := range entityTables {
		tag, err := r.pool.Exec(ctx, `
			DELETE FROM permission_grants
			WHERE resource_type = $1 AND resource_id NOT IN (SELECT id FROM `+table+`)`,
			string(entity))
		if err != nil {
			return total, err
		}
		total += tag.RowsAffected()

		tag, err = r.pool.Exec(ctx, `
			DELETE FROM role_groups
			WHERE resource_type = $1 AND resource_id NOT IN (SELECT id FROM `+table+`)`,
			string(entity))
		if err != nil {
			return total, err
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func (r *Repository) scanIDs(ctx context.Context, query string) ([]int64, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
