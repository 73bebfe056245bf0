package groups

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atrium-hq/atrium/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const groupColumns = `id, organization_id, parent_id, name, is_root, permissions_up_to_date, created_at, updated_at`

// Create inserts a new people group. The partial unique index on
// (organization_id) WHERE is_root enforces the single-root invariant at the
// database level.
func (r *Repository) Create(ctx context.Context, g PeopleGroup) (PeopleGroup, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO people_groups (organization_id, parent_id, name, is_root)
		VALUES ($1, $2, $3, $4)
		RETURNING `+groupColumns,
		g.OrganizationID, g.ParentID, g.Name, g.IsRoot)
	created, err := scanGroup(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return PeopleGroup{}, ErrRootExists
		}
		return PeopleGroup{}, err
	}
	return created, nil
}

// Get fetches a people group by ID.
func (r *Repository) Get(ctx context.Context, id int64) (PeopleGroup, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM people_groups WHERE id = $1`, id)
	g, err := scanGroup(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PeopleGroup{}, shared.ErrNotFound
	}
	return g, err
}

// GetRoot fetches the organization's root group.
func (r *Repository) GetRoot(ctx context.Context, organizationID int64) (PeopleGroup, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+groupColumns+` FROM people_groups WHERE organization_id = $1 AND is_root`, organizationID)
	g, err := scanGroup(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PeopleGroup{}, shared.ErrNotFound
	}
	return g, err
}

// ListByOrganization returns the organization's groups ordered by ID.
func (r *Repository) ListByOrganization(ctx context.Context, organizationID int64) ([]PeopleGroup, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+groupColumns+` FROM people_groups WHERE organization_id = $1 ORDER BY id`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PeopleGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Update persists mutable fields of a people group.
func (r *Repository) Update(ctx context.Context, g PeopleGroup) (PeopleGroup, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE people_groups
		SET name = $2, parent_id = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+groupColumns,
		g.ID, g.Name, g.ParentID)
	updated, err := scanGroup(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PeopleGroup{}, shared.ErrNotFound
	}
	return updated, err
}

// Delete removes a people group.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM people_groups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (PeopleGroup, error) {
	var g PeopleGroup
	err := row.Scan(&g.ID, &g.OrganizationID, &g.ParentID, &g.Name, &g.IsRoot,
		&g.PermissionsUpToDate, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}
