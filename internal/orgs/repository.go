package orgs

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

const orgColumns = `id, code, name, parent_id, languages, auto_translate, permissions_up_to_date, created_at, updated_at`

// Create inserts a new organization. The permissions flag starts stale so the
// next sweep provisions its role groups even if inline setup is skipped.
func (r *Repository) Create(ctx context.Context, org Organization) (Organization, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO organizations (code, name, parent_id, languages, auto_translate)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+orgColumns,
		org.Code, org.Name, org.ParentID, org.Languages, org.AutoTranslate)
	created, err := scanOrg(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Organization{}, shared.ErrValidation
		}
		return Organization{}, err
	}
	return created, nil
}

// Get fetches an organization by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Organization, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id)
	org, err := scanOrg(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Organization{}, shared.ErrNotFound
	}
	return org, err
}

// List returns all organizations ordered by ID.
func (r *Repository) List(ctx context.Context) ([]Organization, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orgColumns+` FROM organizations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Organization
	for rows.Next() {
		org, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

// Update persists mutable fields of an organization.
func (r *Repository) Update(ctx context.Context, org Organization) (Organization, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE organizations
		SET name = $2, parent_id = $3, languages = $4, auto_translate = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+orgColumns,
		org.ID, org.Name, org.ParentID, org.Languages, org.AutoTranslate)
	updated, err := scanOrg(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Organization{}, shared.ErrNotFound
	}
	return updated, err
}

// Delete removes an organization.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
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

func scanOrg(row rowScanner) (Organization, error) {
	var org Organization
	err := row.Scan(&org.ID, &org.Code, &org.Name, &org.ParentID, &org.Languages,
		&org.AutoTranslate, &org.PermissionsUpToDate, &org.CreatedAt, &org.UpdatedAt)
	return org, err
}
