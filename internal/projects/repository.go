package projects

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atrium-hq/atrium/internal/platform/db"
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

const projectColumns = `id, title, description, is_public, permissions_up_to_date, created_at, updated_at`

// Create inserts a project and its organization links in one transaction.
func (r *Repository) Create(ctx context.Context, p Project) (Project, error) {
	var created Project
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO projects (title, description, is_public)
			VALUES ($1, $2, $3)
			RETURNING `+projectColumns,
			p.Title, p.Description, p.IsPublic)
		var err error
		created, err = scanProject(row)
		if err != nil {
			return err
		}
		for _, orgID := range p.OrganizationIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO project_organizations (project_id, organization_id)
				VALUES ($1, $2) ON CONFLICT DO NOTHING`, created.ID, orgID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Project{}, err
	}
	created.OrganizationIDs = p.OrganizationIDs
	return created, nil
}

// Get fetches a project with its organization links.
func (r *Repository) Get(ctx context.Context, id int64) (Project, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, shared.ErrNotFound
	}
	if err != nil {
		return Project{}, err
	}
	p.OrganizationIDs, err = r.organizationIDs(ctx, id)
	return p, err
}

// List returns all projects ordered by ID. Organization links are not loaded.
func (r *Repository) List(ctx context.Context) ([]Project, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update persists mutable fields and replaces the organization links.
func (r *Repository) Update(ctx context.Context, p Project) (Project, error) {
	var updated Project
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE projects
			SET title = $2, description = $3, is_public = $4, updated_at = now()
			WHERE id = $1
			RETURNING `+projectColumns,
			p.ID, p.Title, p.Description, p.IsPublic)
		var err error
		updated, err = scanProject(row)
		if err != nil {
			return err
		}
		if p.OrganizationIDs != nil {
			if _, err := tx.Exec(ctx,
				`DELETE FROM project_organizations WHERE project_id = $1`, p.ID); err != nil {
				return err
			}
			for _, orgID := range p.OrganizationIDs {
				if _, err := tx.Exec(ctx, `
					INSERT INTO project_organizations (project_id, organization_id)
					VALUES ($1, $2) ON CONFLICT DO NOTHING`, p.ID, orgID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, shared.ErrNotFound
	}
	if err != nil {
		return Project{}, err
	}
	updated.OrganizationIDs, err = r.organizationIDs(ctx, p.ID)
	return updated, err
}

// Delete removes a project.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *Repository) organizationIDs(ctx context.Context, projectID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT organization_id FROM project_organizations
		WHERE project_id = $1 ORDER BY organization_id`, projectID)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.IsPublic,
		&p.PermissionsUpToDate, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
