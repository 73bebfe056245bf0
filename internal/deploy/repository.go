package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atrium-hq/atrium/internal/shared"
)

// Repository provides PostgreSQL backed persistence for deploy processes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const processColumns = `task_name, priority, status, last_run, last_run_version, task_id, last_error, created_at, updated_at`

// List returns every process row ordered by ascending priority.
func (r *Repository) List(ctx context.Context) ([]Process, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+processColumns+` FROM post_deploy_processes ORDER BY priority, task_name`)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	defer rows.Close()

	var out []Process
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("scan process: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get fetches one process by task name.
func (r *Repository) Get(ctx context.Context, name string) (Process, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+processColumns+` FROM post_deploy_processes WHERE task_name = $1`, name)
	p, err := scanProcess(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Process{}, shared.ErrNotFound
		}
		return Process{}, fmt.Errorf("get process: %w", err)
	}
	return p, nil
}

// EnsureRegistered inserts a row for a task if missing and keeps the stored
// priority in line with the registry. updated_at is touched only when the
// priority actually changes: PENDING staleness is measured from updated_at,
// so an every-sweep bump would keep a lost run looking fresh forever.
func (r *Repository) EnsureRegistered(ctx context.Context, name string, priority int) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO post_deploy_processes (task_name, priority)
		VALUES ($1, $2)
		ON CONFLICT (task_name) DO UPDATE SET priority = EXCLUDED.priority, updated_at = now()
		WHERE post_deploy_processes.priority IS DISTINCT FROM EXCLUDED.priority`,
		name, priority,
	)
	if err != nil {
		return fmt.Errorf("register process %s: %w", name, err)
	}
	return nil
}

// DeleteExcept removes rows whose task name is no longer registered.
func (r *Repository) DeleteExcept(ctx context.Context, names []string) error {
	if len(names) == 0 {
		if _, err := r.pool.Exec(ctx, `DELETE FROM post_deploy_processes`); err != nil {
			return fmt.Errorf("prune processes: %w", err)
		}
		return nil
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM post_deploy_processes WHERE task_name <> ALL($1)`, names); err != nil {
		return fmt.Errorf("prune processes: %w", err)
	}
	return nil
}

// MarkPending records that a run has been started or queued.
func (r *Repository) MarkPending(ctx context.Context, name, taskID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE post_deploy_processes
		SET status = $2, task_id = $3, updated_at = now()
		WHERE task_name = $1`,
		name, StatusPending, taskID,
	)
	if err != nil {
		return fmt.Errorf("mark pending %s: %w", name, err)
	}
	return nil
}

// RecordResult stores the outcome of a run.
func (r *Repository) RecordResult(ctx context.Context, name, status, version, errText string, ranAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE post_deploy_processes
		SET status = $2, last_run = $3, last_run_version = $4, last_error = $5, updated_at = now()
		WHERE task_name = $1`,
		name, status, ranAt.UTC(), version, errText,
	)
	if err != nil {
		return fmt.Errorf("record result %s: %w", name, err)
	}
	return nil
}

func scanProcess(row pgx.Row) (Process, error) {
	var p Process
	err := row.Scan(&p.TaskName, &p.Priority, &p.Status, &p.LastRun, &p.LastRunVersion, &p.TaskID, &p.LastError, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
