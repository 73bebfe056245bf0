package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// StorePort defines persistence operations used by the deploy engine.
type StorePort interface {
	List(ctx context.Context) ([]Process, error)
	Get(ctx context.Context, name string) (Process, error)
	EnsureRegistered(ctx context.Context, name string, priority int) error
	DeleteExcept(ctx context.Context, names []string) error
	MarkPending(ctx context.Context, name, taskID string) error
	RecordResult(ctx context.Context, name, status, version, errText string, ranAt time.Time) error
}

// Enqueuer hands a task run off to the background worker.
type Enqueuer interface {
	EnqueueDeployTask(ctx context.Context, name string) (string, error)
}

// Migrator applies pending schema migrations.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Service runs the post-deploy maintenance sweep.
type Service struct {
	store    StorePort
	registry *Registry
	enqueuer Enqueuer
	migrator Migrator
	logger   *slog.Logger
	version  string
	inline   bool
	clock    func() time.Time
}

// Options configures the deploy service.
type Options struct {
	Store    StorePort
	Registry *Registry
	Enqueuer Enqueuer
	Migrator Migrator
	Logger   *slog.Logger
	Version  string
	Inline   bool
}

// NewService constructs the deploy service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    opts.Store,
		registry: opts.Registry,
		enqueuer: opts.Enqueuer,
		migrator: opts.Migrator,
		logger:   logger,
		version:  opts.Version,
		inline:   opts.Inline,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// Deploy reconciles the task table against the registry and runs every task
// that is due. A schema-not-ready error triggers one forced migration and a
// single retry before the error propagates.
func (s *Service) Deploy(ctx context.Context) error {
	err := s.sweep(ctx)
	if err == nil || !isUndefinedTable(err) || s.migrator == nil {
		return err
	}
	s.logger.Warn("deploy tables missing, forcing migration", slog.Any("error", err))
	if merr := s.migrator.Migrate(ctx); merr != nil {
		return fmt.Errorf("forced migration: %w", merr)
	}
	return s.sweep(ctx)
}

func (s *Service) sweep(ctx context.Context) error {
	tasks := s.registry.Tasks()
	for _, t := range tasks {
		if err := s.store.EnsureRegistered(ctx, t.Name, t.Priority); err != nil {
			return err
		}
	}
	if err := s.store.DeleteExcept(ctx, s.registry.Names()); err != nil {
		return err
	}

	rows, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]Process, len(rows))
	for _, p := range rows {
		byName[p.TaskName] = p
	}

	now := s.clock()
	for _, t := range tasks {
		p, ok := byName[t.Name]
		if !ok {
			continue
		}
		if !s.due(p, t, now) {
			continue
		}
		if s.inline {
			s.runInline(ctx, t)
			continue
		}
		// PENDING lands before the enqueue so a worker that finishes fast can
		// never have its result overwritten by this sweep.
		if err := s.store.MarkPending(ctx, t.Name, uuid.NewString()); err != nil {
			return err
		}
		brokerID, err := s.enqueuer.EnqueueDeployTask(ctx, t.Name)
		if err != nil {
			s.logger.Error("enqueue deploy task",
				slog.String("task", t.Name),
				slog.Any("error", err),
			)
			if rerr := s.store.RecordResult(ctx, t.Name, StatusFailure, s.version, err.Error(), now); rerr != nil {
				return rerr
			}
			continue
		}
		s.logger.Debug("deploy task queued", slog.String("task", t.Name), slog.String("broker_id", brokerID))
	}
	return nil
}

// due reports whether the task should run in this sweep. A failed last run
// always reruns; otherwise the cooldown must have elapsed and the version must
// have changed since the last run. A PENDING row is skipped only while fresh:
// once it has sat queued longer than the task's cooldown the queued message is
// presumed lost and the task runs again.
func (s *Service) due(p Process, t Task, now time.Time) bool {
	if p.Status == StatusFailure {
		return true
	}
	if p.Status == StatusPending {
		return now.Sub(p.UpdatedAt) >= t.Cooldown
	}
	if p.LastRun == nil {
		return true
	}
	cooledDown := now.Sub(*p.LastRun) >= t.Cooldown
	return cooledDown && p.LastRunVersion != s.version
}

func (s *Service) runInline(ctx context.Context, t Task) {
	if err := s.store.MarkPending(ctx, t.Name, ""); err != nil {
		s.logger.Error("mark pending", slog.String("task", t.Name), slog.Any("error", err))
	}
	s.execute(ctx, t)
}

// RunTask executes a single registered task and records the outcome. The
// background worker calls this for queued runs.
func (s *Service) RunTask(ctx context.Context, name string) error {
	t, ok := s.registry.Find(name)
	if !ok {
		return fmt.Errorf("deploy: unknown task %q", name)
	}
	return s.execute(ctx, t)
}

// execute runs the task, catching the error into the process row so one
// failing task never aborts the sweep.
func (s *Service) execute(ctx context.Context, t Task) error {
	started := s.clock()
	logger := s.logger.With(slog.String("task", t.Name))
	logger.Info("running post-deploy task")

	runErr := t.Run(ctx)
	status := StatusSuccess
	errText := ""
	if runErr != nil {
		status = StatusFailure
		errText = runErr.Error()
		logger.Error("post-deploy task failed", slog.Any("error", runErr))
	} else {
		logger.Info("post-deploy task completed", slog.Duration("duration", s.clock().Sub(started)))
	}
	if err := s.store.RecordResult(ctx, t.Name, status, s.version, errText, started); err != nil {
		logger.Error("record task result", slog.Any("error", err))
		return err
	}
	return runErr
}

// Processes returns the current process table for operator inspection.
func (s *Service) Processes(ctx context.Context) ([]Process, error) {
	return s.store.List(ctx)
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
