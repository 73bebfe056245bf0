package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atrium-hq/atrium/internal/authz"
	jobmetrics "github.com/atrium-hq/atrium/internal/jobs"
)

// OrphanCleanupJob prunes grants and role groups pointing at deleted rows.
type OrphanCleanupJob struct {
	Authz   *authz.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewOrphanCleanupJob initialises the cleanup handler.
func NewOrphanCleanupJob(svc *authz.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *OrphanCleanupJob {
	return &OrphanCleanupJob{
		Authz:   svc,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the orphan cleanup.
func (j *OrphanCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Authz == nil {
		return errors.New("orphan cleanup: handler not configured")
	}

	start := j.now()
	tracker := j.metrics().Track(TaskOrphanCleanup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting orphan grant cleanup")

	removed, err := j.Authz.CleanupOrphanGrants(ctx)
	if err != nil {
		resultErr = err
		logger.Error("orphan cleanup failed", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed orphan grant cleanup",
		slog.Int64("removed", removed),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return resultErr
}

func (j *OrphanCleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskOrphanCleanup))
	}
	return slog.Default().With(slog.String("job", TaskOrphanCleanup))
}

func (j *OrphanCleanupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *OrphanCleanupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
