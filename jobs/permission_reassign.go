package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atrium-hq/atrium/internal/authz"
	jobmetrics "github.com/atrium-hq/atrium/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// PermissionReassignJob rebuilds grants for every stale entity instance.
type PermissionReassignJob struct {
	Authz   *authz.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPermissionReassignJob initialises the reassignment handler.
func NewPermissionReassignJob(svc *authz.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *PermissionReassignJob {
	return &PermissionReassignJob{
		Authz:   svc,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the reassignment sweep.
func (j *PermissionReassignJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Authz == nil {
		return errors.New("permission reassign: handler not configured")
	}
	var payload PermissionReassignPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	entities := payload.Entities
	if len(entities) == 0 {
		for _, e := range authz.KnownEntityTypes() {
			entities = append(entities, string(e))
		}
	}

	start := j.now()
	tracker := j.metrics().Track(TaskPermissionReassign)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting permission reassignment", slog.Any("entities", entities))

	total := 0
	for _, entity := range entities {
		count, err := j.Authz.ReassignStale(ctx, authz.EntityType(entity))
		if err != nil {
			resultErr = err
			logger.Error("reassign failed", slog.String("entity", entity), slog.Any("error", err))
			return resultErr
		}
		j.metrics().AddReassignedInstances(entity, count)
		total += count
	}

	logger.Info("completed permission reassignment",
		slog.Int("instances", total),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return resultErr
}

func (j *PermissionReassignJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPermissionReassign))
	}
	return slog.Default().With(slog.String("job", TaskPermissionReassign))
}

func (j *PermissionReassignJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PermissionReassignJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
