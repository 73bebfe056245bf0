package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atrium-hq/atrium/internal/deploy"
	jobmetrics "github.com/atrium-hq/atrium/internal/jobs"
)

// DeployRunJob executes one post-deploy task queued by the deploy sweep. The
// outcome is recorded on the process row by the deploy service.
type DeployRunJob struct {
	Deploy  *deploy.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewDeployRunJob initialises the deploy run handler.
func NewDeployRunJob(svc *deploy.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *DeployRunJob {
	return &DeployRunJob{
		Deploy:  svc,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the named post-deploy task.
func (j *DeployRunJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Deploy == nil {
		return errors.New("deploy run: handler not configured")
	}
	var payload DeployRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Name == "" {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskDeployRun)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("task", payload.Name))
	logger.Info("running queued post-deploy task")

	if err := j.Deploy.RunTask(ctx, payload.Name); err != nil {
		// Already recorded as FAILURE; the next deploy sweep retries it.
		resultErr = err
		logger.Error("post-deploy task failed", slog.Any("error", err))
		return asynq.SkipRetry
	}

	logger.Info("queued post-deploy task completed", slog.Duration("duration", j.now().Sub(start)))
	return resultErr
}

func (j *DeployRunJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDeployRun))
	}
	return slog.Default().With(slog.String("job", TaskDeployRun))
}

func (j *DeployRunJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DeployRunJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
