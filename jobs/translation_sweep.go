package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/atrium-hq/atrium/internal/jobs"
	"github.com/atrium-hq/atrium/internal/translate"
)

// TranslationSweepJob retranslates every stale tracked field.
type TranslationSweepJob struct {
	Translate *translate.Service
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewTranslationSweepJob initialises the translation sweep handler.
func NewTranslationSweepJob(svc *translate.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *TranslationSweepJob {
	return &TranslationSweepJob{
		Translate: svc,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the translation sweep.
func (j *TranslationSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Translate == nil {
		return errors.New("translation sweep: handler not configured")
	}

	start := j.now()
	tracker := j.metrics().Track(TaskTranslationSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting translation sweep")

	done, err := j.Translate.Sweep(ctx)
	if err != nil {
		resultErr = err
		logger.Error("translation sweep failed", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddTranslatedFields("all", done)

	logger.Info("completed translation sweep",
		slog.Int("fields", done),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return resultErr
}

func (j *TranslationSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTranslationSweep))
	}
	return slog.Default().With(slog.String("job", TaskTranslationSweep))
}

func (j *TranslationSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *TranslationSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
