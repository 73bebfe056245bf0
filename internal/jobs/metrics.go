package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs         *prometheus.CounterVec
	failures     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	translations *prometheus.CounterVec
	reassigned   *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When
// the registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration and success/failure counts,
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddTranslatedFields counts fields brought up to date by a sweep.
func (m *Metrics) AddTranslatedFields(contentType string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.translations.WithLabelValues(contentType).Add(float64(count))
}

// AddReassignedInstances counts entity instances whose grants were rebuilt.
func (m *Metrics) AddReassignedInstances(entity string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.reassigned.WithLabelValues(entity).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atrium_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	translations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_translated_fields_total",
		Help: "Fields brought up to date by translation sweeps, by content type.",
	}, []string{"content_type"})
	reassigned := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atrium_permission_reassigned_total",
		Help: "Entity instances whose permission grants were rebuilt.",
	}, []string{"entity"})
	registerer.MustRegister(runs, failures, duration, translations, reassigned)
	return &Metrics{runs: runs, failures: failures, duration: duration, translations: translations, reassigned: reassigned}
}
