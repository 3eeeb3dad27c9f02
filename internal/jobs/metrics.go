package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs and the
// installment engine.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	reminders   *prometheus.CounterVec
	passErrors  *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
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

// End finalises the tracker, recording duration, success/failure counts and
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

// ObserveTransition counts an installment state change into phase.
func (m *Metrics) ObserveTransition(phase string) {
	if m == nil || phase == "" {
		return
	}
	m.transitions.WithLabelValues(phase).Inc()
}

// ObserveReminder counts a reminder outcome (fired, delivery_failed, ...).
func (m *Metrics) ObserveReminder(kind, result string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(kind, result).Inc()
}

// ObservePassError counts per-record errors accumulated by a scheduling pass.
func (m *Metrics) ObservePassError(stage, reason string) {
	if m == nil {
		return
	}
	m.passErrors.WithLabelValues(stage, reason).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "installments_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "installments_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "installments_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "installments_transitions_total",
		Help: "Installment state transitions grouped by target phase.",
	}, []string{"to"})
	reminders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "installments_reminders_total",
		Help: "Reminder evaluations that reached delivery, by kind and result.",
	}, []string{"kind", "result"})
	passErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "installments_pass_record_errors_total",
		Help: "Per-record errors collected by scheduling passes.",
	}, []string{"stage", "reason"})
	registerer.MustRegister(runs, failures, duration, transitions, reminders, passErrors)
	return &Metrics{
		runs:        runs,
		failures:    failures,
		duration:    duration,
		transitions: transitions,
		reminders:   reminders,
		passErrors:  passErrors,
	}
}
