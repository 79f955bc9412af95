// Package jobmetrics holds the Prometheus collectors of the background worker.
// A nil *Metrics records nothing.
package jobmetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Integrity check names used as the "check" label.
const (
	CheckTrialBalance = "trial_balance"
	CheckStock        = "stock"
)

// Metrics groups the worker collectors.
type Metrics struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	drift     *prometheus.CounterVec
	lastClean *prometheus.GaugeVec
}

// NewMetrics registers the worker collectors on registerer. A nil registerer
// yields nil metrics.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		return nil
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_total",
			Help: "Job runs by task type and outcome (ok, failed).",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_job_duration_seconds",
			Help:    "Wall time of one job run.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		drift: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_ledger_integrity_drift_total",
			Help: "Unbalanced periods and stock rows whose on-hand differs from their movements.",
		}, []string{"check", "unit"}),
		lastClean: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "odyssey_ledger_integrity_last_clean_timestamp_seconds",
			Help: "Unix time of the last integrity run that found no drift in a unit.",
		}, []string{"unit"}),
	}
	registerer.MustRegister(m.runs, m.duration, m.drift, m.lastClean)
	return m
}

// Run measures one job execution.
type Run struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts measuring a run of job.
func (m *Metrics) Track(job string) *Run {
	return &Run{metrics: m, job: job, start: time.Now()}
}

// End records the outcome of the run and returns err unchanged.
func (r *Run) End(err error) error {
	if r == nil || r.metrics == nil {
		return err
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	r.metrics.runs.WithLabelValues(r.job, outcome).Inc()
	r.metrics.duration.WithLabelValues(r.job).Observe(time.Since(r.start).Seconds())
	return err
}

// AddDrift counts findings of one check in a unit. Zero counts are ignored.
func (m *Metrics) AddDrift(check string, unitID int64, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.drift.WithLabelValues(check, unitLabel(unitID)).Add(float64(count))
}

// MarkClean stamps the time a unit last passed every check.
func (m *Metrics) MarkClean(unitID int64, at time.Time) {
	if m == nil {
		return
	}
	m.lastClean.WithLabelValues(unitLabel(unitID)).Set(float64(at.Unix()))
}

func unitLabel(unitID int64) string {
	return strconv.FormatInt(unitID, 10)
}
