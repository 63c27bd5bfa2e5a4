// Package jobmetrics instruments the background verification and relay jobs.
package jobmetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels of a finished run.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Metrics holds the job collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	findings    *prometheus.CounterVec
	relayed     prometheus.Counter
}

// NewMetrics builds the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgercore_jobs_total",
			Help: "Job runs by task type and outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledgercore_job_duration_seconds",
			Help:    "Wall time of job runs.",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledgercore_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per task type.",
		}, []string{"job"}),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgercore_integrity_findings_total",
			Help: "Mismatches reported by the verification jobs.",
		}, []string{"check", "company"}),
		relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgercore_outbox_relayed_total",
			Help: "Outbox events handed to the broker by the relay job.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.duration, m.lastSuccess, m.findings, m.relayed)
	}
	return m
}

// Tracker times one run.
type Tracker struct {
	m     *Metrics
	job   string
	start time.Time
	now   func() time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{m: m, job: job, start: time.Now(), now: time.Now}
}

// End records the run outcome and passes err through.
func (t *Tracker) End(err error) error {
	if t == nil || t.m == nil {
		return err
	}
	end := t.now()
	t.m.duration.WithLabelValues(t.job).Observe(end.Sub(t.start).Seconds())
	if err != nil {
		t.m.runs.WithLabelValues(t.job, OutcomeFailed).Inc()
		return err
	}
	t.m.runs.WithLabelValues(t.job, OutcomeOK).Inc()
	t.m.lastSuccess.WithLabelValues(t.job).Set(float64(end.Unix()))
	return nil
}

// AddFindings counts mismatches of one check for a company. Zero is a no-op
// so clean companies produce no series.
func (m *Metrics) AddFindings(check string, companyID int64, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.findings.WithLabelValues(check, strconv.FormatInt(companyID, 10)).Add(float64(count))
}

// AddRelayed counts events delivered by the outbox relay.
func (m *Metrics) AddRelayed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.relayed.Add(float64(n))
}
