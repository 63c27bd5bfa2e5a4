package jobmetrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	ok := m.Track("ledger:gl_integrity")
	ok.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	require.NoError(t, ok.End(nil))

	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("ledger:gl_integrity").End(boom), boom)

	expected := `
# HELP ledgercore_jobs_total Job runs by task type and outcome.
# TYPE ledgercore_jobs_total counter
ledgercore_jobs_total{job="ledger:gl_integrity",outcome="failed"} 1
ledgercore_jobs_total{job="ledger:gl_integrity",outcome="ok"} 1
# HELP ledgercore_job_last_success_timestamp_seconds Unix time of the last successful run per task type.
# TYPE ledgercore_job_last_success_timestamp_seconds gauge
ledgercore_job_last_success_timestamp_seconds{job="ledger:gl_integrity"} 1.7e+09
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"ledgercore_jobs_total", "ledgercore_job_last_success_timestamp_seconds"))
}

func TestFindingsSkipCleanCompanies(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.AddFindings("stock_drift", 1, 0)
	m.AddFindings("stock_drift", 2, 3)
	m.AddRelayed(0)
	m.AddRelayed(4)

	n, err := testutil.GatherAndCount(reg, "ledgercore_integrity_findings_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, float64(4), testutil.ToFloat64(m.relayed))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AddFindings("ledger_drift", 1, 2)
	m.AddRelayed(1)
	require.NoError(t, m.Track("x").End(nil))
}
