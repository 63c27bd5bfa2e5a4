package jobs_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/odyssey-erp/ledgercore/internal/accounting/journals"
	"github.com/odyssey-erp/ledgercore/internal/events"
	jobmetrics "github.com/odyssey-erp/ledgercore/internal/jobs"
	"github.com/odyssey-erp/ledgercore/internal/testing/fixture"
	"github.com/odyssey-erp/ledgercore/jobs"
)

func integrityTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := jobs.NewGLIntegrityTask(jobs.IntegrityPayload{AsOf: fixture.Day(31)})
	require.NoError(t, err)
	return task
}

func count(t *testing.T, reg *prometheus.Registry, name string) int {
	t.Helper()
	n, err := testutil.GatherAndCount(reg, name)
	require.NoError(t, err)
	return n
}

func TestGLIntegrityJobReportsFindings(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()
	entry, err := b.Engine.Journals.CreateAndPost(ctx, journals.PostingInput{
		CompanyID: fixture.CompanyID, Date: fixture.Day(2), SourceType: journals.SourceManual, ActorID: fixture.Actor,
		Lines: []journals.PostingLineInput{
			{AccountID: b.AccountID(fixture.Cash), Debit: decimal.NewFromInt(80)},
			{AccountID: b.AccountID(fixture.Capital), Credit: decimal.NewFromInt(80)},
		},
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	core, logs := observer.New(zapcore.InfoLevel)
	job := jobs.NewGLIntegrityJob(b.Engine, []int64{fixture.CompanyID}, zap.New(core), jobmetrics.NewMetrics(reg))

	require.NoError(t, job.Handle(ctx, integrityTask(t)))
	require.Zero(t, logs.FilterMessage("ledger integrity mismatch").Len())
	require.Zero(t, count(t, reg, "ledgercore_integrity_findings_total"))

	b.Store.Journals().Corrupt(fixture.CompanyID, entry.ID, 1, decimal.NewFromInt(81), decimal.Zero)
	require.NoError(t, job.Handle(ctx, integrityTask(t)))

	warned := logs.FilterMessage("ledger integrity mismatch").All()
	require.Len(t, warned, 1)
	require.Equal(t, zapcore.WarnLevel, warned[0].Level)
	require.Equal(t, 1, count(t, reg, "ledgercore_integrity_findings_total"))
	require.Equal(t, 1, count(t, reg, "ledgercore_jobs_total"))
}

func TestGLIntegrityJobDefaultsAsOfToClock(t *testing.T) {
	b := fixture.New(t)
	checker := &recordingChecker{inner: b.Engine}
	job := jobs.NewGLIntegrityJob(checker, []int64{fixture.CompanyID, 2}, nil, nil)
	job.WithClock(func() time.Time { return fixture.Day(20) })

	task, err := jobs.NewGLIntegrityTask(jobs.IntegrityPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []int64{fixture.CompanyID, 2}, checker.companies)
	require.True(t, checker.asOf.Equal(fixture.Day(20)))

	task, err = jobs.NewGLIntegrityTask(jobs.IntegrityPayload{CompanyIDs: []int64{2}})
	require.NoError(t, err)
	checker.companies = nil
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []int64{2}, checker.companies)
}

func TestMalformedPayloadSkipsRetry(t *testing.T) {
	job := jobs.NewGLIntegrityJob(&recordingChecker{}, nil, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(jobs.TaskGLIntegrity, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestStockReplayJobFlagsDrift(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()
	b.Receive(t, b.Main, b.Widget, "10", "3")
	b.Receive(t, b.Annex, b.Gadget, "4", "2.5")

	reg := prometheus.NewRegistry()
	core, logs := observer.New(zapcore.InfoLevel)
	job := jobs.NewStockReplayJob(b.Engine.Stock, []int64{fixture.CompanyID}, zap.New(core), jobmetrics.NewMetrics(reg))
	task, err := jobs.NewStockReplayTask(jobs.StockReplayPayload{})
	require.NoError(t, err)

	require.NoError(t, job.Handle(ctx, task))
	require.Zero(t, logs.FilterMessage("stock balance drift").Len())

	bal := b.Balance(t, b.Main, b.Widget)
	bal.Qty = fixture.D("9")
	require.NoError(t, b.Store.Stock().SaveBalance(ctx, bal))

	require.NoError(t, job.Handle(ctx, task))
	drift := logs.FilterMessage("stock balance drift").All()
	require.Len(t, drift, 1)
	require.Equal(t, b.Widget.ID, drift[0].ContextMap()["item_id"])
	require.Equal(t, 1, count(t, reg, "ledgercore_integrity_findings_total"))
}

type recordingPublisher struct {
	fail    bool
	batches [][]events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, batch []events.Event) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.batches = append(p.batches, batch)
	return nil
}

func pending(evts []events.Event) int {
	n := 0
	for _, evt := range evts {
		if evt.Status == events.StatusPending {
			n++
		}
	}
	return n
}

func TestOutboxRelayJobDrainsInBatches(t *testing.T) {
	b := fixture.New(t)
	ctx := context.Background()
	b.Receive(t, b.Main, b.Widget, "1", "1")
	b.Receive(t, b.Main, b.Widget, "1", "1")
	total := pending(b.Store.Outbox().Events())
	require.Greater(t, total, 2)

	pub := &recordingPublisher{}
	relay := events.NewRelay(b.Store.Outbox(), pub, b.Store, 1, nil)
	job := jobs.NewOutboxRelayJob(relay, nil, nil)

	task, err := jobs.NewOutboxRelayTask(jobs.OutboxRelayPayload{MaxBatches: 2})
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, task))
	require.Len(t, pub.batches, 2)
	require.Equal(t, total-2, pending(b.Store.Outbox().Events()))

	task, err = jobs.NewOutboxRelayTask(jobs.OutboxRelayPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, task))
	require.Len(t, pub.batches, total)
	require.Zero(t, pending(b.Store.Outbox().Events()))
}

func TestOutboxRelayJobStopsOnBrokerFailure(t *testing.T) {
	b := fixture.New(t)
	b.Receive(t, b.Main, b.Widget, "1", "1")
	before := pending(b.Store.Outbox().Events())

	relay := events.NewRelay(b.Store.Outbox(), &recordingPublisher{fail: true}, b.Store, 10, nil)
	task, err := jobs.NewOutboxRelayTask(jobs.OutboxRelayPayload{})
	require.NoError(t, err)
	require.NoError(t, jobs.NewOutboxRelayJob(relay, nil, nil).Handle(context.Background(), task))

	evts := b.Store.Outbox().Events()
	require.Equal(t, before, pending(evts))
	require.Equal(t, 1, evts[0].Attempts)
	require.NotNil(t, evts[0].LastError)
}

func TestHandlerEnqueuesKnownTasks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := jobs.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := chi.NewRouter()
	r.Route("/jobs", jobs.NewHandler(nil, client, nil).MountRoutes)

	req := httptest.NewRequest(http.MethodPost, "/jobs/"+jobs.TaskOutboxRelay, strings.NewReader(`{"max_batches":3}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"queue":"critical"`)

	queued, err := mr.List("asynq:{critical}:pending")
	require.NoError(t, err)
	require.Len(t, queued, 1)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/"+jobs.TaskGLIntegrity, nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/ledger:rebuild", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/"+jobs.TaskStockReplay, strings.NewReader(`{"company_ids":"x"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeInspector map[string]*asynq.QueueInfo

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := f[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestHandlerHealth(t *testing.T) {
	r := chi.NewRouter()
	inspector := fakeInspector{jobs.QueueDefault: {Queue: jobs.QueueDefault, Pending: 4, Retry: 1}}
	r.Route("/jobs", jobs.NewHandler(inspector, nil, nil).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[
		{"queue":"critical","pending":0,"active":0,"failed":0},
		{"queue":"default","pending":4,"active":0,"failed":1}
	]`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/"+jobs.TaskGLIntegrity, nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewWorkerRejectsBadRegistrations(t *testing.T) {
	mr := miniredis.RunT(t)
	opts := asynq.RedisClientOpt{Addr: mr.Addr()}
	noop := func(context.Context, *asynq.Task) error { return nil }
	relayTask, err := jobs.NewOutboxRelayTask(jobs.OutboxRelayPayload{})
	require.NoError(t, err)

	_, err = jobs.NewWorker(jobs.WorkerConfig{RedisOpts: opts, Handlers: []jobs.TaskHandler{
		{Type: jobs.TaskOutboxRelay, Handler: noop},
		{Type: jobs.TaskOutboxRelay, Handler: noop},
	}})
	require.ErrorContains(t, err, "registered twice")

	_, err = jobs.NewWorker(jobs.WorkerConfig{RedisOpts: opts, Cron: []jobs.CronRegistration{
		{Spec: "@every 30s", Task: relayTask},
	}})
	require.ErrorContains(t, err, "no registered handler")

	w, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: opts,
		Handlers:  []jobs.TaskHandler{{Type: jobs.TaskOutboxRelay, Handler: noop}},
		Cron:      []jobs.CronRegistration{{Spec: "", Task: relayTask}},
	})
	require.NoError(t, err)
	require.NotNil(t, w)
}
