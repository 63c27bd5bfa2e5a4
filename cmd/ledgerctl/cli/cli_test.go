package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/ledgercore/internal/accounting/reports"
	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/testing/fixture"
	"github.com/odyssey-erp/ledgercore/jobs"
)

func TestReportsCLIText(t *testing.T) {
	b := fixture.New(t)
	b.Receive(t, b.Main, b.Widget, "3", "12.5")
	var buf bytes.Buffer
	c := NewReportsCLI(b.Engine, reports.NewRenderer(language.English), &buf)
	ctx := context.Background()

	require.NoError(t, c.BalanceSheet(ctx, fixture.CompanyID, fixture.Day(31)))
	require.Contains(t, buf.String(), "1200 Inventory")
	require.Contains(t, buf.String(), "37.50")

	buf.Reset()
	require.NoError(t, c.StockLedger(ctx, inventory.LedgerQuery{CompanyID: fixture.CompanyID, ItemID: b.Widget.ID}))
	require.Contains(t, buf.String(), "2026-01-01")
	require.Contains(t, buf.String(), "ON HAND")

	err := c.IncomeStatement(ctx, fixture.CompanyID, fixture.Day(31), fixture.Day(1))
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 400")
}

func TestReportsCLIJSONEnvelope(t *testing.T) {
	b := fixture.New(t)
	var buf bytes.Buffer
	c := NewReportsCLI(b.Engine, nil, &buf)

	require.NoError(t, c.TrialBalance(context.Background(), fixture.CompanyID, fixture.Day(1), fixture.Day(31)))
	var env struct {
		Success    bool            `json:"success"`
		StatusCode int             `json:"statusCode"`
		Data       json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	require.True(t, env.Success)
	require.Equal(t, 200, env.StatusCode)
	require.NotEmpty(t, env.Data)
}

func TestWriteSchema(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSchema(&buf))
	require.Contains(t, buf.String(), `"documentType"`)
	require.Contains(t, buf.String(), `"LOAN_RETURN"`)
}

func TestJobsCLITrigger(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewJobsCLI(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })

	info, err := c.Trigger(context.Background(), jobs.TaskStockReplay, []byte(`{"company_ids":[1]}`))
	require.NoError(t, err)
	require.Equal(t, jobs.TaskStockReplay, info.Type)
	require.Equal(t, jobs.QueueDefault, info.Queue)

	_, err = c.Trigger(context.Background(), "fx:rates", nil)
	require.ErrorIs(t, err, jobs.ErrUnknownTask)
}

type stubInspector map[string]*asynq.QueueInfo

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if info, ok := s[queue]; ok {
		return info, nil
	}
	return nil, asynq.ErrQueueNotFound
}

func TestJobsCLIInspectQueues(t *testing.T) {
	c := NewJobsCLIWith(nil, stubInspector{jobs.QueueCritical: {Pending: 2, Scheduled: 1}})
	stats, err := c.InspectQueues()
	require.NoError(t, err)
	require.Equal(t, []QueueStats{
		{Queue: jobs.QueueCritical, Pending: 2, Scheduled: 1},
		{Queue: jobs.QueueDefault},
	}, stats)

	_, err = NewJobsCLIWith(nil, nil).Trigger(context.Background(), jobs.TaskGLIntegrity, nil)
	require.Error(t, err)
}
