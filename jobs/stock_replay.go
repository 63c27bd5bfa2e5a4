package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/odyssey-erp/ledgercore/internal/inventory"
	jobmetrics "github.com/odyssey-erp/ledgercore/internal/jobs"
)

// StockReplayer re-folds the stock ledger of a balance key.
type StockReplayer interface {
	Keys(ctx context.Context, companyID int64) ([]inventory.Key, error)
	Replay(ctx context.Context, key inventory.Key) (inventory.ReplayReport, error)
}

// StockReplayJob compares every stored stock balance with a replay of its
// ledger entries and reports the keys that drifted.
type StockReplayJob struct {
	Stock     StockReplayer
	Companies []int64
	Logger    *zap.Logger
	Metrics   *jobmetrics.Metrics
}

// NewStockReplayJob constructs the job handler.
func NewStockReplayJob(stock StockReplayer, companies []int64, logger *zap.Logger, metrics *jobmetrics.Metrics) *StockReplayJob {
	return &StockReplayJob{Stock: stock, Companies: companies, Logger: logger, Metrics: metrics}
}

// Handle executes the replay job.
func (j *StockReplayJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Stock == nil {
		return errors.New("stock replay: dependencies not configured")
	}
	var payload StockReplayPayload
	if err := decode(task, &payload); err != nil {
		return err
	}

	tracker := j.Metrics.Track(TaskStockReplay)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	log := jobLogger(j.Logger, TaskStockReplay)
	replayed := 0
	for _, companyID := range pickCompanies(payload.CompanyIDs, j.Companies) {
		keys, err := j.Stock.Keys(ctx, companyID)
		if err != nil {
			log.Error("list stock keys", zap.Int64("company_id", companyID), zap.Error(err))
			return err
		}
		drifted := 0
		for _, key := range keys {
			report, err := j.Stock.Replay(ctx, key)
			if err != nil {
				log.Error("replay stock", zap.Int64("item_id", key.ItemID), zap.Int64("warehouse_id", key.WarehouseID), zap.Error(err))
				return err
			}
			replayed++
			if !report.Drift {
				continue
			}
			drifted++
			log.Warn("stock balance drift",
				zap.Int64("company_id", companyID),
				zap.Int64("item_id", key.ItemID),
				zap.Int64("warehouse_id", key.WarehouseID),
				zap.String("expected_qty", report.Expected.Qty.String()),
				zap.String("actual_qty", report.Actual.Qty.String()),
				zap.String("expected_value", report.Expected.Value.String()),
				zap.String("actual_value", report.Actual.Value.String()))
		}
		j.Metrics.AddFindings("stock_drift", companyID, drifted)
	}

	log.Info("stock replay finished", zap.Int("keys", replayed))
	return nil
}
