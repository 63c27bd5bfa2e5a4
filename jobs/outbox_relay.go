package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	jobmetrics "github.com/odyssey-erp/ledgercore/internal/jobs"
)

// BatchRelay publishes one batch of pending events per call.
type BatchRelay interface {
	ProcessBatch(ctx context.Context) (int, error)
}

// OutboxRelayJob drains the transactional outbox to the broker.
type OutboxRelayJob struct {
	Relay   BatchRelay
	Logger  *zap.Logger
	Metrics *jobmetrics.Metrics
}

// NewOutboxRelayJob constructs the job handler.
func NewOutboxRelayJob(relay BatchRelay, logger *zap.Logger, metrics *jobmetrics.Metrics) *OutboxRelayJob {
	return &OutboxRelayJob{Relay: relay, Logger: logger, Metrics: metrics}
}

// Handle publishes batches until the outbox is empty or MaxBatches is reached.
func (j *OutboxRelayJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Relay == nil {
		return errors.New("outbox relay: dependencies not configured")
	}
	var payload OutboxRelayPayload
	if err := decode(task, &payload); err != nil {
		return err
	}

	tracker := j.Metrics.Track(TaskOutboxRelay)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	log := jobLogger(j.Logger, TaskOutboxRelay)
	delivered, batches := 0, 0
	for payload.MaxBatches <= 0 || batches < payload.MaxBatches {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := j.Relay.ProcessBatch(ctx)
		if err != nil {
			log.Error("relay batch", zap.Int("batch", batches), zap.Error(err))
			return err
		}
		if n == 0 {
			break
		}
		delivered += n
		batches++
	}

	j.Metrics.AddRelayed(delivered)
	if delivered > 0 {
		log.Info("outbox relayed", zap.Int("events", delivered), zap.Int("batches", batches))
	}
	return nil
}
