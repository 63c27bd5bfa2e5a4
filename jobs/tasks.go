package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries the outbox relay so events are not starved by checks.
	QueueCritical = "critical"

	// TaskGLIntegrity verifies entry balance and ledger fold consistency.
	TaskGLIntegrity = "ledger:gl_integrity"
	// TaskStockReplay replays the stock ledger against stored balances.
	TaskStockReplay = "inventory:stock_replay"
	// TaskOutboxRelay publishes pending outbox events.
	TaskOutboxRelay = "events:outbox_relay"
)

// IntegrityPayload scopes a GL integrity run. Empty CompanyIDs means every
// configured company; a zero AsOf means today.
type IntegrityPayload struct {
	CompanyIDs []int64   `json:"company_ids,omitempty"`
	AsOf       time.Time `json:"as_of,omitempty"`
}

// StockReplayPayload scopes a stock replay run.
type StockReplayPayload struct {
	CompanyIDs []int64 `json:"company_ids,omitempty"`
}

// OutboxRelayPayload bounds a relay run. Zero MaxBatches drains the outbox.
type OutboxRelayPayload struct {
	MaxBatches int `json:"max_batches,omitempty"`
}

// NewGLIntegrityTask constructs an Asynq task for the integrity check.
func NewGLIntegrityTask(payload IntegrityPayload) (*asynq.Task, error) {
	return newTask(TaskGLIntegrity, payload, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// NewStockReplayTask constructs an Asynq task for the stock replay.
func NewStockReplayTask(payload StockReplayPayload) (*asynq.Task, error) {
	return newTask(TaskStockReplay, payload, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// NewOutboxRelayTask constructs an Asynq task for the outbox relay.
func NewOutboxRelayTask(payload OutboxRelayPayload) (*asynq.Task, error) {
	return newTask(TaskOutboxRelay, payload, asynq.Queue(QueueCritical), asynq.MaxRetry(5), asynq.Timeout(time.Minute))
}

// NewTask builds a task of a known type from a raw JSON payload. An empty body
// selects the defaults of the type.
func NewTask(taskType string, body []byte) (*asynq.Task, error) {
	if len(body) == 0 {
		body = []byte("{}")
	}
	switch taskType {
	case TaskGLIntegrity:
		var p IntegrityPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("jobs: decode %s payload: %w", taskType, err)
		}
		return NewGLIntegrityTask(p)
	case TaskStockReplay:
		var p StockReplayPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("jobs: decode %s payload: %w", taskType, err)
		}
		return NewStockReplayTask(p)
	case TaskOutboxRelay:
		var p OutboxRelayPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("jobs: decode %s payload: %w", taskType, err)
		}
		return NewOutboxRelayTask(p)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskType)
	}
}

func newTask(taskType string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, opts...), nil
}

func decode(t *asynq.Task, v any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), v); err != nil {
		return fmt.Errorf("jobs: decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}
