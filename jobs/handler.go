package jobs

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/odyssey-erp/ledgercore/internal/platform/httpx"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// QueueInspector reports queue depth.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes HTTP endpoints for job observability and manual triggers.
type Handler struct {
	inspector QueueInspector
	enqueuer  Enqueuer
	logger    *zap.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints. Either
// dependency may be nil.
func NewHandler(inspector QueueInspector, enqueuer Enqueuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{inspector: inspector, enqueuer: enqueuer, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Post("/{type}", h.trigger)
}

type queueStatus struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
	Active  int    `json:"active"`
	Failed  int    `json:"failed"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	queues := []string{QueueCritical, QueueDefault}
	out := make([]queueStatus, 0, len(queues))
	for _, name := range queues {
		status := queueStatus{Queue: name}
		if h.inspector != nil {
			info, err := h.inspector.GetQueueInfo(name)
			if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
				h.logger.Warn("jobs health", zap.String("queue", name), zap.Error(err))
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			if info != nil {
				status.Pending = info.Pending
				status.Active = info.Active
				status.Failed = info.Retry + info.Archived
			}
		}
		out = append(out, status)
	}
	httpx.JSON(w, http.StatusOK, out)
}

// Enqueued describes an accepted trigger.
type Enqueued struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Queue string `json:"queue"`
}

func unavailable(w http.ResponseWriter, status int, msg string) {
	httpx.JSON(w, status, httpx.Result[Enqueued]{Error: msg, StatusCode: status})
}

func (h *Handler) trigger(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		unavailable(w, http.StatusServiceUnavailable, "job queue not configured")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		httpx.RespondError(w, shared.Validation("jobs: read body: %v", err))
		return
	}
	taskType := chi.URLParam(r, "type")
	task, err := NewTask(taskType, body)
	if errors.Is(err, ErrUnknownTask) {
		httpx.RespondError(w, shared.NotFound("task type", taskType))
		return
	}
	if err != nil {
		httpx.RespondError(w, shared.Validation("jobs: %v", err))
		return
	}
	info, err := h.enqueuer.Enqueue(r.Context(), task)
	if err != nil {
		h.logger.Error("enqueue job", zap.String("type", task.Type()), zap.Error(err))
		unavailable(w, http.StatusBadGateway, "enqueue failed")
		return
	}
	h.logger.Info("job enqueued", zap.String("type", task.Type()), zap.String("id", info.ID))
	res := httpx.OK(Enqueued{ID: info.ID, Type: info.Type, Queue: info.Queue})
	res.StatusCode = http.StatusAccepted
	httpx.JSON(w, res.StatusCode, res)
}
