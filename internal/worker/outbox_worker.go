package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reservas/internal/domain"
	"reservas/internal/events"
	"reservas/internal/metrics"
	"reservas/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DeadLetterKey = "catalog:deadletter"

// OutboxStore persists catalog events waiting to be republished.
type OutboxStore interface {
	CreatePublishTask(ctx context.Context, task *models.PublishTask) error
	GetPendingPublishTasks(ctx context.Context, limit int) ([]models.PublishTask, error)
	UpdatePublishTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// OutboxWorker republishes catalog events whose first publish failed. The
// stored payload keeps the original emission time, so the projector still
// orders them correctly when they arrive late.
type OutboxWorker struct {
	store         OutboxStore
	publisher     domain.EventPublisher
	redis         *redis.Client
	retryPolicy   RetryPolicy
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

func NewOutboxWorker(store OutboxStore, publisher domain.EventPublisher, redisClient *redis.Client, retry RetryPolicy, pollInterval time.Duration, batchSize int, logger *zerolog.Logger) *OutboxWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 20
	}

	return &OutboxWorker{
		store:         store,
		publisher:     publisher,
		redis:         redisClient,
		retryPolicy:   retry,
		deadLetterKey: DeadLetterKey,
		pollInterval:  pollInterval,
		batchSize:     batchSize,
		logger:        logger,
	}
}

// EnqueueFailed stores ev for a later attempt.
func (w *OutboxWorker) EnqueueFailed(ctx context.Context, ev models.CatalogEvent, cause error) error {
	if !ev.Kind.Valid() {
		return fmt.Errorf("unknown event type %q", ev.Kind)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(events.NewEnvelope(ev))
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	next := time.Now().Add(w.retryPolicy.NextDelay(1))
	task := models.PublishTask{
		SpaceID:     ev.Space.ID,
		EventType:   string(ev.Kind),
		Payload:     string(payload),
		Status:      models.TaskStatusPending,
		NextRetryAt: &next,
	}
	if cause != nil {
		msg := cause.Error()
		task.LastError = &msg
	}
	if err := w.store.CreatePublishTask(ctx, &task); err != nil {
		return fmt.Errorf("persist publish task: %w", err)
	}
	w.logger.Warn().
		Int64("task_id", task.ID).
		Int64("space_id", ev.Space.ID).
		Str("event_type", string(ev.Kind)).
		Time("next_retry_at", next).
		Msg("catalog event queued for republish")
	return nil
}

// Start launches the poll loop; stops when ctx is done.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("poll_interval", w.pollInterval).Msg("outbox worker started")
	defer w.logger.Info().Msg("outbox worker stopped")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("outbox: fetch pending")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce processes one batch of due tasks and returns how many it handled.
func (w *OutboxWorker) RunOnce(ctx context.Context) (int, error) {
	tasks, err := w.store.GetPendingPublishTasks(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	for i := range tasks {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks), nil
}

func (w *OutboxWorker) processTask(ctx context.Context, task *models.PublishTask) {
	ev, err := events.DecodePayload([]byte(task.Payload))
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.publisher.Publish(ctx, ev); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.store.UpdatePublishTaskStatus(ctx, task.ID, models.TaskStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("outbox: mark completed")
	}
	metrics.IncOutbox(models.TaskStatusCompleted)
}

func (w *OutboxWorker) retryOrFail(ctx context.Context, task *models.PublishTask, cause error) {
	attempt := task.RetryCount + 1
	if !w.retryPolicy.ShouldRetry(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt + 1))
	if err := w.store.UpdatePublishTaskStatus(ctx, task.ID, models.TaskStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("outbox: mark retry")
	}
	metrics.IncOutbox(models.TaskStatusRetry)
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", nextTime).Msg("outbox: republish failed")
}

func (w *OutboxWorker) failTask(ctx context.Context, task *models.PublishTask, cause error) {
	if err := w.store.UpdatePublishTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("outbox: mark failed")
	}
	metrics.IncOutbox(models.TaskStatusFailed)
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Int64("space_id", task.SpaceID).Msg("outbox: giving up on catalog event")
	w.pushDeadLetter(ctx, task)
}

func (w *OutboxWorker) pushDeadLetter(ctx context.Context, task *models.PublishTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("outbox: encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("outbox: deadletter push")
	}
}
