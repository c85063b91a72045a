package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"reservas/internal/database"
	"reservas/internal/events"
	"reservas/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger, database.CatalogSchema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestWorker(t *testing.T, db *database.DB, stream *events.MemoryStream, rdb *redis.Client, maxRetries int) *OutboxWorker {
	t.Helper()
	logger := zerolog.Nop()
	publisher := events.NewKafkaPublisher(stream, &logger)
	policy := RetryPolicy{MaxRetries: maxRetries, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}
	return NewOutboxWorker(db, publisher, rdb, policy, time.Millisecond, 10, &logger)
}

func loadTask(t *testing.T, db *database.DB, id int64) models.PublishTask {
	t.Helper()
	var status string
	var retries int
	err := db.QueryRow(`SELECT status, retry_count FROM publish_queue WHERE id = ?`, id).Scan(&status, &retries)
	require.NoError(t, err)
	return models.PublishTask{ID: id, Status: status, RetryCount: retries}
}

func sampleEvent(kind models.EventKind) models.CatalogEvent {
	return models.CatalogEvent{
		Kind: kind,
		Space: models.Space{
			ID:         7,
			Name:       "Sala Norte",
			TypeID:     1,
			Capacity:   12,
			HourlyRate: 15,
			DailyRate:  100,
			Active:     true,
		},
		Timestamp: time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC),
	}
}

// runDue waits out the retry delay and processes one batch.
func runDue(t *testing.T, w *OutboxWorker) int {
	t.Helper()
	time.Sleep(10 * time.Millisecond)
	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	return n
}

func TestOutboxWorkerRepublishesQueuedEvent(t *testing.T) {
	db := newTestDB(t)
	stream := events.NewMemoryStream()
	w := newTestWorker(t, db, stream, nil, 3)

	ev := sampleEvent(models.EventUpdated)
	require.NoError(t, w.EnqueueFailed(context.Background(), ev, errors.New("broker down")))

	assert.Equal(t, 1, runDue(t, w))

	msgs := stream.Messages()
	require.Len(t, msgs, 1)
	decoded, err := events.DecodeMessage(msgs[0])
	require.NoError(t, err)
	assert.Equal(t, models.EventUpdated, decoded.Kind)
	assert.Equal(t, int64(7), decoded.Space.ID)
	assert.True(t, decoded.Timestamp.Equal(ev.Timestamp), "original emission time must survive the queue")

	task := loadTask(t, db, 1)
	assert.Equal(t, models.TaskStatusCompleted, task.Status)

	// Completed tasks are not picked up again.
	assert.Equal(t, 0, runDue(t, w))
}

func TestOutboxWorkerRetriesThenDeadLetters(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db := newTestDB(t)
	stream := events.NewMemoryStream()
	stream.FailWrites(errors.New("still down"))
	w := newTestWorker(t, db, stream, rdb, 3)

	require.NoError(t, w.EnqueueFailed(context.Background(), sampleEvent(models.EventDeleted), errors.New("broker down")))

	runDue(t, w)
	task := loadTask(t, db, 1)
	assert.Equal(t, models.TaskStatusRetry, task.Status)
	assert.Equal(t, 1, task.RetryCount)

	runDue(t, w)
	task = loadTask(t, db, 1)
	assert.Equal(t, models.TaskStatusRetry, task.Status)
	assert.Equal(t, 2, task.RetryCount)

	runDue(t, w)
	task = loadTask(t, db, 1)
	assert.Equal(t, models.TaskStatusFailed, task.Status)

	items, err := rdb.LRange(context.Background(), DeadLetterKey, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, items, 1)
	var dead models.PublishTask
	require.NoError(t, json.Unmarshal([]byte(items[0]), &dead))
	assert.Equal(t, int64(7), dead.SpaceID)
	assert.Equal(t, string(models.EventDeleted), dead.EventType)

	failed, err := db.GetFailedPublishTasks(context.Background())
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestOutboxWorkerRecoversAfterTransientFailure(t *testing.T) {
	db := newTestDB(t)
	stream := events.NewMemoryStream()
	stream.FailWrites(errors.New("blip"))
	w := newTestWorker(t, db, stream, nil, 5)

	require.NoError(t, w.EnqueueFailed(context.Background(), sampleEvent(models.EventCreated), nil))

	runDue(t, w)
	assert.Equal(t, models.TaskStatusRetry, loadTask(t, db, 1).Status)

	stream.FailWrites(nil)
	runDue(t, w)
	assert.Equal(t, models.TaskStatusCompleted, loadTask(t, db, 1).Status)
	assert.Len(t, stream.Messages(), 1)
}

func TestOutboxWorkerFailsUndecodablePayload(t *testing.T) {
	db := newTestDB(t)
	stream := events.NewMemoryStream()
	w := newTestWorker(t, db, stream, nil, 5)

	task := models.PublishTask{SpaceID: 3, EventType: "UPDATED", Payload: `{"type":"BOGUS"}`}
	require.NoError(t, db.CreatePublishTask(context.Background(), &task))

	assert.Equal(t, 1, runDue(t, w))
	assert.Equal(t, models.TaskStatusFailed, loadTask(t, db, task.ID).Status)
	assert.Empty(t, stream.Messages())
}

func TestOutboxWorkerRejectsUnknownKind(t *testing.T) {
	db := newTestDB(t)
	w := newTestWorker(t, db, events.NewMemoryStream(), nil, 5)

	err := w.EnqueueFailed(context.Background(), models.CatalogEvent{Kind: "RENAMED"}, nil)
	assert.Error(t, err)
}

func TestOutboxWorkerStartStopsOnCancel(t *testing.T) {
	db := newTestDB(t)
	w := newTestWorker(t, db, events.NewMemoryStream(), nil, 5)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2}
	if d := p.NextDelay(1); d != time.Second {
		t.Fatalf("attempt1 delay=%v", d)
	}
	if d := p.NextDelay(2); d != 2*time.Second {
		t.Fatalf("attempt2 delay=%v", d)
	}
	if d := p.NextDelay(5); d != 5*time.Second {
		t.Fatalf("attempt5 delay capped=%v", d)
	}
}

func TestRetryPolicyShouldRetry(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3}
	assert.True(t, p.ShouldRetry(1))
	assert.True(t, p.ShouldRetry(2))
	assert.False(t, p.ShouldRetry(3))
}
