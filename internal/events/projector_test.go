package events

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"reservas/internal/database"
	"reservas/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupProjector(t *testing.T) (*Projector, *database.DB) {
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger, database.BookingSchema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewProjector(db, &logger), db
}

func eventAt(kind models.EventKind, name string, rate float64, ts time.Time) models.CatalogEvent {
	ev := sampleEvent(kind)
	ev.Space.Name = name
	ev.Space.HourlyRate = rate
	ev.Space.EventTS = ts
	ev.Timestamp = ts
	return ev
}

func TestProjector_CreatedTwiceIsIdempotent(t *testing.T) {
	p, db := setupProjector(t)
	ctx := context.Background()
	ev := eventAt(models.EventCreated, "Sala A", 10, emitted)

	require.NoError(t, p.Handle(ctx, ev))
	first, err := db.GetSpace(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, p.Handle(ctx, ev))
	second, err := db.GetSpace(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestProjector_UpdatedBeforeCreatedSelfHeals(t *testing.T) {
	p, db := setupProjector(t)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, eventAt(models.EventUpdated, "Sala nueva", 15, emitted.Add(time.Minute))))
	// the late CREATED must not overwrite the newer UPDATED
	require.NoError(t, p.Handle(ctx, eventAt(models.EventCreated, "Sala A", 10, emitted)))

	got, err := db.GetSpace(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Sala nueva", got.Name)
	assert.Equal(t, 15.0, got.HourlyRate)
}

func TestProjector_StaleUpdateIgnored(t *testing.T) {
	p, db := setupProjector(t)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, eventAt(models.EventCreated, "Sala A", 10, emitted)))
	require.NoError(t, p.Handle(ctx, eventAt(models.EventUpdated, "v3", 30, emitted.Add(3*time.Minute))))
	require.NoError(t, p.Handle(ctx, eventAt(models.EventUpdated, "v2", 20, emitted.Add(2*time.Minute))))

	got, err := db.GetSpace(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "v3", got.Name)
	assert.Equal(t, emitted.Add(3*time.Minute), got.UpdatedAt)
}

func TestProjector_DeletedTwiceIsNoop(t *testing.T) {
	p, db := setupProjector(t)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, eventAt(models.EventCreated, "Sala A", 10, emitted)))
	del := eventAt(models.EventDeleted, "Sala A", 10, emitted.Add(time.Hour))
	require.NoError(t, p.Handle(ctx, del))
	afterFirst, err := db.GetSpace(ctx, 1)
	require.NoError(t, err)
	assert.False(t, afterFirst.Active)

	require.NoError(t, p.Handle(ctx, del))
	afterSecond, err := db.GetSpace(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, afterFirst, afterSecond)

	// a redelivered CREATED cannot resurrect it
	require.NoError(t, p.Handle(ctx, eventAt(models.EventCreated, "Sala A", 10, emitted)))
	got, err := db.GetSpace(ctx, 1)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

type mockProjectionStore struct {
	mock.Mock
}

func (m *mockProjectionStore) GetSpace(ctx context.Context, id int64) (*models.Space, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Space), args.Error(1)
}
func (m *mockProjectionStore) InsertSpaceIfAbsent(ctx context.Context, s *models.Space) (bool, error) {
	args := m.Called(ctx, s)
	return args.Bool(0), args.Error(1)
}
func (m *mockProjectionStore) UpsertSpaceIfNewer(ctx context.Context, s *models.Space) (bool, error) {
	args := m.Called(ctx, s)
	return args.Bool(0), args.Error(1)
}
func (m *mockProjectionStore) DeactivateSpaceIfNewer(ctx context.Context, s *models.Space) (bool, error) {
	args := m.Called(ctx, s)
	return args.Bool(0), args.Error(1)
}

func TestProjector_PropagatesStoreFailure(t *testing.T) {
	store := new(mockProjectionStore)
	logger := zerolog.New(io.Discard)
	p := NewProjector(store, &logger)

	store.On("UpsertSpaceIfNewer", mock.Anything, mock.MatchedBy(func(s *models.Space) bool {
		return s.ID == 1 && s.EventTS.Equal(emitted)
	})).Return(false, errors.New("disk I/O error")).Once()

	ev := sampleEvent(models.EventUpdated)
	err := p.Handle(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	store.AssertExpectations(t)

	// unknown kinds are skipped without touching the store
	assert.NoError(t, p.Handle(context.Background(), models.CatalogEvent{Kind: "RENAMED"}))
	store.AssertNumberOfCalls(t, "UpsertSpaceIfNewer", 1)
}

func TestConsumerAndProjector(t *testing.T) {
	p, db := setupProjector(t)
	stream := NewMemoryStream()

	publish(t, stream,
		eventAt(models.EventCreated, "Sala A", 10, emitted),
		eventAt(models.EventCreated, "Sala A", 10, emitted),
		eventAt(models.EventUpdated, "Sala A+", 12, emitted.Add(time.Minute)),
	)
	require.NoError(t, stream.WriteMessages(context.Background(), stream.Messages()[2]))
	require.NoError(t, stream.Close())

	require.NoError(t, newTestConsumer(stream, p, 3).Run(context.Background()))
	assert.Equal(t, int64(3), stream.Committed())

	got, err := db.GetSpace(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Sala A+", got.Name)
	assert.Equal(t, 12.0, got.HourlyRate)
}

func TestProjector_EventsWithinOneMillisecond(t *testing.T) {
	ctx := context.Background()
	roundTrip := func(t *testing.T, ev models.CatalogEvent) models.CatalogEvent {
		msg, err := EncodeMessage(ev)
		require.NoError(t, err)
		decoded, err := DecodeMessage(msg)
		require.NoError(t, err)
		return decoded
	}

	t.Run("delete right after create", func(t *testing.T) {
		p, db := setupProjector(t)
		require.NoError(t, p.Handle(ctx, roundTrip(t, eventAt(models.EventCreated, "Sala A", 10, emitted))))
		require.NoError(t, p.Handle(ctx, roundTrip(t, eventAt(models.EventDeleted, "Sala A", 10, emitted.Add(400*time.Microsecond)))))

		got, err := db.GetSpace(ctx, 1)
		require.NoError(t, err)
		assert.False(t, got.Active)
	})

	t.Run("two quick updates", func(t *testing.T) {
		p, db := setupProjector(t)
		require.NoError(t, p.Handle(ctx, roundTrip(t, eventAt(models.EventUpdated, "Sala A", 10, emitted))))
		require.NoError(t, p.Handle(ctx, roundTrip(t, eventAt(models.EventUpdated, "Sala B", 20, emitted.Add(500*time.Microsecond)))))

		got, err := db.GetSpace(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 20.0, got.HourlyRate)
		assert.Equal(t, "Sala B", got.Name)
	})
}
