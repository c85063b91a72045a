package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"reservas/internal/config"
	"reservas/internal/database"
	"reservas/internal/domain"
	"reservas/internal/events"
	"reservas/internal/models"
	"reservas/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// movableClock is a test clock that can be moved between steps.
type movableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movableClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func openTestDB(t *testing.T, schema database.Schema) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger, schema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestBookingScenario drives a catalog create through the stream into the
// booking projection, then books, conflicts, cancels and rebooks.
func TestBookingScenario(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	clock := &movableClock{now: time.Date(2025, 1, 9, 12, 0, 0, 0, time.UTC)}

	catalogDB := openTestDB(t, database.CatalogSchema)
	bookingDB := openTestDB(t, database.BookingSchema)
	stream := events.NewMemoryStream()

	catalog := NewCatalogService(catalogDB, events.NewKafkaPublisher(stream, &logger), nil, clock, &logger)
	seedSpaceTypes(t, catalog, "Salon")
	res, err := catalog.Create(ctx, SpaceInput{Name: "Salon Comunal", TypeID: 1, Capacity: 30, HourlyRate: 10, DailyRate: 70})
	require.NoError(t, err)
	require.NoError(t, res.PublishErr)
	require.Equal(t, int64(1), res.Space.ID)
	require.NoError(t, stream.Close())

	projector := events.NewProjector(bookingDB, &logger)
	backoff := worker.RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	require.NoError(t, events.NewConsumer(stream, projector, backoff, &logger).Run(ctx))
	assert.Equal(t, int64(0), stream.Committed())

	projected, err := bookingDB.GetSpace(ctx, 1)
	require.NoError(t, err)
	assert.True(t, projected.Active)
	assert.Equal(t, 10.0, projected.HourlyRate)

	bookings := NewBookingService(bookingDB, bookingDB, clock, config.BookingConfig{}, &logger)

	start := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	first, err := bookings.Create(ctx, BookingRequest{UserID: 1, SpaceID: 1, Start: start, End: start.Add(2 * time.Hour), Hours: 2})
	require.NoError(t, err)
	assert.Equal(t, "20.00", first.Total.StringFixed(2))

	second := BookingRequest{UserID: 2, SpaceID: 1, Start: start.Add(time.Hour), End: start.Add(3 * time.Hour), Hours: 2}
	_, err = bookings.Create(ctx, second)
	assert.ErrorIs(t, err, domain.ErrSlotTaken)

	clock.Set(start.Add(-5 * time.Hour))
	cancelled, err := bookings.Cancel(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	stored, err := bookings.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)

	retried, err := bookings.Create(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), retried.UserID)
	assert.Equal(t, "20.00", retried.Total.StringFixed(2))
}

func TestBookingAgainstDeletedSpace(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	clock := &movableClock{now: time.Date(2025, 1, 9, 12, 0, 0, 0, time.UTC)}

	catalogDB := openTestDB(t, database.CatalogSchema)
	bookingDB := openTestDB(t, database.BookingSchema)
	stream := events.NewMemoryStream()

	catalog := NewCatalogService(catalogDB, events.NewKafkaPublisher(stream, &logger), nil, clock, &logger)
	created, err := catalog.Create(ctx, SpaceInput{Name: "Cancha", Capacity: 10, HourlyRate: 5})
	require.NoError(t, err)
	clock.Set(clock.Now().Add(time.Minute))
	_, err = catalog.Delete(ctx, created.Space.ID)
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	backoff := worker.RetryPolicy{MaxRetries: 1}
	require.NoError(t, events.NewConsumer(stream, events.NewProjector(bookingDB, &logger), backoff, &logger).Run(ctx))

	bookings := NewBookingService(bookingDB, bookingDB, clock, config.BookingConfig{}, &logger)
	start := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	_, err = bookings.Create(ctx, BookingRequest{UserID: 1, SpaceID: created.Space.ID, Start: start, End: start.Add(time.Hour), Hours: 1})
	assert.ErrorIs(t, err, domain.ErrSpaceInactive)

	_, err = bookings.Create(ctx, BookingRequest{UserID: 1, SpaceID: 99, Start: start, End: start.Add(time.Hour), Hours: 1})
	assert.ErrorIs(t, err, domain.ErrSpaceNotFound)
}

func TestModifyScenario(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	bookingDB := openTestDB(t, database.BookingSchema)
	clock := &movableClock{now: time.Date(2025, 1, 9, 12, 0, 0, 0, time.UTC)}

	_, err := bookingDB.UpsertSpaceIfNewer(ctx, &models.Space{ID: 1, Name: "Sala", Capacity: 5, HourlyRate: 10, Active: true, EventTS: clock.Now()})
	require.NoError(t, err)

	bookings := NewBookingService(bookingDB, bookingDB, clock, config.BookingConfig{}, &logger)
	start := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	a, err := bookings.Create(ctx, BookingRequest{UserID: 1, SpaceID: 1, Start: start, End: start.Add(2 * time.Hour), Hours: 2})
	require.NoError(t, err)
	b, err := bookings.Create(ctx, BookingRequest{UserID: 2, SpaceID: 1, Start: start.Add(4 * time.Hour), End: start.Add(5 * time.Hour), Hours: 1})
	require.NoError(t, err)

	// Extending a into b's slot conflicts; shrinking inside its own slot does not.
	_, err = bookings.Modify(ctx, a.ID, start, start.Add(5*time.Hour), 5)
	assert.ErrorIs(t, err, domain.ErrSlotTaken)

	m, err := bookings.Modify(ctx, a.ID, start, start.Add(4*time.Hour), 4)
	require.NoError(t, err)
	assert.Equal(t, models.StatusModified, m.Status)
	assert.Equal(t, "38.00", m.Total.StringFixed(2))

	// Two hours before b starts the window is closed.
	clock.Set(b.Start.Add(-2 * time.Hour))
	_, err = bookings.Modify(ctx, b.ID, b.Start.Add(time.Hour), b.End.Add(time.Hour), 1)
	assert.ErrorIs(t, err, domain.ErrModifyWindowClosed)

	list, err := bookings.ListBySpace(ctx, 1, nil, nil)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	avail, err := bookings.Availability(ctx, 1, start.Add(time.Hour), start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, avail.Available)
	require.Len(t, avail.Conflicts, 1)
	assert.Equal(t, a.ID, avail.Conflicts[0].ID)
}
