package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdempotencyStore(t *testing.T) {
	repo := NewMemoryIdempotencyStore()
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, repo.SetReservationID(ctx, "k", 10, time.Hour))

		id, ok, err := repo.GetReservationID(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(10), id)
	})

	t.Run("FirstWriteWins", func(t *testing.T) {
		require.NoError(t, repo.SetReservationID(ctx, "k", 11, time.Hour))
		id, _, _ := repo.GetReservationID(ctx, "k")
		assert.Equal(t, int64(10), id)
	})

	t.Run("Expiry", func(t *testing.T) {
		now = now.Add(2 * time.Hour)
		_, ok, err := repo.GetReservationID(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, repo.SetReservationID(ctx, "k", 12, time.Hour))
		id, ok, _ := repo.GetReservationID(ctx, "k")
		assert.True(t, ok)
		assert.Equal(t, int64(12), id)
	})

	t.Run("RateLimit", func(t *testing.T) {
		allowed, _ := repo.CheckRateLimit(ctx, "u", 1, time.Minute)
		assert.True(t, allowed)

		allowed, _ = repo.CheckRateLimit(ctx, "u", 1, time.Minute)
		assert.False(t, allowed)

		now = now.Add(2 * time.Minute)
		allowed, _ = repo.CheckRateLimit(ctx, "u", 1, time.Minute)
		assert.True(t, allowed)
	})
}
