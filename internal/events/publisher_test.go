package events

import (
	"context"
	"errors"
	"io"
	"testing"

	"reservas/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaPublisher(t *testing.T) {
	logger := zerolog.New(io.Discard)
	stream := NewMemoryStream()
	pub := NewKafkaPublisher(stream, &logger)
	ctx := context.Background()

	require.NoError(t, pub.Publish(ctx, sampleEvent(models.EventCreated)))

	batch := []models.CatalogEvent{sampleEvent(models.EventUpdated), sampleEvent(models.EventDeleted)}
	batch[1].Timestamp = batch[1].Timestamp.Add(1)
	require.NoError(t, pub.PublishBatch(ctx, batch))
	require.NoError(t, pub.PublishBatch(ctx, nil))

	msgs := stream.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "espacio-1-CREATED", string(msgs[0].Key))
	assert.Equal(t, "espacio-1-UPDATED", string(msgs[1].Key))
	assert.Equal(t, "espacio-1-DELETED", string(msgs[2].Key))

	t.Run("write failure surfaces", func(t *testing.T) {
		stream.FailWrites(errors.New("broker unreachable"))
		defer stream.FailWrites(nil)

		err := pub.Publish(ctx, sampleEvent(models.EventUpdated))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker unreachable")

		err = pub.PublishBatch(ctx, batch)
		assert.Error(t, err)
		assert.Len(t, stream.Messages(), 3)
	})

	t.Run("invalid kind in batch", func(t *testing.T) {
		err := pub.PublishBatch(ctx, []models.CatalogEvent{{Kind: "RENAMED"}})
		assert.Error(t, err)
	})

	require.NoError(t, pub.Close())
}
