package events

import (
	"testing"

	"reservas/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestSpaceBalancer_SamePartitionPerSpace(t *testing.T) {
	b := &SpaceBalancer{}
	partitions := []int{0, 1, 2, 3, 4, 5, 6, 7}

	seen := map[int]bool{}
	for id := int64(1); id <= 50; id++ {
		p := b.Balance(kafka.Message{Key: []byte(MessageKey(id, models.EventCreated))}, partitions...)
		for _, kind := range []models.EventKind{models.EventUpdated, models.EventDeleted} {
			got := b.Balance(kafka.Message{Key: []byte(MessageKey(id, kind))}, partitions...)
			assert.Equal(t, p, got, "space %d %s routed differently", id, kind)
		}
		seen[p] = true
	}
	assert.Greater(t, len(seen), 1, "fifty spaces should spread over several partitions")
}

func TestPartitionKey(t *testing.T) {
	assert.Equal(t, "espacio-12", string(partitionKey([]byte("espacio-12-UPDATED"))))
	assert.Equal(t, "espacio-12", string(partitionKey([]byte("espacio-12"))))
	assert.Equal(t, "other-key", string(partitionKey([]byte("other-key"))))
	assert.Nil(t, partitionKey(nil))
}
