package events

import (
	"bytes"

	"github.com/segmentio/kafka-go"
)

// SpaceBalancer hashes only the "espacio-{id}" part of the key, so CREATED,
// UPDATED and DELETED for one space always land on the same partition.
type SpaceBalancer struct {
	hash kafka.Hash
}

func (b *SpaceBalancer) Balance(msg kafka.Message, partitions ...int) int {
	msg.Key = partitionKey(msg.Key)
	return b.hash.Balance(msg, partitions...)
}

func partitionKey(key []byte) []byte {
	if !bytes.HasPrefix(key, []byte(keyPrefix)) {
		return key
	}
	i := bytes.LastIndexByte(key, '-')
	if i < len(keyPrefix) {
		return key
	}
	return key[:i]
}
