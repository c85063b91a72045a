package repository

import (
	"context"
	"sync"
	"time"
)

type MemoryIdempotencyStore struct {
	mu         sync.Mutex
	keys       map[string]memoryKey
	rateLimits map[string]*rateLimitEntry
	now        func() time.Time
}

type memoryKey struct {
	id        int64
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		keys:       make(map[string]memoryKey),
		rateLimits: make(map[string]*rateLimitEntry),
		now:        time.Now,
	}
}

func (r *MemoryIdempotencyStore) GetReservationID(_ context.Context, key string) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.keys[key]
	if !ok {
		return 0, false, nil
	}
	if !entry.expiresAt.IsZero() && r.now().After(entry.expiresAt) {
		delete(r.keys, key)
		return 0, false, nil
	}
	return entry.id, true, nil
}

func (r *MemoryIdempotencyStore) SetReservationID(_ context.Context, key string, id int64, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if entry, ok := r.keys[key]; ok && (entry.expiresAt.IsZero() || now.Before(entry.expiresAt)) {
		return nil
	}
	entry := memoryKey{id: id}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	r.keys[key] = entry
	return nil
}

func (r *MemoryIdempotencyStore) CheckRateLimit(_ context.Context, subject string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[subject]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[subject] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
