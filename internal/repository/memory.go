package repository

import (
	"context"
	"sync"
	"time"
)

type MemoryCacheRepository struct {
	mu         sync.Mutex
	slots      map[string]time.Time
	rateLimits map[string]*rateLimitEntry
	ttl        time.Duration
	now        func() time.Time
}

func NewMemoryCacheRepository(ttl time.Duration) *MemoryCacheRepository {
	return &MemoryCacheRepository{
		slots:      make(map[string]time.Time),
		rateLimits: make(map[string]*rateLimitEntry),
		ttl:        ttl,
		now:        time.Now,
	}
}

func (r *MemoryCacheRepository) IsOccupied(_ context.Context, date, slot string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := slotKey(date, slot)
	expiresAt, ok := r.slots[key]
	if !ok {
		return false, nil
	}
	if r.now().After(expiresAt) {
		delete(r.slots, key)
		return false, nil
	}
	return true, nil
}

func (r *MemoryCacheRepository) MarkOccupied(_ context.Context, date, slot string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.slots[slotKey(date, slot)] = now.Add(r.ttl)

	// opportunistic sweep so the map does not grow with past dates
	for k, exp := range r.slots {
		if now.After(exp) {
			delete(r.slots, k)
		}
	}
	return nil
}

func (r *MemoryCacheRepository) Forget(_ context.Context, date, slot string) error {
	r.mu.Lock()
	delete(r.slots, slotKey(date, slot))
	r.mu.Unlock()
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryCacheRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
		r.rateLimits[key] = entry
	} else if now.After(entry.expiresAt) {
		entry.count = 1
		entry.expiresAt = now.Add(window)
	} else {
		entry.count++
	}

	return entry.count <= limit, nil
}
