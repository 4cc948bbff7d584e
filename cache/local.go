package cache

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	value   any
	expires time.Time
}

// Local is an in-process TTL map. Values are stored as-is, so mutations to
// stored pointers are visible through the cache.
type Local struct {
	mu        sync.Mutex
	entries   map[string]localEntry
	expires   time.Duration
	threshold int
	now       func() time.Time
}

var _ Cache = (*Local)(nil)

// NewLocal returns an empty Local. Only WithExpires, WithSweepThreshold and
// WithClock apply.
func NewLocal(opts ...Option) *Local {
	cfg := applyOptions(opts)
	return &Local{
		entries:   make(map[string]localEntry),
		expires:   cfg.defaultExpires,
		threshold: cfg.sweepThreshold,
		now:       cfg.now,
	}
}

func (l *Local) Get(ctx context.Context, key string) (bool, any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		return false, nil, nil
	}
	if !l.now().Before(entry.expires) {
		delete(l.entries, key)
		return false, nil, nil
	}
	return true, entry.value, nil
}

func (l *Local) Set(ctx context.Context, key string, val any, expires time.Duration) error {
	if expires <= 0 {
		expires = l.expires
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.entries[key] = localEntry{value: val, expires: now.Add(expires)}
	if len(l.entries) > l.threshold {
		l.sweep(now)
	}
	return nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// must be called with the lock held
func (l *Local) sweep(now time.Time) {
	for key, entry := range l.entries {
		if !now.Before(entry.expires) {
			delete(l.entries, key)
		}
	}
}
