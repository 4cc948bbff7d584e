// Package ratelimit provides a fixed-window request limiter whose counters
// live in the shared cache, so every instance behind the same Redis sees the
// same counts.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/higuera/dashboard/cache"
	"github.com/higuera/dashboard/config"
	"github.com/higuera/dashboard/monitoring"
)

// DefaultMaxRequests is the number of requests allowed per window.
const DefaultMaxRequests = 60

// DefaultWindow is the length of a rate limit window.
const DefaultWindow = time.Minute

const keyPrefix = "ratelimit:"

// ErrTooManyRequests is returned by Allow when the client exceeded its quota.
var ErrTooManyRequests = errors.New("too many requests")

// window is the cached counter. Field names match the counters written by
// the Node.js dashboard that shares the store.
type window struct {
	Count     int   `json:"count"`
	ResetTime int64 `json:"resetTime"` // unix milliseconds
}

// Info describes a client's quota after a call to Allow.
type Info struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// ResetSeconds is Reset as unix seconds, rounded up.
func (i Info) ResetSeconds() int64 {
	return int64(math.Ceil(float64(i.Reset.UnixMilli()) / 1000))
}

// Limiter counts requests per client in fixed windows.
type Limiter struct {
	store       *cache.Service
	maxRequests int
	window      time.Duration
	now         func() time.Time
	reporter    monitoring.Reporter

	// serializes read-modify-write within this process
	mu sync.Mutex
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLimit sets the quota.
func WithLimit(maxRequests int, window time.Duration) Option {
	return func(l *Limiter) {
		if maxRequests > 0 {
			l.maxRequests = maxRequests
		}
		if window > 0 {
			l.window = window
		}
	}
}

// WithConfig applies the rate limit section of cfg.
func WithConfig(cfg config.RateLimit) Option {
	return WithLimit(cfg.MaxRequests, cfg.Window.Std())
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithReporter sets where rejected requests are reported by Middleware.
func WithReporter(r monitoring.Reporter) Option {
	return func(l *Limiter) { l.reporter = r }
}

// New returns a Limiter storing its counters in store.
func New(store *cache.Service, opts ...Option) *Limiter {
	l := &Limiter{
		store:       store,
		maxRequests: DefaultMaxRequests,
		window:      DefaultWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.reporter = monitoring.Safe(l.reporter)
	return l
}

// Allow counts one request for client. When the client is over its quota
// the returned error is ErrTooManyRequests and the request is not counted.
func (l *Limiter) Allow(ctx context.Context, client string) (Info, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := keyPrefix + client
	now := l.now()
	found, w := cache.GetAs[window](ctx, l.store, key)
	if !found || now.UnixMilli() > w.ResetTime {
		w = window{ResetTime: now.Add(l.window).UnixMilli()}
	}
	w.Count++

	info := Info{
		Limit:     l.maxRequests,
		Remaining: max(l.maxRequests-w.Count, 0),
		Reset:     time.UnixMilli(w.ResetTime),
	}
	if w.Count > l.maxRequests {
		return info, errors.WithDetailf(ErrTooManyRequests, "client %s", client)
	}
	l.store.Set(ctx, key, w, l.window)
	return info, nil
}
