package cache

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeTimer struct {
	s       *fakeScheduler
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeScheduler records timers and fires them on demand.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Pending returns timers that have neither fired nor been stopped.
func (s *fakeScheduler) Pending() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// Created returns the number of timers ever scheduled.
func (s *fakeScheduler) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// FireAll runs every pending timer synchronously.
func (s *fakeScheduler) FireAll() {
	for _, t := range s.Pending() {
		s.mu.Lock()
		t.fired = true
		s.mu.Unlock()
		t.f()
	}
}

var errBoom = errors.New("boom")

// fakeTransport is an in-memory Transport with programmable failures.
type fakeTransport struct {
	mu         sync.Mutex
	data       map[string][]byte
	ttls       map[string]time.Duration
	connectErr error
	opErr      error
	connects   int
	closed     bool
	events     ConnectionEvents
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeTransport) Connect(ctx context.Context, events ConnectionEvents) error {
	f.mu.Lock()
	f.connects++
	f.events = events
	err := f.connectErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	events.OnConnect()
	return nil
}

func (f *fakeTransport) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opErr != nil {
		return nil, f.opErr
	}
	data, ok := f.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (f *fakeTransport) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opErr != nil {
		return f.opErr
	}
	f.data[key] = data
	f.ttls[key] = ttl
	return nil
}

func (f *fakeTransport) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opErr != nil {
		return f.opErr
	}
	delete(f.data, key)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) setConnectErr(err error) {
	f.mu.Lock()
	f.connectErr = err
	f.mu.Unlock()
}

func (f *fakeTransport) setOpErr(err error) {
	f.mu.Lock()
	f.opErr = err
	f.mu.Unlock()
}

func (f *fakeTransport) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// errorCache is a test double that always fails.
type errorCache struct {
	err error
}

func (e *errorCache) Get(context.Context, string) (bool, any, error)        { return false, nil, e.err }
func (e *errorCache) Set(context.Context, string, any, time.Duration) error { return e.err }
func (e *errorCache) Delete(context.Context, string) error                  { return e.err }
