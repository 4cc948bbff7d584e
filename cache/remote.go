package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/higuera/dashboard/logger"
	"github.com/higuera/dashboard/monitoring"
)

// State is the connection state of a Remote.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

const remoteService = "RemoteCache"

// Remote is the Redis-backed tier. It never blocks on a dead connection:
// operations fail fast with ErrNotConnected until the connection is back, and
// a lost connection is retried after the reconnect delay with at most one
// reconnect pending at a time.
type Remote struct {
	cfg       settings
	transport Transport
	reporter  monitoring.Reporter
	log       logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	pending Timer
	closed  bool
}

var _ Cache = (*Remote)(nil)
var _ ConnectionEvents = (*remoteEvents)(nil)

// NewRemote returns a disconnected Remote for connectionString. Call
// InitializeConnection to connect. An empty connection string is an
// ErrConfiguration.
func NewRemote(connectionString string, opts ...Option) (*Remote, error) {
	if strings.TrimSpace(connectionString) == "" {
		return nil, errors.Mark(errors.New("cache: redis connection string is required"), ErrConfiguration)
	}
	cfg := applyOptions(opts)
	transport := cfg.transport
	if transport == nil {
		transport = NewRedisTransport(connectionString, cfg.connectTimeout, cfg.retry)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Remote{
		cfg:       cfg,
		transport: transport,
		reporter:  cfg.reporter,
		log:       cfg.logger.WithPrefix("[remote]"),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// State returns the current connection state.
func (r *Remote) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// InitializeConnection connects to Redis. Failures are reported, never
// returned: the state moves to Disconnected and a reconnect is scheduled.
func (r *Remote) InitializeConnection(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.state = Connecting
	r.mu.Unlock()
	r.log.Debug("state %s", Connecting)

	if err := r.transport.Connect(ctx, &remoteEvents{r}); err != nil {
		r.reporter.ReportException(err, map[string]string{
			"service":   remoteService,
			"operation": "initializeConnection",
		})
		r.log.Warn("connect failed: %s", err)
		r.disconnect()
	}
}

// disconnect moves to Disconnected and schedules a reconnect unless one is
// already pending.
func (r *Remote) disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if r.state != Disconnected {
		r.log.Debug("state %s", Disconnected)
	}
	r.state = Disconnected
	if r.pending != nil {
		return
	}
	r.log.Debug("reconnecting in %s", r.cfg.reconnectDelay)
	r.pending = r.cfg.scheduler.AfterFunc(r.cfg.reconnectDelay, r.reconnect)
}

func (r *Remote) reconnect() {
	r.mu.Lock()
	r.pending = nil
	skip := r.closed || r.state == Connected
	r.mu.Unlock()
	if skip {
		return
	}
	r.InitializeConnection(r.ctx)
}

type remoteEvents struct {
	r *Remote
}

func (e *remoteEvents) OnConnect() {
	r := e.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
	if r.state != Connected {
		r.log.Info("state %s", Connected)
	}
	r.state = Connected
}

func (e *remoteEvents) OnError(err error) {
	e.r.reporter.ReportException(err, map[string]string{
		"service": remoteService,
		"event":   "connection-error",
	})
	e.r.log.Warn("connection error: %s", err)
	e.r.disconnect()
}

func (e *remoteEvents) OnReconnecting(attempt int, delay time.Duration) {
	e.r.reporter.ReportException(errors.Newf("reconnecting to redis, attempt %d in %s", attempt, delay), map[string]string{
		"service": remoteService,
		"event":   "reconnecting",
		"attempt": strconv.Itoa(attempt),
	})
	e.r.log.Debug("reconnecting attempt %d in %s", attempt, delay)
}

func (r *Remote) connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == Connected
}

func (r *Remote) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.queryTimeout <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, r.cfg.queryTimeout)
}

func (r *Remote) prefixKey(key string) string {
	if r.cfg.prefix == "" {
		return key
	}
	return r.cfg.prefix + ":" + key
}

func (r *Remote) fail(operation, key string, err error, mark error) error {
	err = errors.Mark(errors.Wrapf(err, "cache: %s %q", operation, key), mark)
	r.reporter.ReportException(err, map[string]string{
		"service":   remoteService,
		"operation": operation,
		"key":       key,
	})
	return err
}

func (r *Remote) Get(ctx context.Context, key string) (bool, any, error) {
	if !r.connected() {
		return false, nil, ErrNotConnected
	}
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	data, err := r.transport.Get(qctx, r.prefixKey(key))
	if errors.Is(err, ErrNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, r.fail("get", key, err, ErrTransport)
	}
	if len(data) == 0 {
		return false, nil, nil
	}
	val, err := r.cfg.codec.Unmarshal(data)
	if err != nil {
		return false, nil, r.fail("get", key, err, ErrSerialization)
	}
	if val == nil {
		return false, nil, nil
	}
	return true, val, nil
}

func (r *Remote) Set(ctx context.Context, key string, val any, expires time.Duration) error {
	if !r.connected() {
		return ErrNotConnected
	}
	if expires <= 0 {
		expires = r.cfg.defaultExpires
	}
	data, err := r.cfg.codec.Marshal(val)
	if err != nil {
		return r.fail("set", key, err, ErrSerialization)
	}
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	if err := r.transport.Set(qctx, r.prefixKey(key), data, expires); err != nil {
		return r.fail("set", key, err, ErrTransport)
	}
	return nil
}

func (r *Remote) Delete(ctx context.Context, key string) error {
	if !r.connected() {
		return ErrNotConnected
	}
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	if err := r.transport.Delete(qctx, r.prefixKey(key)); err != nil {
		return r.fail("delete", key, err, ErrTransport)
	}
	return nil
}

// Close stops any pending reconnect and closes the transport. A closed
// Remote stays Disconnected.
func (r *Remote) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.state = Disconnected
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
	r.mu.Unlock()
	r.cancel()
	return r.transport.Close()
}
