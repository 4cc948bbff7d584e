package cache

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/higuera/dashboard/resilience"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPort = "6379"

// ParseConnectionString accepts either a redis:// or rediss:// URL or an
// Azure-style string such as
//
//	myhost.redis.cache.windows.net:6380,password=secret,ssl=True,abortConnect=False
func ParseConnectionString(cs string) (*redis.Options, error) {
	cs = strings.TrimSpace(cs)
	if cs == "" {
		return nil, errors.Mark(errors.New("cache: empty connection string"), ErrConfiguration)
	}
	if strings.Contains(cs, "://") {
		opts, err := redis.ParseURL(cs)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "cache: invalid connection string"), ErrConfiguration)
		}
		return opts, nil
	}
	parts := strings.Split(cs, ",")
	addr := strings.TrimSpace(parts[0])
	if addr == "" || strings.Contains(addr, "=") {
		return nil, errors.Mark(errors.New("cache: connection string has no host"), ErrConfiguration)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, defaultRedisPort)
	}
	opts := &redis.Options{Addr: addr}
	for _, part := range parts[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.ToLower(k) {
		case "password":
			opts.Password = v
		case "user", "username":
			opts.Username = v
		case "ssl":
			if on, _ := strconv.ParseBool(v); on {
				host, _, _ := net.SplitHostPort(addr)
				opts.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
			}
		case "defaultdatabase":
			db, err := strconv.Atoi(v)
			if err != nil {
				return nil, errors.Mark(errors.Wrapf(err, "cache: invalid defaultDatabase %q", v), ErrConfiguration)
			}
			opts.DB = db
		}
	}
	return opts, nil
}

// isConnectionError reports whether err means the connection itself failed
// rather than the command.
func isConnectionError(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, redis.ErrClosed) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// session tracks one client's lifetime. Events are only forwarded for the
// current, established session so a retired client cannot flap state.
type session struct {
	events      ConnectionEvents
	established atomic.Bool
	retired     atomic.Bool
}

func (s *session) live() bool {
	return s.established.Load() && !s.retired.Load()
}

type lifecycleHook struct {
	s *session
}

var _ redis.Hook = lifecycleHook{}

func (h lifecycleHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil && h.s.live() {
			h.s.events.OnError(err)
		}
		return conn, err
	}
}

func (h lifecycleHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if isConnectionError(err) && h.s.live() {
			h.s.events.OnError(err)
		}
		return err
	}
}

func (h lifecycleHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if isConnectionError(err) && h.s.live() {
			h.s.events.OnError(err)
		}
		return err
	}
}

type redisTransport struct {
	connectionString string
	connectTimeout   time.Duration
	retry            resilience.RetryConfig

	mu      sync.RWMutex
	client  *redis.Client
	session *session
	closed  bool
}

var _ Transport = (*redisTransport)(nil)

// NewRedisTransport returns a Transport that dials connectionString with
// go-redis. Command-level retries are disabled; reconnects are driven by
// Remote. The connection string is parsed on Connect so a malformed string
// surfaces as a connection failure.
func NewRedisTransport(connectionString string, connectTimeout time.Duration, retry resilience.RetryConfig) Transport {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &redisTransport{
		connectionString: connectionString,
		connectTimeout:   connectTimeout,
		retry:            retry,
	}
}

func (t *redisTransport) Connect(ctx context.Context, events ConnectionEvents) error {
	opts, err := ParseConnectionString(t.connectionString)
	if err != nil {
		return err
	}
	opts.DialTimeout = t.connectTimeout
	opts.MaxRetries = -1
	// socket deadlines follow the caller's context, so query and
	// handshake timeouts apply instead of ReadTimeout
	opts.ContextTimeoutEnabled = true
	s := &session{events: events}
	opts.OnConnect = func(ctx context.Context, cn *redis.Conn) error {
		if s.live() {
			events.OnConnect()
		}
		return nil
	}
	client := redis.NewClient(opts)
	client.AddHook(lifecycleHook{s: s})

	retry := t.retry
	if retry.RetryableErrors == nil {
		retry.RetryableErrors = resilience.DefaultRetryableErrors
	}
	onRetry := retry.OnRetry
	retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		events.OnReconnecting(attempt, delay)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}
	err = resilience.Retry(ctx, retry, func() error {
		pctx, cancel := context.WithTimeout(ctx, t.connectTimeout)
		defer cancel()
		return client.Ping(pctx).Err()
	})
	if err != nil {
		s.retired.Store(true)
		_ = client.Close()
		return errors.Wrap(err, "cache: redis connect")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		s.retired.Store(true)
		_ = client.Close()
		return redis.ErrClosed
	}
	old, oldSession := t.client, t.session
	t.client, t.session = client, s
	t.mu.Unlock()
	if oldSession != nil {
		oldSession.retired.Store(true)
	}
	if old != nil {
		_ = old.Close()
	}
	s.established.Store(true)
	events.OnConnect()
	return nil
}

func (t *redisTransport) current() (*redis.Client, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.client == nil {
		return nil, redis.ErrClosed
	}
	return t.client, nil
}

func (t *redisTransport) Get(ctx context.Context, key string) ([]byte, error) {
	client, err := t.current()
	if err != nil {
		return nil, err
	}
	data, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

func (t *redisTransport) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	client, err := t.current()
	if err != nil {
		return err
	}
	return client.Set(ctx, key, data, ttl).Err()
}

func (t *redisTransport) Delete(ctx context.Context, key string) error {
	client, err := t.current()
	if err != nil {
		return err
	}
	return client.Del(ctx, key).Err()
}

func (t *redisTransport) Close() error {
	t.mu.Lock()
	client, s := t.client, t.session
	t.client, t.session = nil, nil
	t.closed = true
	t.mu.Unlock()
	if s != nil {
		s.retired.Store(true)
	}
	if client == nil {
		return nil
	}
	return client.Close()
}
