package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/higuera/dashboard/config"
	"github.com/higuera/dashboard/logger"
	"github.com/higuera/dashboard/monitoring"
	"github.com/higuera/dashboard/resilience"
)

// Cache is the capability set shared by both tiers.
type Cache interface {
	// Get returns the stored value for key. A missing or expired key is
	// reported as found=false with a nil error.
	Get(ctx context.Context, key string) (bool, any, error)
	// Set stores val under key for expires. If expires <= 0 the configured
	// default TTL is used.
	Set(ctx context.Context, key string, val any, expires time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// DefaultExpires is the TTL used when Set is called without one.
const DefaultExpires = 300 * time.Second

// DefaultReconnectDelay is how long the remote tier waits before trying to
// connect again after losing its connection.
const DefaultReconnectDelay = 5 * time.Second

// DefaultConnectTimeout bounds a single connection handshake.
const DefaultConnectTimeout = 15 * time.Second

// DefaultSweepThreshold is the entry count above which the local tier
// sweeps expired entries on Set.
const DefaultSweepThreshold = 100

// settings holds the resolved configuration shared by the cache tiers.
type settings struct {
	defaultExpires time.Duration
	queryTimeout   time.Duration
	prefix         string
	sweepThreshold int
	now            func() time.Time
	reconnectDelay time.Duration
	connectTimeout time.Duration
	retry          resilience.RetryConfig
	codec          Codec
	scheduler      Scheduler
	transport      Transport
	reporter       monitoring.Reporter
	logger         logger.Logger
}

// Option configures a cache tier or the Service.
type Option func(*settings)

func defaultSettings() settings {
	return settings{
		defaultExpires: DefaultExpires,
		sweepThreshold: DefaultSweepThreshold,
		now:            time.Now,
		reconnectDelay: DefaultReconnectDelay,
		connectTimeout: DefaultConnectTimeout,
		retry:          resilience.DefaultRetryConfig(),
		codec:          JSON,
		scheduler:      realScheduler{},
		reporter:       monitoring.Nop,
		logger:         logger.NewConsoleLogger(logger.LevelNone),
	}
}

func applyOptions(opts []Option) settings {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.reporter = monitoring.Safe(cfg.reporter)
	return cfg
}

// WithExpires sets the default TTL used when Set is called with expires <= 0.
func WithExpires(d time.Duration) Option {
	return func(c *settings) {
		if d > 0 {
			c.defaultExpires = d
		}
	}
}

// WithQueryTimeout bounds every remote call. Zero, the default, leaves calls
// bounded only by the caller's context.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *settings) { c.queryTimeout = d }
}

// WithPrefix namespaces remote keys as "<prefix>:<key>". Applies to Remote.
func WithPrefix(p string) Option {
	return func(c *settings) { c.prefix = p }
}

// WithSweepThreshold sets the entry count above which Local sweeps expired
// entries on Set.
func WithSweepThreshold(n int) Option {
	return func(c *settings) { c.sweepThreshold = n }
}

// WithClock replaces time.Now for expiry decisions in Local.
func WithClock(now func() time.Time) Option {
	return func(c *settings) { c.now = now }
}

// WithReconnectDelay sets the delay before Remote retries a lost connection.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *settings) { c.reconnectDelay = d }
}

// WithConnectTimeout bounds each connection handshake of the remote transport.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *settings) { c.connectTimeout = d }
}

// WithRetry sets the transport-level dial retry schedule.
func WithRetry(r resilience.RetryConfig) Option {
	return func(c *settings) { c.retry = r }
}

// WithCodec sets the value encoding used by Remote.
func WithCodec(codec Codec) Option {
	return func(c *settings) { c.codec = codec }
}

// WithScheduler replaces the timer source used for reconnects.
func WithScheduler(s Scheduler) Option {
	return func(c *settings) { c.scheduler = s }
}

// WithTransport replaces the Redis transport used by Remote.
func WithTransport(t Transport) Option {
	return func(c *settings) { c.transport = t }
}

// WithReporter sets the observability collaborator that receives exceptions.
func WithReporter(r monitoring.Reporter) Option {
	return func(c *settings) { c.reporter = r }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *settings) { c.logger = l }
}

// OptionsFromConfig translates a loaded configuration into options.
func OptionsFromConfig(cfg config.Config) ([]Option, error) {
	codec, err := CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	retry := resilience.DefaultRetryConfig()
	if cfg.Retry.InitialDelay > 0 {
		retry.InitialBackoff = cfg.Retry.InitialDelay.Std()
	}
	if cfg.Retry.MaxDelay > 0 {
		retry.MaxBackoff = cfg.Retry.MaxDelay.Std()
	}
	if cfg.Retry.Multiplier >= 1 {
		retry.BackoffMultiplier = cfg.Retry.Multiplier
	}
	retry.MaxRetries = cfg.Retry.MaxAttempts
	opts := []Option{
		WithExpires(cfg.DefaultTTL.Std()),
		WithQueryTimeout(cfg.QueryTimeout.Std()),
		WithPrefix(cfg.KeyPrefix),
		WithCodec(codec),
		WithRetry(retry),
	}
	if cfg.ReconnectDelay > 0 {
		opts = append(opts, WithReconnectDelay(cfg.ReconnectDelay.Std()))
	}
	if cfg.ConnectTimeout > 0 {
		opts = append(opts, WithConnectTimeout(cfg.ConnectTimeout.Std()))
	}
	return opts, nil
}

// convert turns a stored value into T. Values held by Local come back as-is;
// values decoded by Remote are generic (map[string]any, float64, ...) and are
// re-decoded through JSON into T.
func convert[T any](val any) (T, error) {
	var zero T
	if typed, ok := val.(T); ok {
		return typed, nil
	}
	buf, err := json.Marshal(val)
	if err != nil {
		return zero, errors.Mark(errors.Wrapf(err, "cache: cannot convert %T", val), ErrSerialization)
	}
	var result T
	if err := json.Unmarshal(buf, &result); err != nil {
		return zero, errors.Mark(errors.Wrapf(err, "cache: cannot convert %T to %T", val, zero), ErrSerialization)
	}
	return result, nil
}

// Get retrieves a typed value from c.
func Get[T any](ctx context.Context, c Cache, key string) (bool, T, error) {
	var zero T
	found, val, err := c.Get(ctx, key)
	if !found || err != nil {
		return false, zero, err
	}
	typed, err := convert[T](val)
	if err != nil {
		return false, zero, err
	}
	return true, typed, nil
}

// CacheConfig configures the Exec helper.
type CacheConfig struct {
	// Expires is the TTL for cached values. The cache default applies if zero.
	Expires time.Duration
	// Key is the cache key. Required.
	Key string
}

// Invoker produces a value of type T. Returning found=false means "not
// found" and nothing is cached.
type Invoker[T any] func(ctx context.Context) (T, bool, error)

// Exec is a cache-aside helper. On a hit it returns the cached value. On a
// miss it calls invoke and caches the result when invoke reports found.
// Cache read errors are returned without invoking; a failed Set after a
// successful invoke is ignored since the caller still gets its value.
func Exec[T any](ctx context.Context, cfg CacheConfig, c Cache, invoke Invoker[T]) (bool, T, error) {
	var zero T
	found, val, err := Get[T](ctx, c, cfg.Key)
	if err != nil {
		return false, zero, err
	}
	if found {
		return true, val, nil
	}

	result, ok, err := invoke(ctx)
	if err != nil {
		return false, zero, err
	}
	if !ok {
		return false, zero, nil
	}

	_ = c.Set(ctx, cfg.Key, result, cfg.Expires)

	return true, result, nil
}
