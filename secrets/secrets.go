// Package secrets resolves named secrets from a secret store, caching them
// in process and falling back to environment variables of the same name.
package secrets

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/higuera/dashboard/cache"
	"github.com/higuera/dashboard/config"
	"github.com/higuera/dashboard/monitoring"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a resolved secret is cached.
const DefaultTTL = time.Hour

// ErrNotFound is returned by a Source for an unknown secret.
var ErrNotFound = errors.New("secret not found")

// Source is a secret store such as a key vault.
type Source interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, name string) (string, error)

func (f SourceFunc) GetSecret(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// Resolver looks secrets up in a Source, caching hits for the TTL.
type Resolver struct {
	source   Source
	cache    *cache.Local
	ttl      time.Duration
	lookup   config.LookupFunc
	reporter monitoring.Reporter
	group    singleflight.Group
}

type options struct {
	ttl      time.Duration
	lookup   config.LookupFunc
	reporter monitoring.Reporter
	now      func() time.Time
}

// Option configures a Resolver.
type Option func(*options)

// WithTTL sets how long resolved secrets are cached.
func WithTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

// WithLookup replaces os.LookupEnv for the environment fallback.
func WithLookup(fn config.LookupFunc) Option {
	return func(o *options) { o.lookup = fn }
}

// WithReporter sets where source failures are reported.
func WithReporter(r monitoring.Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithClock replaces time.Now for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewResolver returns a Resolver. A nil source reads the environment only.
func NewResolver(source Source, opts ...Option) *Resolver {
	o := options{ttl: DefaultTTL, lookup: os.LookupEnv, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Resolver{
		source:   source,
		cache:    cache.NewLocal(cache.WithExpires(o.ttl), cache.WithClock(o.now)),
		ttl:      o.ttl,
		lookup:   o.lookup,
		reporter: monitoring.Safe(o.reporter),
	}
}

// Resolve returns the secret called name. Secrets from the source are
// cached; on a source failure the failure is reported and the environment
// variable called name is returned instead.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, bool) {
	if r.source == nil {
		return r.lookup(name)
	}
	v, err, _ := r.group.Do(name, func() (any, error) {
		found, val, err := cache.Exec(ctx, cache.CacheConfig{Key: name, Expires: r.ttl}, r.cache, func(ctx context.Context) (string, bool, error) {
			val, err := r.source.GetSecret(ctx, name)
			if err != nil {
				return "", false, err
			}
			return val, true, nil
		})
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrNotFound
		}
		return val, nil
	})
	if err != nil {
		r.reporter.ReportException(err, map[string]string{
			"operation":  "getSecretConfig",
			"secretName": name,
		})
		return r.lookup(name)
	}
	return v.(string), true
}

// Invalidate drops name from the cache so the next Resolve asks the source.
func (r *Resolver) Invalidate(ctx context.Context, name string) {
	_ = r.cache.Delete(ctx, name)
}
