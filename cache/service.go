package cache

import (
	"context"
	"time"

	"github.com/higuera/dashboard/config"
	"github.com/higuera/dashboard/logger"
	"github.com/higuera/dashboard/monitoring"
)

// Mode describes which tier is serving a Service.
type Mode int

const (
	// ModeLocal means no remote tier is configured.
	ModeLocal Mode = iota
	// ModeRemote means the remote tier is connected.
	ModeRemote
	// ModeDegraded means the remote tier is configured but not connected,
	// so operations are served by the local fallback.
	ModeDegraded
)

func (m Mode) String() string {
	switch m {
	case ModeRemote:
		return "remote"
	case ModeDegraded:
		return "degraded"
	default:
		return "local"
	}
}

const serviceName = "CacheService"

// Service is the cache callers use. It sends every operation to the primary
// tier and, if that fails, reports the failure and repeats the operation on
// the local fallback. It never returns an error.
type Service struct {
	primary  Cache
	fallback *Local
	remote   *Remote
	reporter monitoring.Reporter
	log      logger.Logger
}

// NewService builds a Service from cfg. When cfg has a Redis connection
// string the primary is a Remote whose first connection attempt runs in the
// background; otherwise the primary is the local fallback itself. opts are
// applied after the options derived from cfg.
func NewService(cfg config.Config, opts ...Option) (*Service, error) {
	base, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	all := append(base, opts...)
	resolved := applyOptions(all)
	s := &Service{
		fallback: NewLocal(all...),
		reporter: resolved.reporter,
		log:      resolved.logger.WithPrefix("[cache]"),
	}
	if !cfg.RemoteEnabled() {
		s.primary = s.fallback
		s.log.Debug("no redis connection string, using local cache")
		return s, nil
	}
	remote, err := NewRemote(cfg.RedisConnectionString, all...)
	if err != nil {
		return nil, err
	}
	s.remote = remote
	s.primary = remote
	go remote.InitializeConnection(remote.ctx)
	return s, nil
}

// Mode reports which tier is currently serving.
func (s *Service) Mode() Mode {
	if s.remote == nil {
		return ModeLocal
	}
	if s.remote.State() == Connected {
		return ModeRemote
	}
	return ModeDegraded
}

// Remote returns the remote tier, or nil when none is configured.
func (s *Service) Remote() *Remote {
	return s.remote
}

func (s *Service) report(operation, key string, err error) {
	s.reporter.ReportException(err, map[string]string{
		"service":   serviceName,
		"operation": operation,
		"key":       key,
	})
	s.log.Warn("%s %q failed, using local fallback: %s", operation, key, err)
}

// Get returns the value stored under key, or found=false.
func (s *Service) Get(ctx context.Context, key string) (bool, any) {
	found, val, err := s.primary.Get(ctx, key)
	if err == nil {
		return found, val
	}
	s.report("get", key, err)
	found, val, _ = s.fallback.Get(ctx, key)
	return found, val
}

// Set stores val under key. If expires <= 0 the default TTL applies.
func (s *Service) Set(ctx context.Context, key string, val any, expires time.Duration) {
	if err := s.primary.Set(ctx, key, val, expires); err != nil {
		s.report("set", key, err)
		_ = s.fallback.Set(ctx, key, val, expires)
	}
}

// Delete removes key.
func (s *Service) Delete(ctx context.Context, key string) {
	if err := s.primary.Delete(ctx, key); err != nil {
		s.report("delete", key, err)
		_ = s.fallback.Delete(ctx, key)
	}
}

// Close shuts down the remote tier.
func (s *Service) Close(ctx context.Context) error {
	if s.remote == nil {
		return nil
	}
	return s.remote.Close(ctx)
}

// GetAs returns the value under key converted to T. A value that cannot be
// converted is reported and treated as absent.
func GetAs[T any](ctx context.Context, s *Service, key string) (bool, T) {
	var zero T
	found, val := s.Get(ctx, key)
	if !found {
		return false, zero
	}
	typed, err := convert[T](val)
	if err != nil {
		s.report("get", key, err)
		return false, zero
	}
	return true, typed
}
