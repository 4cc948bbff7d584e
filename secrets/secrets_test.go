package secrets

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/higuera/dashboard/monitoring"
	"github.com/stretchr/testify/assert"
)

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestResolveFromSourceIsCached(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var calls atomic.Int32
	source := SourceFunc(func(ctx context.Context, name string) (string, error) {
		calls.Add(1)
		return "vault-" + name, nil
	})
	r := NewResolver(source, WithClock(func() time.Time { return now }), WithLookup(envOf(nil)))

	v, ok := r.Resolve(ctx, "JWT_SECRET")
	assert.True(t, ok)
	assert.Equal(t, "vault-JWT_SECRET", v)

	v, ok = r.Resolve(ctx, "JWT_SECRET")
	assert.True(t, ok)
	assert.Equal(t, "vault-JWT_SECRET", v)
	assert.Equal(t, int32(1), calls.Load())

	// Expires after an hour.
	now = now.Add(time.Hour)
	r.Resolve(ctx, "JWT_SECRET")
	assert.Equal(t, int32(2), calls.Load())
}

func TestResolveFallsBackToEnvOnError(t *testing.T) {
	ctx := context.Background()
	rec := monitoring.NewRecorder()
	source := SourceFunc(func(ctx context.Context, name string) (string, error) {
		return "", errors.New("vault unavailable")
	})
	r := NewResolver(source, WithReporter(rec), WithLookup(envOf(map[string]string{"JWT_SECRET": "from-env"})))

	v, ok := r.Resolve(ctx, "JWT_SECRET")
	assert.True(t, ok)
	assert.Equal(t, "from-env", v)
	assert.Len(t, rec.Matching(map[string]string{"operation": "getSecretConfig", "secretName": "JWT_SECRET"}), 1)

	_, ok = r.Resolve(ctx, "MISSING")
	assert.False(t, ok)
}

func TestResolveWithoutSourceUsesEnv(t *testing.T) {
	r := NewResolver(nil, WithLookup(envOf(map[string]string{"A": "1"})))
	v, ok := r.Resolve(context.Background(), "A")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestResolveDeduplicatesConcurrentLookups(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})
	source := SourceFunc(func(ctx context.Context, name string) (string, error) {
		calls.Add(1)
		<-release
		return "v", nil
	})
	r := NewResolver(source)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, ok := r.Resolve(ctx, "K")
			assert.True(t, ok)
			assert.Equal(t, "v", v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))

	r.Resolve(ctx, "K")
	before := calls.Load()
	r.Invalidate(ctx, "K")
	r.Resolve(ctx, "K")
	assert.Equal(t, before+1, calls.Load())
}
