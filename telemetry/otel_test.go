package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var mu sync.Mutex
	paths := map[string]string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths[r.URL.Path] = r.Header.Get("Authorization")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p, shutdown, err := New(context.Background(), server.URL, "token", "test-service")
	require.NoError(t, err)
	require.NotNil(t, p.Tracer)
	require.NotNil(t, p.Logger)

	_, span := p.Tracer.Start(context.Background(), "cache.get")
	span.End()
	p.Logger.Info("hello %s", "world")
	shutdown()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer token", paths["/v1/traces"])
	assert.Equal(t, "Bearer token", paths["/v1/logs"])
}

func TestNewWithInvalidURL(t *testing.T) {
	_, _, err := New(context.Background(), "://bad", "", "svc")
	assert.Error(t, err)

	_, _, err = New(context.Background(), "localhost", "", "svc")
	assert.Error(t, err)
}
