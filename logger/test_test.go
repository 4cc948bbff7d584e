package logger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTestLoggerMethods(t *testing.T) {
	logger := NewTestLogger()

	logger.Trace("Trace message", 1)
	logger.Debug("Debug message", 2)
	logger.Info("Info message", 3)
	logger.Warn("Warn message", 4)
	logger.Error("Error message", 5)

	logs := logger.Logs()
	assert.Len(t, logs, 5)
	assert.Equal(t, "TRACE", logs[0].Severity)
	assert.Equal(t, "Trace message", logs[0].Message)
	assert.Equal(t, []interface{}{1}, logs[0].Arguments)
	assert.Equal(t, "WARNING", logs[3].Severity)
	assert.Equal(t, "ERROR", logs[4].Severity)
}

func TestTestLoggerWithSharesEntries(t *testing.T) {
	logger := NewTestLogger()
	child := logger.With(map[string]interface{}{"service": "CacheService"})
	child.Info("from child")
	logger.Info("from parent")

	logs := logger.Logs()
	assert.Len(t, logs, 2)
	assert.Equal(t, "CacheService", logs[0].Metadata["service"])
	assert.Nil(t, logs[1].Metadata["service"])
	assert.Len(t, logger.Find("INFO", "child"), 1)
}

func TestTestLoggerConcurrent(t *testing.T) {
	logger := NewTestLogger()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Debug("tick")
		}()
	}
	wg.Wait()
	assert.Len(t, logger.Logs(), 20)
}
