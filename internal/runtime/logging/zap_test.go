package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapServiceLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapServiceLogger(zap.New(core))

	logger.Info("published", LogFields{"correlation_id": "01H"})
	logger.Debug("received", nil)
	logger.Trace("span", LogFields{"source": "search"})
	logger.Error("reply failed", errors.New("boom"), LogFields{"reply_to": "gateway.response"})

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "01H", entries[0].ContextMap()["correlation_id"])

	assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
	assert.Equal(t, true, entries[2].ContextMap()["trace"])

	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "boom", entries[3].ContextMap()["error"])
}

func TestZapServiceLoggerWith(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := NewZapServiceLogger(zap.New(core))

	same := logger.With(nil)
	assert.Same(t, logger, same)

	child := logger.With(LogFields{"role": "worker"})
	child.Info("ready", nil)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "worker", logs.All()[0].ContextMap()["role"])
}

func TestZapServiceLoggerPanicsOnNil(t *testing.T) {
	assert.Panics(t, func() { NewZapServiceLogger(nil) })
}

func TestNewProductionZapLogger(t *testing.T) {
	logger, err := NewProductionZapLogger(int(zapcore.WarnLevel))
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))
}
