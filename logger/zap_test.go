package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerWritesSortedFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLoggerFrom(zap.New(core))

	l.Info("gate settled", map[string]any{"tier": "basic", "status": 200, "err": errors.New("boom")})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "gate settled", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "basic", ctx["tier"])
	assert.Equal(t, "boom", ctx["err"])
}

func TestNewZapLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewZapLogger("chatty")
	require.Error(t, err)

	l, err := NewZapLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestOrNoop(t *testing.T) {
	assert.Equal(t, NoopLogger{}, OrNoop(nil))
	l := NewZapLoggerFrom(zap.NewNop())
	assert.Same(t, l, OrNoop(l))
}
