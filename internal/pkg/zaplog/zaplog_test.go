package zaplog

import (
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := New(zap.New(core))

	h := log.NewHelper(log.With(logger, "module", "test"))
	h.Infof("added %q", "Batman Begins")
	h.Warnw("client", "10.0.0.1", "rating", 4.5)
	require.NoError(t, logger.Log(log.LevelError, "odd"))

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, `added "Batman Begins"`, entries[0].Message)
	assert.Equal(t, "test", entries[0].ContextMap()["module"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "10.0.0.1", entries[1].ContextMap()["client"])
	assert.Equal(t, 4.5, entries[1].ContextMap()["rating"])

	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "KEYVALS UNPAIRED", entries[2].ContextMap()["odd"])
}

func TestNewProductionRejectsBadLevel(t *testing.T) {
	_, err := NewProduction("loud", false)
	assert.Error(t, err)

	l, err := NewProduction("debug", true)
	require.NoError(t, err)
	assert.NotNil(t, l)
}
