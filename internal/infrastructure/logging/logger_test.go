package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud", OutputPaths: []string{"stdout"}})
	assert.Error(t, err)
}

func TestNewConfigs(t *testing.T) {
	for _, cfg := range []Config{DefaultConfig(), DevelopmentConfig()} {
		l, err := New(cfg)
		require.NoError(t, err)
		require.NotNil(t, l.Logger)
	}
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil).Logger)
	assert.NotNil(t, OrNop(&Logger{}).Logger)
	l := Nop()
	assert.Same(t, l, OrNop(l))
}

func TestChildLoggers(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := &Logger{Logger: zap.New(core)}

	base.ForComponent("connect").ForUser(100).Info("started")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "connect", entries[0].LoggerName)
	assert.Equal(t, int64(100), entries[0].ContextMap()["user_id"])
}
