package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New("loud", false)
	assert.Error(t, err)
}

func TestNew_SetsGlobal(t *testing.T) {
	log, err := New("warn", false)
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.NotNil(t, Global())
	Sync()
}

func TestWith_CarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := FromZap(zap.New(core)).With("loop", "backup")

	log.Debug("dropped")
	log.Info("backup completed", "path", "/tmp/x.db")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "backup completed", entries[0].Message)
	assert.Equal(t, map[string]any{"loop": "backup", "path": "/tmp/x.db"}, entries[0].ContextMap())
}
