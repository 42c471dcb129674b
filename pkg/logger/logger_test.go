package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBuildRejectsUnknownLevel(t *testing.T) {
	_, err := build(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestBuildWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.log")
	l, err := build(Config{Level: "warn", OutputPaths: []string{path}})
	require.NoError(t, err)

	l.Info("dropped")
	l.Warn("reader invalidated")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "reader invalidated", entry["message"])
	assert.Contains(t, entry, "timestamp")
}

func TestFromContextAttachesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core).With(zap.String(FieldPool, "users"))

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = ContextWith(ctx, zap.String(FieldTable, "users_v2"))
	FromContext(ctx, base).Debug("handle borrowed")
	FromContext(context.Background(), base).Debug("plain")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "users", fields[FieldPool])
	assert.Equal(t, "users_v2", fields[FieldTable])
	assert.Equal(t, "req-1", fields[FieldRequestID])
	assert.NotContains(t, entries[1].ContextMap(), FieldRequestID)
}

func TestContextWithDoesNotLeakIntoParent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	parent := WithRequestID(context.Background(), "req-1")
	_ = ContextWith(parent, zap.String(FieldTable, "child"))
	FromContext(parent, base).Info("parent")

	fields := logs.AllUntimed()[0].ContextMap()
	assert.Equal(t, "req-1", fields[FieldRequestID])
	assert.NotContains(t, fields, FieldTable)
}

func TestInitKeepsFirstLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "global.log")
	require.NoError(t, Init(Config{Level: "debug", OutputPaths: []string{path}}))
	first := Get()
	require.NoError(t, Init(Config{Level: "error"}))
	assert.Same(t, first, Get())

	WithContext(WithRequestID(context.Background(), "req-2")).Debug("borrowed")
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "req-2", entry[FieldRequestID])
}
