package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}

func TestFromContext_AddsKnownKeys(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", "json")

	ctx := WithContext(context.Background(), RequestIDKey, "req-1")
	ctx = WithContext(ctx, RunIDKey, "run-7")
	Error(ctx, "ingestion step failed", errors.New("boom"), "source_key", "demo")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ingestion step failed", entry["msg"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "run-7", entry["run_id"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "demo", entry["source_key"])
}

func TestInitWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "info", "text")

	Debug(context.Background(), "hidden")
	Info(context.Background(), "shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
}
