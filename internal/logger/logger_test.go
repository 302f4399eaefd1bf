package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	require.Error(t, err)
}

func TestNew_DebugOverridesLevel(t *testing.T) {
	l, err := New(&Config{Level: "error", Debug: true, Output: "stdout"})
	require.NoError(t, err)
	assert.NotNil(t, l.Debug())
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer

	l := NewWithWriter(&buf, zerolog.InfoLevel)
	c := l.WithComponent("lookup")
	c.Info().Str("host", "sw1").Msg("processing")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "lookup", entry["component"])
	assert.Equal(t, "sw1", entry["host"])
	assert.Equal(t, "processing", entry["message"])
}

func TestDefaultConfig_Env(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("DEBUG", "yes")

	cfg := DefaultConfig()
	assert.Equal(t, "warn", cfg.Level)
	assert.True(t, cfg.Debug)
}

func TestNewTestLogger_Discards(t *testing.T) {
	l := NewTestLogger()
	l.Error().Msg("nothing to see")
}

func TestTee(t *testing.T) {
	var primary, file bytes.Buffer

	l := Tee(NewWithWriter(&primary, zerolog.InfoLevel), &file)
	l.Debug().Msg("below level")
	c := l.WithComponent("pipeline")
	c.Info().Str("batch", "2025-09-18T08:00:00Z").Msg("Run started")

	for _, buf := range []*bytes.Buffer{&primary, &file} {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "pipeline", entry["component"])
		assert.Equal(t, "Run started", entry["message"])
	}
}
