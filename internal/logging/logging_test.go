package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", "json", false)

	log.Info("batch submitted", "distribution", "DIST-20260301-ABCDEF12", "empty", "")
	log.Debug("hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "batch submitted", entry["msg"])
	assert.Equal(t, "DIST-20260301-ABCDEF12", entry["distribution"])
	assert.NotContains(t, entry, "empty")
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`, entry["time"])
}

func TestNewWithWriter_VerboseEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "error", "text", true)
	log.Debug("sweep tick")
	assert.Contains(t, buf.String(), "sweep tick")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestFormatRFC3339Millis(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 4, 5, 123456789, time.FixedZone("IST", 5*3600+1800))
	assert.Equal(t, "2026-03-01T04:34:05.123Z", formatRFC3339Millis(ts))
}
