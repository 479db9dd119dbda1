package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "json")

	logger.Debug("hidden")
	logger.Info("converted", "file", "a.sn3")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "converted", entry["msg"])
	assert.Equal(t, "a.sn3", entry["file"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "debug", "text")

	logger.Debug("staging", "file", "b.sn1")
	assert.Contains(t, buf.String(), "msg=staging")
	assert.Contains(t, buf.String(), "file=b.sn1")
}

func TestNewMetricsForTesting(t *testing.T) {
	m := NewMetricsForTesting()
	m.AttachmentsConverted.WithLabelValues("forecast").Inc()
	m.WeatherRequests.WithLabelValues("unavailable").Inc()
	m.AttachmentsSkipped.Inc()
	assert.NotNil(t, m.ConversionDuration)
}
