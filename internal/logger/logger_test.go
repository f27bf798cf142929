package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultConfig(t *testing.T) {
	log := New(Config{Level: "info", Pretty: false})
	require.NotNil(t, log)

	var buf bytes.Buffer
	log = log.Output(&buf)
	log.Info().Msg("test message")

	assert.Contains(t, buf.String(), "test message")
}

func TestNew_AllLogLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			New(Config{Level: tt.level})
			assert.Equal(t, tt.want, zerolog.GlobalLevel())
		})
	}
}

func TestNew_ErrorLevelFiltersLower(t *testing.T) {
	log := New(Config{Level: "error"})
	var buf bytes.Buffer
	log = log.Output(&buf)

	log.Info().Msg("should not appear")
	assert.NotContains(t, buf.String(), "should not appear")

	log.Error().Msg("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestNew_PrettyOutputProducesNonEmptyOutput(t *testing.T) {
	log := New(Config{Level: "info", Pretty: true})
	var buf bytes.Buffer
	log = log.Output(&buf)
	log.Info().Str("key", "value").Msg("test")

	assert.Contains(t, buf.String(), "test")
}

func TestNew_TimestampIsAttached(t *testing.T) {
	log := New(Config{Level: "info"})
	var buf bytes.Buffer
	log = log.Output(&buf)
	log.Info().Msg("timestamped")

	assert.Contains(t, buf.String(), "\"time\"")
}
