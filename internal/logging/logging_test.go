package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/wavebot/internal/config"
)

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "wavebot.log")

	logger, closer, err := New(config.LogConfig{Level: "warn", File: path})
	require.NoError(t, err)
	logger.Info().Msg("hidden")
	logger.Warn().Str("component", "test").Msg("shown")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), `"message":"shown"`)
	assert.Contains(t, string(data), `"time":`)
}

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"error", zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, closer, err := New(config.LogConfig{Level: tt.level, File: Console})
			require.NoError(t, err)
			defer closer.Close()
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "loud", File: Console})
	assert.Error(t, err)
}

func TestNew_NoFileDisablesLogging(t *testing.T) {
	logger, closer, err := New(config.LogConfig{Level: "debug"})
	require.NoError(t, err)
	require.NotNil(t, closer)
	assert.Equal(t, zerolog.Disabled, logger.GetLevel())
}
