package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enginemon/internal/config"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{in: "", want: zerolog.InfoLevel},
		{in: "debug", want: zerolog.DebugLevel},
		{in: "warn", want: zerolog.WarnLevel},
		{in: "trace", want: zerolog.TraceLevel},
		{in: "loud", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_ConsoleFiltersByLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, closer, err := New(config.LogConfig{Level: "warn", Console: true}, &buf)
	require.NoError(t, err)
	defer func() { _ = closer.Close() }()

	logger.Info().Msg("quiet")
	logger.Warn().Str("link", "engine").Msg("loud")

	out := buf.String()
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "loud")
	assert.Contains(t, out, "engine")
}

func TestNew_WritesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "enginemon.log")
	logger, closer, err := New(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1, MaxBackups: 1}, nil)
	require.NoError(t, err)

	logger.Info().Str("class", "link_up").Msg("engine link connected")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"class":"link_up"`)
	assert.Contains(t, string(b), `"message":"engine link connected"`)
}

func TestNew_BadLevel(t *testing.T) {
	t.Parallel()

	_, _, err := New(config.LogConfig{Level: "chatty", Console: true}, &bytes.Buffer{})
	require.Error(t, err)
}
