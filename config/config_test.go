package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"whisperpad/engine"
	"whisperpad/reflow"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whisperpad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, EngineWhisper, cfg.Engine.Name)
	require.Equal(t, engine.DefaultModel, cfg.Engine.Model)
	require.Equal(t, engine.TaskTranscribe, cfg.Engine.Task)
	require.Equal(t, "transcription.log", cfg.Logging.File)
	require.Equal(t, slog.LevelInfo, cfg.LogLevel())
	require.Equal(t, reflow.DefaultFormatConfig(), cfg.FormatConfig())

	req := cfg.Request("a.wav")
	require.Equal(t, "a.wav", req.FilePath)
	require.True(t, req.WordTimestamps)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
engine:
  model: small
  language: ru
output:
  line_length: 100
  mode: paragraphs
  timestamps: false
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, engine.ModelSmall, cfg.Engine.Model)
	require.Equal(t, "ru", cfg.Engine.Language)
	require.Equal(t, slog.LevelDebug, cfg.LogLevel())
	require.Equal(t, reflow.FormatConfig{MaxLineLength: 100, Mode: reflow.ModeParagraphs}, cfg.FormatConfig())
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "engine:\n  model: small\n")
	t.Setenv("WHISPERPAD_MODEL", "medium")
	t.Setenv("WHISPERPAD_LINE_LENGTH", "12")
	t.Setenv("WHISPERPAD_TIMESTAMPS", "false")
	t.Setenv("ELEVENLABS_API_KEY", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, engine.ModelMedium, cfg.Engine.Model)
	require.Equal(t, reflow.DefaultLineLength, cfg.Output.LineLength)
	require.False(t, cfg.FormatConfig().ShowTimestamps)
	require.Equal(t, "secret", cfg.Engine.ScribeAPIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "scribe with any model", body: "engine:\n  name: scribe\n  model: scribe_v1\n"},
		{name: "unknown engine", body: "engine:\n  name: vosk\n", wantErr: true},
		{name: "unknown whisper model", body: "engine:\n  model: tiny-ultra\n", wantErr: true},
		{name: "unknown task", body: "engine:\n  task: summarize\n", wantErr: true},
		{name: "unknown mode", body: "output:\n  mode: columns\n", wantErr: true},
		{name: "bad level", body: "logging:\n  level: loud\n", wantErr: true},
		{name: "narrow width coerced", body: "output:\n  line_length: 5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
