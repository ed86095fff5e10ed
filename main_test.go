package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"whisperpad/config"
	"whisperpad/engine"
	"whisperpad/reflow"
	"whisperpad/worker"
)

type scriptedEngine struct {
	lines  []string
	result *engine.Result
	err    error
}

func (s *scriptedEngine) Name() string { return "scripted" }

func (s *scriptedEngine) Load(ctx context.Context, model string, out engine.LineFunc) error {
	out("warming up " + model)
	return nil
}

func (s *scriptedEngine) Transcribe(ctx context.Context, req engine.Request, out engine.LineFunc) (*engine.Result, error) {
	for _, l := range s.lines {
		out(l)
	}
	return s.result, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	require.NoError(t, cfg.Validate())
	return cfg
}

// parsedFlags binds the transcribe flags to a fresh command and parses args
func parsedFlags(t *testing.T, args ...string) (*cobra.Command, TranscribeOptions) {
	t.Helper()
	cmd := &cobra.Command{}
	var o TranscribeOptions
	bindTranscribeFlags(cmd, &o)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, o
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{512, "512 bytes"},
		{2048, "2.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, formatFileSize(tt.bytes))
	}
}

func TestBuildEngine(t *testing.T) {
	cfg := validConfig(t)

	eng, err := buildEngine(cfg, engine.CPU, discardLogger())
	require.NoError(t, err)
	require.Equal(t, "whisper", eng.Name())

	cfg.Engine.Name = config.EngineScribe
	_, err = buildEngine(cfg, engine.CPU, discardLogger())
	require.ErrorContains(t, err, "ELEVENLABS_API_KEY")

	cfg.Engine.ScribeAPIKey = "key"
	eng, err = buildEngine(cfg, engine.CPU, discardLogger())
	require.NoError(t, err)
	require.Equal(t, "scribe", eng.Name())
}

func TestApplyFlags(t *testing.T) {
	t.Run("only changed flags override", func(t *testing.T) {
		cmd, o := parsedFlags(t, "--mode", "Continuous", "--width", "40", "--timestamps=false", "--translate")

		cfg := validConfig(t)
		cfg.Engine.Language = "de"
		require.NoError(t, o.applyFlags(cmd, cfg))

		require.Equal(t, reflow.ModeContinuous, cfg.Output.Mode)
		require.Equal(t, 40, cfg.Output.LineLength)
		require.False(t, *cfg.Output.Timestamps)
		require.Equal(t, engine.TaskTranslate, cfg.Engine.Task)
		require.Equal(t, "de", cfg.Engine.Language)
		require.Equal(t, engine.DefaultModel, cfg.Engine.Model)
	})

	t.Run("narrow width is coerced", func(t *testing.T) {
		cmd, o := parsedFlags(t, "--width", "5")
		cfg := validConfig(t)
		require.NoError(t, o.applyFlags(cmd, cfg))
		require.Equal(t, reflow.DefaultLineLength, cfg.Output.LineLength)
	})

	t.Run("bad values are rejected", func(t *testing.T) {
		for _, args := range [][]string{
			{"--mode", "poem"},
			{"--engine", "vosk"},
			{"--model", "huge"},
		} {
			cmd, o := parsedFlags(t, args...)
			require.Error(t, o.applyFlags(cmd, validConfig(t)), "args %v", args)
		}
	})
}

func TestAwaitTerminal(t *testing.T) {
	eng := &scriptedEngine{
		lines:  []string{"engine chatter", " 50%|#####     | 5/10"},
		result: &engine.Result{Text: "Hi.", Segments: []engine.Segment{{Start: 0, End: 1, Text: "Hi."}}},
	}
	w := worker.New(eng, engine.CPU, worker.WithLogger(discardLogger()))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := w.LoadModel(ctx, engine.ModelBase)
	require.NoError(t, err)
	var loadLog strings.Builder
	loaded := awaitTerminal(ctx, w, &loadLog, false)
	require.Equal(t, worker.EventModelLoaded, loaded.Kind)
	require.NoError(t, loaded.Err)
	require.Contains(t, loadLog.String(), "warming up base")
	require.True(t, w.ModelReady())

	t.Run("quiet", func(t *testing.T) {
		_, err := w.Start(ctx, engine.Request{FilePath: "/tmp/clip.wav"})
		require.NoError(t, err)
		var out strings.Builder
		done := awaitTerminal(ctx, w, &out, false)
		require.Equal(t, worker.EventCompleted, done.Kind)
		require.NotContains(t, out.String(), "engine chatter")
		require.Contains(t, out.String(), worker.ProcessingStarted)
	})

	t.Run("verbose", func(t *testing.T) {
		_, err := w.Start(ctx, engine.Request{FilePath: "/tmp/clip.wav"})
		require.NoError(t, err)
		var out strings.Builder
		awaitTerminal(ctx, w, &out, true)
		require.Contains(t, out.String(), "engine chatter")
	})

	t.Run("failure", func(t *testing.T) {
		eng.err = errors.New("decoder crashed")
		_, err := w.Start(ctx, engine.Request{FilePath: "/tmp/clip.wav"})
		require.NoError(t, err)
		var out strings.Builder
		done := awaitTerminal(ctx, w, &out, false)
		require.Equal(t, worker.EventFailed, done.Kind)
		var engErr *worker.EngineError
		require.ErrorAs(t, done.Err, &engErr)
		require.Contains(t, out.String(), "decoder crashed")
	})
}

func TestRenderTranscript(t *testing.T) {
	ev := worker.Event{
		Kind:    worker.EventCompleted,
		Request: engine.Request{FilePath: "/data/talk.wav"},
		Result:  &engine.Result{Text: "Hello world.", Language: "en"},
		Elapsed: 2 * time.Second,
	}
	cfg := reflow.DefaultFormatConfig()

	full := renderTranscript(ev, cfg, "CPU", false)
	require.True(t, strings.HasPrefix(full, "=== TRANSCRIPTION RESULT ===\n"), "header:\n%s", full)
	require.Contains(t, full, "File: talk.wav")

	require.Equal(t, "Hello world.", renderTranscript(ev, cfg, "CPU", true))
}
