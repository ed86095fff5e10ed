package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"whisperpad/config"
	"whisperpad/engine"
	"whisperpad/tui"
	"whisperpad/worker"
)

// Build info - set via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Styles
var (
	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B"))

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#95E1A3"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8A8A8"))
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "whisperpad [file]",
	Short: "Transcribe audio and video files from the terminal",
	Long: `whisperpad transcribes audio and video files with a local Whisper model
(or the ElevenLabs Scribe API) and reflows the transcript for reading,
saving and copying.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runTUI,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "whisperpad %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
		fmt.Fprintf(out, "  go:     %s\n", runtime.Version())
		fmt.Fprintf(out, "  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./"+config.DefaultFile+" when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(versionCmd, transcribeCmd, updateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// setup loads the configuration and opens the log file. The returned close
// function flushes the log.
func setup() (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, closeLog, err := setupLogging(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, closeLog, nil
}

// setupLogging writes structured logs to the configured file; the terminal
// belongs to the UI
func setupLogging(cfg *config.Config) (*slog.Logger, func(), error) {
	level := cfg.LogLevel()
	if verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = io.Discard
	closeLog := func() {}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = f
		closeLog = func() { _ = f.Close() }
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, closeLog, nil
}

// buildEngine constructs the configured engine for device
func buildEngine(cfg *config.Config, device engine.Device, logger *slog.Logger) (engine.Engine, error) {
	switch cfg.Engine.Name {
	case config.EngineScribe:
		eng, err := engine.NewScribe(cfg.Engine.ScribeAPIKey, engine.WithScribeLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("%w\n\n%s", err, engine.APIKeyHelp())
		}
		return eng, nil
	default:
		return engine.NewWhisper(
			engine.WithBinary(cfg.Engine.WhisperBinary),
			engine.WithCacheDir(cfg.Engine.CacheDir),
			engine.WithDevice(device),
			engine.WithLogger(logger),
		), nil
	}
}

// newWorker detects the device once and builds the worker around the
// configured engine
func newWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*worker.Worker, error) {
	device := engine.DetectDevice(ctx)
	logger.Info("device detected", "device", device.Label(), "accelerated", device.Accelerated)

	eng, err := buildEngine(cfg, device, logger)
	if err != nil {
		return nil, err
	}
	return worker.New(eng, device,
		worker.WithLogger(logger),
		worker.WithDeviceCheck(engine.DetectDevice),
	), nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()

	var file string
	if len(args) == 1 {
		file = args[0]
		if _, err := os.Stat(file); err != nil {
			return fmt.Errorf("cannot open %s: %w", file, err)
		}
	}

	w, err := newWorker(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	start := time.Now()
	logger.Info("tui started", "version", version, "engine", cfg.Engine.Name, "model", cfg.Engine.Model)
	err = tui.Run(w, tui.Options{
		Request: cfg.Request(""),
		Format:  cfg.FormatConfig(),
		File:    file,
	})
	logger.Info("tui exited", "uptime", time.Since(start), "error", err)
	return err
}

func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
