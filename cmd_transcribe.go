package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/spf13/cobra"

	"whisperpad/config"
	"whisperpad/engine"
	"whisperpad/reflow"
	"whisperpad/worker"
)

// TranscribeOptions holds the flags of the transcribe command
type TranscribeOptions struct {
	Output     string
	Mode       string
	Width      int
	Timestamps bool
	Model      string
	Engine     string
	Language   string
	Translate  bool
	NoHeader   bool
}

var transcribeOpts TranscribeOptions

var transcribeCmd = &cobra.Command{
	Use:   "transcribe [file]",
	Short: "Transcribe a file without the full-screen interface",
	Long: `Transcribe loads the model, transcribes one audio or video file and prints
the reflowed transcript to stdout (or the file given with -o). Progress goes
to stderr. Without a file argument a file picker is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTranscribe,
}

func init() {
	bindTranscribeFlags(transcribeCmd, &transcribeOpts)
}

func bindTranscribeFlags(cmd *cobra.Command, o *TranscribeOptions) {
	f := cmd.Flags()
	f.StringVarP(&o.Output, "output", "o", "", "write the transcript to this file instead of stdout (.srt and .vtt export subtitles)")
	f.StringVar(&o.Mode, "mode", "", "output mode: segments, paragraphs or continuous")
	f.IntVar(&o.Width, "width", 0, "maximum line length (at least 20)")
	f.BoolVar(&o.Timestamps, "timestamps", true, "prefix segments with timestamps")
	f.StringVar(&o.Model, "model", "", "model to load")
	f.StringVar(&o.Engine, "engine", "", "engine: whisper or scribe")
	f.StringVar(&o.Language, "language", "", "spoken language, empty to detect")
	f.BoolVar(&o.Translate, "translate", false, "translate to English instead of transcribing")
	f.BoolVar(&o.NoHeader, "no-header", false, "omit the result header")
}

// applyFlags overrides cfg with the flags the user actually set
func (o TranscribeOptions) applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("engine") {
		cfg.Engine.Name = o.Engine
	}
	if flags.Changed("model") {
		cfg.Engine.Model = o.Model
	}
	if flags.Changed("language") {
		cfg.Engine.Language = o.Language
	}
	if flags.Changed("translate") && o.Translate {
		cfg.Engine.Task = engine.TaskTranslate
	}
	if flags.Changed("width") {
		cfg.Output.LineLength = o.Width
	}
	if flags.Changed("mode") {
		mode, err := reflow.ParseMode(o.Mode)
		if err != nil {
			return err
		}
		cfg.Output.Mode = mode
	}
	if flags.Changed("timestamps") {
		ts := o.Timestamps
		cfg.Output.Timestamps = &ts
	}
	return cfg.Validate()
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()

	if err := transcribeOpts.applyFlags(cmd, cfg); err != nil {
		return err
	}

	var file string
	if len(args) == 1 {
		file = args[0]
	} else {
		file, err = pickFile()
		if err != nil {
			return err
		}
	}
	info, err := os.Stat(file)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", file, err)
	}
	if !engine.IsSupportedMediaFile(file) {
		return fmt.Errorf("unsupported file type %q", filepath.Ext(file))
	}

	ctx := cmd.Context()
	w, err := newWorker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	stderr := cmd.ErrOrStderr()

	// Model load
	if _, err := w.LoadModel(ctx, cfg.Engine.Model); err != nil {
		return err
	}
	var loaded worker.Event
	var loadLog strings.Builder
	err = spinner.New().
		Title(fmt.Sprintf("Loading %s model %s...", w.EngineName(), cfg.Engine.Model)).
		Action(func() {
			loaded = awaitTerminal(ctx, w, &loadLog, false)
		}).
		Run()
	fmt.Fprint(stderr, infoStyle.Render(loadLog.String()))
	if err != nil {
		return err
	}
	if loaded.Err != nil {
		return loaded.Err
	}

	// Transcription
	fmt.Fprintln(stderr, infoStyle.Render(fmt.Sprintf("Transcribing %s (%s)", filepath.Base(file), formatFileSize(info.Size()))))
	if _, err := w.Start(ctx, cfg.Request(file)); err != nil {
		return err
	}
	done := awaitTerminal(ctx, w, stderr, verbose)
	if done.Kind != worker.EventCompleted {
		return done.Err
	}

	text := renderTranscript(done, cfg.FormatConfig(), w.Device().Label(), transcribeOpts.NoHeader)
	if transcribeOpts.Output == "" {
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	}
	if format, ok := reflow.SubtitleFormatFor(transcribeOpts.Output); ok {
		text = strings.TrimSuffix(reflow.FormatSubtitles(done.Result.Segments, format), "\n")
	}
	if err := os.WriteFile(transcribeOpts.Output, []byte(text+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}
	fmt.Fprintln(stderr, successStyle.Render("Saved to "+transcribeOpts.Output))
	return nil
}

// awaitTerminal drains worker events until the current run or load ends,
// writing log lines to out. Engine output is only written when showProgress
// is set.
func awaitTerminal(ctx context.Context, w *worker.Worker, out io.Writer, showProgress bool) worker.Event {
	for {
		select {
		case ev := <-w.Events():
			if !w.Current(ev) {
				continue
			}
			switch {
			case ev.Kind == worker.EventText && (ev.Channel == worker.ChannelLog || showProgress):
				fmt.Fprintln(out, ev.Text)
			case ev.Terminal():
				if ev.Text != "" {
					fmt.Fprintln(out, ev.Text)
				}
				if w.Handle(ev) {
					return ev
				}
			}
		case <-ctx.Done():
			return worker.Event{Kind: worker.EventFailed, Err: ctx.Err()}
		}
	}
}

// renderTranscript formats a completed event for output
func renderTranscript(ev worker.Event, cfg reflow.FormatConfig, deviceName string, noHeader bool) string {
	if noHeader {
		return reflow.RenderBody(ev.Result, cfg)
	}
	return reflow.Render(ev.Result, cfg, reflow.RenderContext{
		Filename:       ev.Request.FilePath,
		DeviceName:     deviceName,
		ProcessingTime: ev.Elapsed,
	})
}

func pickFile() (string, error) {
	var path string
	startDir, _ := os.Getwd()

	filePicker := huh.NewFilePicker().
		Title("Select an audio or video file").
		Description("Navigate and select a file to transcribe").
		Picking(true).
		CurrentDirectory(startDir).
		ShowHidden(false).
		ShowPermissions(false).
		ShowSize(true).
		Height(15).
		AllowedTypes(engine.MediaExtensions()).
		Value(&path)

	err := huh.NewForm(huh.NewGroup(filePicker)).
		WithTheme(huh.ThemeCatppuccin()).
		Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", errors.New("no file selected")
		}
		return "", err
	}
	return path, nil
}
