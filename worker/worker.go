// Package worker runs model loads and transcriptions off the UI goroutine and
// reports back through a single ordered event channel.
//
// The exported methods other than Events are not safe for concurrent use.
// They are meant to be called from the one goroutine that drains Events
// (the bubbletea Update loop, or the headless command's loop), which makes
// that goroutine the only writer of the worker state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"whisperpad/engine"
)

// DefaultQueueSize is the event buffer between the background goroutines and the UI
const DefaultQueueSize = 1024

// ProcessingStarted is logged right before the engine call begins
const ProcessingStarted = "Processing started"

// Worker owns one engine and runs at most one transcription at a time
type Worker struct {
	engine engine.Engine
	device engine.Device
	detect engine.DeviceDetector
	logger *slog.Logger
	events chan Event

	state      State
	runID      string
	loadID     string
	loading    bool
	modelReady bool
	model      string

	prevModel string
	prevReady bool
}

// Option configures a Worker
type Option func(*Worker)

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = l
	}
}

// WithDeviceCheck re-checks the device before each run
func WithDeviceCheck(p engine.DeviceDetector) Option {
	return func(w *Worker) {
		w.detect = p
	}
}

// WithQueueSize sets the event buffer size
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		w.events = make(chan Event, n)
	}
}

// New creates a worker for eng running on device
func New(eng engine.Engine, device engine.Device, opts ...Option) *Worker {
	w := &Worker{
		engine: eng,
		device: device,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		events: make(chan Event, DefaultQueueSize),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Events is the channel the UI loop drains
func (w *Worker) Events() <-chan Event {
	return w.events
}

// State returns the state of the latest run
func (w *Worker) State() State {
	return w.state
}

// ModelReady reports whether a model load has succeeded
func (w *Worker) ModelReady() bool {
	return w.modelReady
}

// Loading reports whether a model load is in flight
func (w *Worker) Loading() bool {
	return w.loading
}

// Busy reports whether either a load or a run is in flight
func (w *Worker) Busy() bool {
	return w.loading || w.state == Running
}

// Model returns the requested model name
func (w *Worker) Model() string {
	return w.model
}

// Device returns the device the worker was created with
func (w *Worker) Device() engine.Device {
	return w.device
}

// EngineName returns the engine's name
func (w *Worker) EngineName() string {
	return w.engine.Name()
}

// Current reports whether ev belongs to the active run or model load
func (w *Worker) Current(ev Event) bool {
	return ev.RunID != "" && (ev.RunID == w.runID || ev.RunID == w.loadID)
}

// LoadModel starts loading model in the background. The result arrives as
// an EventModelLoaded.
func (w *Worker) LoadModel(ctx context.Context, model string) (string, error) {
	if w.state == Running {
		return "", &PreconditionError{Err: ErrAlreadyRunning}
	}
	if w.loading {
		return "", &PreconditionError{Err: ErrModelLoading}
	}

	id := uuid.NewString()
	w.prevModel, w.prevReady = w.model, w.modelReady
	w.loadID = id
	w.loading = true
	w.modelReady = false
	w.model = model

	w.logger.Info("model load started", "load", id, "model", model, "engine", w.engine.Name())
	go w.load(ctx, id, model)

	return id, nil
}

// Start begins transcribing req in the background. A refused request
// returns a *PreconditionError and leaves the state untouched. An
// accelerator that disappeared since startup is detected on the run
// goroutine and fails the run with ErrDeviceUnavailable.
func (w *Worker) Start(ctx context.Context, req engine.Request) (string, error) {
	switch {
	case w.state == Running:
		return "", &PreconditionError{Err: ErrAlreadyRunning}
	case req.FilePath == "":
		return "", &PreconditionError{Err: ErrNoFile}
	case w.loading || !w.modelReady:
		return "", &PreconditionError{Err: ErrModelNotReady}
	}

	if req.Model == "" {
		req.Model = w.model
	}

	id := uuid.NewString()
	w.runID = id
	w.state = Running

	w.logger.Info("transcription started", "run", id, "file", req.FilePath, "model", req.Model)
	go w.run(ctx, id, req)

	return id, nil
}

// Handle applies a drained event to the worker state. It returns true only
// for the single event that ends the current run or load; stale and
// repeated events return false.
func (w *Worker) Handle(ev Event) bool {
	switch ev.Kind {
	case EventModelLoaded:
		if !w.loading || ev.RunID != w.loadID {
			return false
		}
		w.loading = false
		if ev.Err != nil {
			w.model, w.modelReady = w.prevModel, w.prevReady
		} else {
			w.modelReady = true
		}
		return true

	case EventCompleted, EventFailed:
		if w.state != Running || ev.RunID != w.runID {
			return false
		}
		if ev.Kind == EventCompleted {
			w.state = Completed
		} else {
			w.state = Failed
		}
		return true
	}

	return false
}

func (w *Worker) load(ctx context.Context, id, model string) {
	start := time.Now()
	var err error

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		elapsed := time.Since(start)

		ev := Event{RunID: id, Kind: EventModelLoaded, Channel: ChannelLog, Elapsed: elapsed}
		if err != nil {
			ev.Err = &EngineError{Op: "model load", Err: err}
			ev.Text = "Failed to load model: " + err.Error()
			w.logger.Error("model load failed", "load", id, "model", model, "error", err)
		} else {
			ev.Text = fmt.Sprintf("Model %s loaded in %.1f seconds", model, elapsed.Seconds())
			w.logger.Info("model loaded", "load", id, "model", model, "elapsed", elapsed)
		}
		w.send(ctx, ev)
	}()

	w.logf(ctx, id, "Device: %s", w.device.Label())
	err = w.engine.Load(ctx, model, func(line string) {
		w.logf(ctx, id, "%s", line)
	})
}

func (w *Worker) run(ctx context.Context, id string, req engine.Request) {
	start := time.Now()
	var result *engine.Result
	var err error

	// Exactly one terminal event per run, whatever the engine does
	defer func() {
		if r := recover(); r != nil {
			err = &EngineError{Op: "transcription", Err: fmt.Errorf("panic: %v", r)}
		}
		elapsed := time.Since(start)

		if err != nil {
			w.logger.Error("transcription failed", "run", id, "file", req.FilePath, "error", err)
			w.send(ctx, Event{
				RunID:   id,
				Kind:    EventFailed,
				Channel: ChannelLog,
				Text:    "Transcription failed: " + err.Error(),
				Request: req,
				Elapsed: elapsed,
				Err:     err,
			})
			return
		}

		chars := utf8.RuneCountInString(result.Text)
		w.logf(ctx, id, "Transcription completed in %.1f seconds", elapsed.Seconds())
		w.logf(ctx, id, "Characters processed: %d", chars)
		if s := elapsed.Seconds(); s > 0 {
			w.logf(ctx, id, "Speed: %.0f chars/sec", float64(chars)/s)
		}
		w.logger.Info("transcription completed", "run", id, "file", req.FilePath, "chars", chars, "elapsed", elapsed)

		w.send(ctx, Event{
			RunID:   id,
			Kind:    EventCompleted,
			Channel: ChannelLog,
			Request: req,
			Result:  result,
			Elapsed: elapsed,
		})
	}()

	if w.device.Accelerated && w.detect != nil && !w.detect(ctx).Accelerated {
		err = &PreconditionError{Err: ErrDeviceUnavailable}
		return
	}

	w.logf(ctx, id, "Starting processing of %s file on %s...", engine.MediaKind(req.FilePath), w.device.Label())
	w.logf(ctx, id, "File: %s", filepath.Base(req.FilePath))
	for _, line := range w.device.Summary() {
		w.logf(ctx, id, "%s", line)
	}
	w.logf(ctx, id, "%s", ProcessingStarted)

	result, err = w.engine.Transcribe(ctx, req, func(line string) {
		w.progress(ctx, id, line)
	})
	if err != nil {
		err = &EngineError{Op: "transcription", Err: err}
		return
	}
	if result == nil {
		err = &EngineError{Op: "transcription", Err: errors.New("engine returned no result")}
	}
}

// logf queues a log-channel line
func (w *Worker) logf(ctx context.Context, id, format string, args ...any) {
	w.send(ctx, Event{RunID: id, Kind: EventText, Channel: ChannelLog, Text: fmt.Sprintf(format, args...)})
}

// progress queues an engine output line, plus a fraction when it has one
func (w *Worker) progress(ctx context.Context, id, line string) {
	w.send(ctx, Event{RunID: id, Kind: EventText, Channel: ChannelProgress, Text: line})
	if f, ok := engine.ParseProgress(line); ok {
		w.send(ctx, Event{RunID: id, Kind: EventProgress, Channel: ChannelProgress, Fraction: f})
	}
}

func (w *Worker) send(ctx context.Context, ev Event) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}
