package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultWhisperBinary is the openai-whisper CLI entry point
	DefaultWhisperBinary = "whisper"

	// DefaultHubURL is checked before a model download is attempted
	DefaultHubURL = "https://huggingface.co"

	// hubDeadline bounds the connectivity check
	hubDeadline = 5 * time.Second

	// stderrTail is how many trailing output lines are kept for error messages
	stderrTail = 20
)

// Whisper runs the openai-whisper command line tool
type Whisper struct {
	binary     string
	cacheDir   string
	hubURL     string
	device     Device
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.Mutex
	model string
}

// WhisperOption configures a Whisper engine
type WhisperOption func(*Whisper)

// WithBinary sets the whisper executable name or path
func WithBinary(binary string) WhisperOption {
	return func(w *Whisper) {
		w.binary = binary
	}
}

// WithCacheDir sets where model weights are stored
func WithCacheDir(dir string) WhisperOption {
	return func(w *Whisper) {
		w.cacheDir = dir
	}
}

// WithDevice selects GPU or CPU execution
func WithDevice(d Device) WhisperOption {
	return func(w *Whisper) {
		w.device = d
	}
}

// WithHubURL sets the URL used for the connectivity check
func WithHubURL(url string) WhisperOption {
	return func(w *Whisper) {
		w.hubURL = url
	}
}

// WithLogger sets the logger for command lines and timings
func WithLogger(l *slog.Logger) WhisperOption {
	return func(w *Whisper) {
		w.logger = l
	}
}

// DefaultCacheDir returns ~/.cache/whisper
func DefaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "whisper")
	}
	return filepath.Join(home, ".cache", "whisper")
}

// NewWhisper creates a whisper CLI engine
func NewWhisper(opts ...WhisperOption) *Whisper {
	w := &Whisper{
		binary:     DefaultWhisperBinary,
		cacheDir:   DefaultCacheDir(),
		hubURL:     DefaultHubURL,
		device:     CPU,
		httpClient: &http.Client{Timeout: hubDeadline},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Name implements Engine
func (w *Whisper) Name() string {
	return "whisper"
}

// Load verifies the toolchain and model cache. Weights missing from the cache
// are fetched by whisper on first use, so an offline machine is rejected here.
func (w *Whisper) Load(ctx context.Context, model string, out LineFunc) error {
	if model == "" {
		model = DefaultModel
	}
	if !slices.Contains(Models, model) {
		return fmt.Errorf("unknown model %q (available: %s)", model, strings.Join(Models, ", "))
	}

	emit(out, "Loading model %s...", model)

	if _, err := exec.LookPath(w.binary); err != nil {
		return fmt.Errorf("whisper CLI %q not found: %w\n\nInstall it with: pip install -U openai-whisper", w.binary, err)
	}

	version, err := CheckFFmpeg()
	if err != nil {
		return err
	}
	emit(out, "Using %s", version)

	if err := os.MkdirAll(w.cacheDir, 0o755); err != nil {
		return fmt.Errorf("failed to create model cache %s: %w", w.cacheDir, err)
	}
	emit(out, "Model cache: %s", w.cacheDir)

	if w.isCached(model) {
		emit(out, "Model %s found in cache", model)
	} else {
		emit(out, "Model %s is not cached, checking internet connection...", model)
		if err := w.checkOnline(ctx); err != nil {
			return fmt.Errorf("model %s is not cached and %s is unreachable: %w", model, w.hubURL, err)
		}
		emit(out, "Model %s will be downloaded on first use", model)
	}

	w.mu.Lock()
	w.model = model
	w.mu.Unlock()

	emit(out, "Model %s ready on %s", model, w.device.Label())
	return nil
}

// Transcribe runs whisper on req.FilePath, streaming its console output to out
func (w *Whisper) Transcribe(ctx context.Context, req Request, out LineFunc) (*Result, error) {
	if _, err := os.Stat(req.FilePath); err != nil {
		return nil, fmt.Errorf("failed to access file: %w", err)
	}

	model := req.Model
	if model == "" {
		w.mu.Lock()
		model = w.model
		w.mu.Unlock()
	}
	if model == "" {
		model = DefaultModel
	}

	outDir, err := os.MkdirTemp("", "whisperpad-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := w.buildArgs(req, model, outDir)
	w.logger.Debug("running whisper", "binary", w.binary, "args", args)

	cmd := exec.CommandContext(ctx, w.binary, args...)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	var tail []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		scanner.Split(scanLines)
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), " \t")
			if strings.TrimSpace(line) == "" {
				continue
			}
			tail = append(tail, line)
			if len(tail) > stderrTail {
				tail = tail[1:]
			}
			if out != nil {
				out(line)
			}
		}
		// Keep the child unblocked if the scanner gave up early
		_, _ = io.Copy(io.Discard, pr)
	}()

	start := time.Now()
	if err := cmd.Start(); err != nil {
		pw.Close()
		<-done
		return nil, fmt.Errorf("failed to start whisper: %w", err)
	}
	runErr := cmd.Wait()
	pw.Close()
	<-done

	if runErr != nil {
		return nil, fmt.Errorf("whisper failed: %w\n%s", runErr, strings.Join(tail, "\n"))
	}
	w.logger.Info("whisper finished", "file", req.FilePath, "model", model, "elapsed", time.Since(start))

	base := strings.TrimSuffix(filepath.Base(req.FilePath), filepath.Ext(req.FilePath))
	return readWhisperJSON(filepath.Join(outDir, base+".json"))
}

// buildArgs constructs the whisper CLI arguments
func (w *Whisper) buildArgs(req Request, model, outDir string) []string {
	task := req.Task
	if task == "" {
		task = TaskTranscribe
	}

	fp16 := "False"
	if w.device.Accelerated {
		fp16 = "True"
	}

	args := []string{
		req.FilePath,
		"--model", model,
		"--model_dir", w.cacheDir,
		"--device", w.device.WhisperDevice(),
		"--task", task,
		"--fp16", fp16,
		"--verbose", "True",
		"--output_format", "json",
		"--output_dir", outDir,
	}
	if req.Language != "" && req.Language != "auto" {
		args = append(args, "--language", req.Language)
	}
	if req.WordTimestamps {
		args = append(args, "--word_timestamps", "True")
	}
	return args
}

func (w *Whisper) isCached(model string) bool {
	_, err := os.Stat(filepath.Join(w.cacheDir, model+".pt"))
	return err == nil
}

func (w *Whisper) checkOnline(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, w.hubURL, nil)
	if err != nil {
		return err
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// readWhisperJSON parses the result file written by --output_format json
func readWhisperJSON(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read whisper output: %w", err)
	}
	return parseWhisperJSON(data)
}

func parseWhisperJSON(data []byte) (*Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse whisper output: %w", err)
	}
	return &result, nil
}
