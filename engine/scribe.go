package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// ScribeBaseURL is the ElevenLabs API base URL
	ScribeBaseURL = "https://api.elevenlabs.io"

	// ScribeModel is the batch speech-to-text model
	ScribeModel = "scribe_v1"

	// scribeTimeout covers upload plus server-side processing of long files
	scribeTimeout = 10 * time.Minute

	// scribeMaxFileSize is the API upload limit (3GB)
	scribeMaxFileSize = 3 * 1024 * 1024 * 1024

	// pauseBreak is the silence (seconds) that starts a new segment
	pauseBreak = 1.0
)

// APIError is an error response from the ElevenLabs API
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (status %d): %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// scribeWord is a word, spacing or audio event in a Scribe response
type scribeWord struct {
	Text      string  `json:"text"`
	Type      string  `json:"type"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	SpeakerID string  `json:"speaker_id,omitempty"`
}

type scribeResponse struct {
	LanguageCode string       `json:"language_code"`
	Text         string       `json:"text"`
	Words        []scribeWord `json:"words"`
}

// Scribe transcribes through the ElevenLabs speech-to-text API
type Scribe struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	maxRetries int
	backoff    []time.Duration
}

// ScribeOption configures the Scribe engine
type ScribeOption func(*Scribe)

// WithBaseURL sets a custom base URL (for testing)
func WithBaseURL(url string) ScribeOption {
	return func(s *Scribe) {
		s.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ScribeOption {
	return func(s *Scribe) {
		s.httpClient = client
	}
}

// WithRetries sets how many times a transient failure is retried and the waits between attempts
func WithRetries(maxRetries int, backoff ...time.Duration) ScribeOption {
	return func(s *Scribe) {
		s.maxRetries = maxRetries
		if len(backoff) > 0 {
			s.backoff = backoff
		}
	}
}

// WithScribeLogger sets the request logger
func WithScribeLogger(l *slog.Logger) ScribeOption {
	return func(s *Scribe) {
		s.logger = l
	}
}

// NewScribe creates an ElevenLabs Scribe engine
func NewScribe(apiKey string, opts ...ScribeOption) (*Scribe, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ELEVENLABS_API_KEY is required for the scribe engine")
	}

	s := &Scribe{
		apiKey:     apiKey,
		baseURL:    ScribeBaseURL,
		httpClient: &http.Client{Timeout: scribeTimeout},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxRetries: 3,
		backoff:    []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Name implements Engine
func (s *Scribe) Name() string {
	return "scribe"
}

// Load has nothing to download; it only reports the hosted model in use
func (s *Scribe) Load(ctx context.Context, model string, out LineFunc) error {
	emit(out, "Using ElevenLabs %s (hosted, no local model)", ScribeModel)
	return ctx.Err()
}

// Transcribe uploads the file and converts the word timings into segments
func (s *Scribe) Transcribe(ctx context.Context, req Request, out LineFunc) (*Result, error) {
	info, err := os.Stat(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to access file: %w", err)
	}
	if info.Size() > scribeMaxFileSize {
		return nil, fmt.Errorf("file size %d exceeds maximum %d bytes (3GB)", info.Size(), scribeMaxFileSize)
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		emit(out, "Uploading %s (%.1f MB)...", filepath.Base(req.FilePath), float64(info.Size())/(1024*1024))

		resp, err := s.post(ctx, req)
		if err == nil {
			emit(out, "Received %d words", len(resp.Words))
			return &Result{
				Text:     resp.Text,
				Segments: wordsToSegments(resp.Words),
				Language: resp.LanguageCode,
			}, nil
		}
		lastErr = err

		// Client errors will not succeed on retry
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return nil, err
		}

		if attempt == s.maxRetries {
			break
		}
		wait := s.backoff[min(attempt, len(s.backoff)-1)]
		emit(out, "Request failed (%v), retrying in %v", err, wait)
		s.logger.Warn("scribe request failed", "attempt", attempt+1, "wait", wait, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, fmt.Errorf("transcription failed after %d retries: %w", s.maxRetries, lastErr)
}

func (s *Scribe) post(ctx context.Context, req Request) (*scribeResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	file, err := os.Open(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile("file", filepath.Base(req.FilePath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy file to form: %w", err)
	}

	fields := map[string]string{"model_id": ScribeModel, "timestamps_granularity": "word"}
	if req.Language != "" && req.Language != "auto" {
		fields["language_code"] = req.Language
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	url := s.baseURL + "/v1/speech-to-text"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("xi-api-key", s.apiKey)

	s.logger.Debug("scribe request", "url", url, "file", req.FilePath)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil {
			apiErr.Message = string(respBody)
		}
		return nil, apiErr
	}

	var result scribeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// wordsToSegments groups words into segments, breaking after sentence
// terminators, on speaker changes and at pauses longer than a second
func wordsToSegments(words []scribeWord) []Segment {
	var segments []Segment
	var current *Segment
	var speaker string
	var lastEnd float64

	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.TrimSpace(current.Text)
		if current.Text != "" {
			segments = append(segments, *current)
		}
		current = nil
	}

	for _, w := range words {
		switch w.Type {
		case "audio_event":
			continue
		case "spacing":
			if current != nil {
				current.Text += w.Text
			}
			continue
		}

		if current != nil && ((w.SpeakerID != "" && w.SpeakerID != speaker) || w.Start-lastEnd > pauseBreak) {
			flush()
		}
		if current == nil {
			current = &Segment{Start: w.Start}
			speaker = w.SpeakerID
		}

		current.Text += w.Text
		current.End = w.End
		lastEnd = w.End

		if t := strings.TrimSpace(w.Text); strings.HasSuffix(t, ".") || strings.HasSuffix(t, "!") || strings.HasSuffix(t, "?") {
			flush()
		}
	}
	flush()

	return segments
}

// APIKeyHelp returns help text for setting up the API key
func APIKeyHelp() string {
	return `The scribe engine needs an ElevenLabs API key.

1. Sign up at https://elevenlabs.io
2. Go to Profile Settings → API Keys
3. Set the environment variable:

   export ELEVENLABS_API_KEY="your-api-key"

Or create a .env file with:
   ELEVENLABS_API_KEY=your-api-key`
}
