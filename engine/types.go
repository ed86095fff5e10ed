// Package engine runs speech-to-text engines over local audio/video files and
// normalises their output into timed segments.
package engine

import (
	"context"
	"fmt"
)

// Whisper model names, smallest to largest
const (
	ModelBase    = "base"
	ModelSmall   = "small"
	ModelMedium  = "medium"
	ModelLargeV2 = "large-v2"
	ModelLargeV3 = "large-v3"

	// DefaultModel is used when no model is configured
	DefaultModel = ModelLargeV2
)

// Models lists the selectable whisper models in display order
var Models = []string{ModelBase, ModelSmall, ModelMedium, ModelLargeV2, ModelLargeV3}

// Segment is one timed span of recognised speech
type Segment struct {
	// Start is the segment start in seconds
	Start float64 `json:"start"`

	// End is the segment end in seconds
	End float64 `json:"end"`

	// Text is the recognised text, possibly with leading/trailing whitespace
	Text string `json:"text"`
}

// Result is the complete output of one transcription
type Result struct {
	// Text is the full transcript
	Text string `json:"text"`

	// Segments are ordered by Start and may be empty
	Segments []Segment `json:"segments"`

	// Language is the detected or requested language code
	Language string `json:"language"`
}

// Request describes one transcription job
type Request struct {
	// FilePath is the local path to the audio or video file
	FilePath string

	// Model is the model name; engines fall back to their default when empty
	Model string

	// Language is an ISO-639-1 code; empty means auto-detect
	Language string

	// Task is "transcribe" or "translate"
	Task string

	// WordTimestamps asks the engine for word-level timing
	WordTimestamps bool
}

// LineFunc receives one line of textual engine output
type LineFunc func(line string)

// Engine is a speech-to-text backend. Load prepares a model, Transcribe
// performs one blocking transcription. Neither call can be cancelled once
// the underlying process or request is under way, beyond ctx being done.
type Engine interface {
	Name() string
	Load(ctx context.Context, model string, out LineFunc) error
	Transcribe(ctx context.Context, req Request, out LineFunc) (*Result, error)
}

// Task values accepted by the whisper CLI
const (
	TaskTranscribe = "transcribe"
	TaskTranslate  = "translate"
)

// ValidateTask rejects anything other than transcribe/translate
func ValidateTask(task string) error {
	switch task {
	case TaskTranscribe, TaskTranslate:
		return nil
	default:
		return fmt.Errorf("unknown task %q (want %s or %s)", task, TaskTranscribe, TaskTranslate)
	}
}

// emit calls out when it is non-nil
func emit(out LineFunc, format string, args ...any) {
	if out == nil {
		return
	}
	out(fmt.Sprintf(format, args...))
}
