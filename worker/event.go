package worker

import (
	"time"

	"whisperpad/engine"
)

// State is the lifecycle of a single transcription run
type State int

const (
	Idle State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Ready reports whether a new run may start from this state
func (s State) Ready() bool {
	return s != Running
}

// Channel names the surface an event's text belongs on. It is decided by
// the worker when the event is created and never inferred later.
type Channel int

const (
	// ChannelLog is the operator log: phase changes, statistics, errors
	ChannelLog Channel = iota

	// ChannelProgress is the engine's own console output while it runs
	ChannelProgress
)

func (c Channel) String() string {
	if c == ChannelProgress {
		return "progress"
	}
	return "log"
}

// EventKind distinguishes the payload carried by an Event
type EventKind int

const (
	// EventText is one line of text for Channel
	EventText EventKind = iota

	// EventProgress carries a completion fraction parsed from engine output
	EventProgress

	// EventModelLoaded ends a model load; Err is set on failure
	EventModelLoaded

	// EventCompleted ends a run with Result
	EventCompleted

	// EventFailed ends a run with Err
	EventFailed
)

// Event is a message from a background goroutine to the UI loop
type Event struct {
	// RunID identifies the run or model load that produced the event
	RunID string

	Kind    EventKind
	Channel Channel

	Text     string
	Fraction float64

	Request engine.Request
	Result  *engine.Result
	Elapsed time.Duration
	Err     error
}

// Terminal reports whether the event ends a run or a model load
func (e Event) Terminal() bool {
	return e.Kind == EventCompleted || e.Kind == EventFailed || e.Kind == EventModelLoaded
}
