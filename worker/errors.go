package worker

import (
	"errors"
	"fmt"
)

// Reasons a run or model load is refused
var (
	ErrAlreadyRunning    = errors.New("a transcription is already running")
	ErrModelLoading      = errors.New("a model is still loading")
	ErrNoFile            = errors.New("no file selected")
	ErrModelNotReady     = errors.New("the model is not loaded yet")
	ErrDeviceUnavailable = errors.New("the GPU used to load the model is no longer available")
)

// PreconditionError means a request was refused before any engine work
// started. Returned from Start or LoadModel the worker state is unchanged.
type PreconditionError struct {
	Err error
}

func (e *PreconditionError) Error() string {
	return e.Err.Error()
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// EngineError wraps any failure raised while loading a model or transcribing
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}
