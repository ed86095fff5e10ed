// Package reflow turns transcription results into wrapped, human-readable text.
// Every function here is pure: identical inputs always produce identical output.
package reflow

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode selects the formatting policy for a result
type Mode string

const (
	ModeSegments   Mode = "segments"
	ModeParagraphs Mode = "paragraphs"
	ModeContinuous Mode = "continuous"
)

// Modes lists the formatting policies in cycle order
var Modes = []Mode{ModeSegments, ModeParagraphs, ModeContinuous}

const (
	// DefaultLineLength is used whenever the configured width is unusable
	DefaultLineLength = 80

	// MinLineLength is the narrowest width the renderer accepts
	MinLineLength = 20
)

// FormatConfig is an immutable snapshot of the output settings
type FormatConfig struct {
	MaxLineLength  int
	Mode           Mode
	ShowTimestamps bool
}

// DefaultFormatConfig returns 80 columns, segment mode, timestamps on
func DefaultFormatConfig() FormatConfig {
	return FormatConfig{
		MaxLineLength:  DefaultLineLength,
		Mode:           ModeSegments,
		ShowTimestamps: true,
	}
}

// NewFormatConfig builds a config from raw user input. The width is coerced
// with ParseLineLength and an unknown mode falls back to segments.
func NewFormatConfig(lineLength string, mode string, showTimestamps bool) FormatConfig {
	m, err := ParseMode(mode)
	if err != nil {
		m = ModeSegments
	}
	return DefaultFormatConfig().
		WithLineLength(lineLength).
		WithMode(m).
		WithTimestamps(showTimestamps)
}

// ParseLineLength parses a width, falling back to 80 when the value is not an
// integer or is narrower than 20
func ParseLineLength(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < MinLineLength {
		return DefaultLineLength
	}
	return n
}

// ParseMode accepts segments, paragraphs or continuous (case-insensitive)
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeSegments, ModeParagraphs, ModeContinuous:
		return m, nil
	default:
		return "", fmt.Errorf("unknown format mode %q", s)
	}
}

// Next returns the mode after m in cycle order
func (m Mode) Next() Mode {
	for i, mode := range Modes {
		if mode == m {
			return Modes[(i+1)%len(Modes)]
		}
	}
	return ModeSegments
}

// Width returns the wrap width the renderer will actually use
func (c FormatConfig) Width() int {
	if c.MaxLineLength < MinLineLength {
		return DefaultLineLength
	}
	return c.MaxLineLength
}

// WithLineLength returns a copy of c using the parsed width
func (c FormatConfig) WithLineLength(s string) FormatConfig {
	c.MaxLineLength = ParseLineLength(s)
	return c
}

// WithMode returns a copy of c using mode m
func (c FormatConfig) WithMode(m Mode) FormatConfig {
	c.Mode = m
	return c
}

// WithTimestamps returns a copy of c with timestamps switched on or off
func (c FormatConfig) WithTimestamps(on bool) FormatConfig {
	c.ShowTimestamps = on
	return c
}
