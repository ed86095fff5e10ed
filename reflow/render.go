package reflow

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"whisperpad/engine"
)

// HeaderRule closes the render header
var HeaderRule = strings.Repeat("=", 60)

// RenderContext carries the run details shown in the header
type RenderContext struct {
	Filename       string
	DeviceName     string
	ProcessingTime time.Duration
}

// Render formats a result with its run header. The result is never modified.
func Render(result *engine.Result, cfg FormatConfig, rc RenderContext) string {
	var sb strings.Builder
	writeHeader(&sb, result, rc)
	sb.WriteString(RenderBody(result, cfg))
	return sb.String()
}

// RenderBody formats a result without the header, dispatching on cfg.Mode.
// Segment-based modes fall back to continuous text when there are no segments.
func RenderBody(result *engine.Result, cfg FormatConfig) string {
	if result == nil {
		return ""
	}
	width := cfg.Width()

	switch {
	case cfg.Mode == ModeSegments && len(result.Segments) > 0:
		return FormatSegments(result.Segments, width, cfg.ShowTimestamps)
	case cfg.Mode == ModeParagraphs && len(result.Segments) > 0:
		return GroupParagraphs(result.Segments, width)
	default:
		return FormatContinuous(result.Text, width)
	}
}

func writeHeader(sb *strings.Builder, result *engine.Result, rc RenderContext) {
	text, language := "", ""
	if result != nil {
		text, language = result.Text, result.Language
	}
	if language == "" {
		language = "unknown"
	}
	device := rc.DeviceName
	if device == "" {
		device = "unknown"
	}
	file := "unknown"
	if rc.Filename != "" {
		file = filepath.Base(rc.Filename)
	}

	seconds := rc.ProcessingTime.Seconds()
	chars := utf8.RuneCountInString(text)

	sb.WriteString("=== TRANSCRIPTION RESULT ===\n")
	fmt.Fprintf(sb, "Device: %s\n", device)
	fmt.Fprintf(sb, "File: %s\n", file)
	fmt.Fprintf(sb, "Time: %.1f seconds\n", seconds)
	fmt.Fprintf(sb, "Language: %s\n", language)
	fmt.Fprintf(sb, "Characters: %d\n", chars)
	if seconds > 0 {
		fmt.Fprintf(sb, "Speed: %.0f chars/sec\n", float64(chars)/seconds)
	}
	sb.WriteString(HeaderRule + "\n\n")
}
