package reflow

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"whisperpad/engine"
)

// SubtitleFormat is a timed-text export format
type SubtitleFormat string

const (
	SubtitleSRT SubtitleFormat = "srt"
	SubtitleVTT SubtitleFormat = "vtt"
)

// SubtitleLineLength is the caption width used for subtitle exports
const SubtitleLineLength = 42

// SubtitleFormatFor picks the export format from a file extension
func SubtitleFormatFor(path string) (SubtitleFormat, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".srt":
		return SubtitleSRT, true
	case ".vtt":
		return SubtitleVTT, true
	}
	return "", false
}

// FormatSubtitles renders segments as numbered subtitle cues. Segment text is
// wrapped to SubtitleLineLength; blank segments are skipped.
func FormatSubtitles(segments []engine.Segment, format SubtitleFormat) string {
	var sb strings.Builder
	if format == SubtitleVTT {
		sb.WriteString("WEBVTT\n\n")
	}

	n := 0
	for _, seg := range segments {
		lines := Wrap(seg.Text, SubtitleLineLength)
		if len(lines) == 0 {
			continue
		}
		n++

		fmt.Fprintf(&sb, "%d\n", n)
		fmt.Fprintf(&sb, "%s --> %s\n", cueTimestamp(seg.Start, format), cueTimestamp(seg.End, format))
		sb.WriteString(strings.Join(lines, "\n"))
		sb.WriteString("\n\n")
	}

	return strings.TrimSpace(sb.String()) + "\n"
}

// cueTimestamp formats seconds as HH:MM:SS,mmm (SRT) or HH:MM:SS.mmm (VTT)
func cueTimestamp(seconds float64, format SubtitleFormat) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Millisecond)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000

	sep := ","
	if format == SubtitleVTT {
		sep = "."
	}
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, sep, ms)
}
