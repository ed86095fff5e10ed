package reflow

import (
	"fmt"
	"math"
	"strings"

	"whisperpad/engine"
)

// FormatTimestamp renders seconds as MM:SS.mmm. Minutes are not capped at 59.
func FormatTimestamp(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	minutes := math.Floor(seconds / 60)
	rest := seconds - minutes*60
	return fmt.Sprintf("%02d:%06.3f", int(minutes), rest)
}

// TimestampLabel renders the "[start --> end]" prefix of a segment line
func TimestampLabel(seg engine.Segment) string {
	return "[" + FormatTimestamp(seg.Start) + " --> " + FormatTimestamp(seg.End) + "]"
}

// FormatSegments renders one line group per non-empty segment. With
// timestamps on, each group starts with the segment's label and wrapped
// continuation lines are indented to sit under the text.
func FormatSegments(segments []engine.Segment, width int, showTimestamps bool) string {
	var lines []string

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		if !showTimestamps {
			lines = append(lines, Wrap(text, width)...)
			continue
		}

		label := TimestampLabel(seg)
		available := width - runeLen(label) - 1

		// Too little room left beside the label to wrap sensibly
		if available <= MinLineLength {
			lines = append(lines, label+" "+strings.Join(strings.Fields(text), " "))
			continue
		}

		indent := strings.Repeat(" ", runeLen(label)) + " "
		for i, line := range Wrap(text, available) {
			if i == 0 {
				lines = append(lines, label+" "+line)
			} else {
				lines = append(lines, indent+line)
			}
		}
	}

	return strings.Join(lines, "\n")
}
