package reflow

import (
	"strings"

	"whisperpad/engine"
)

// paragraphBreakDuration is the segment length (seconds) that always ends a paragraph
const paragraphBreakDuration = 2.0

// GroupParagraphs merges consecutive segments into paragraphs. A paragraph
// ends after any segment longer than two seconds or any segment whose text
// ends a sentence. Paragraphs are separated by a blank line.
func GroupParagraphs(segments []engine.Segment, width int) string {
	var paragraphs []string
	var buffer []string

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		lines := Wrap(strings.Join(buffer, " "), width)
		if len(lines) > 0 {
			paragraphs = append(paragraphs, strings.Join(lines, "\n"))
		}
		buffer = buffer[:0]
	}

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		buffer = append(buffer, text)

		if seg.End-seg.Start > paragraphBreakDuration || endsSentence(text) {
			flush()
		}
	}
	flush()

	return strings.Join(paragraphs, "\n\n")
}

func endsSentence(text string) bool {
	return strings.HasSuffix(text, ".") || strings.HasSuffix(text, "!") || strings.HasSuffix(text, "?")
}
