package reflow

import (
	"regexp"
	"strings"
)

var terminatorRun = regexp.MustCompile(`[.!?]+\s*`)

// FormatContinuous reflows a flat transcript, packing whole sentences onto
// lines and keeping terminating punctuation attached to the text before it.
func FormatContinuous(text string, width int) string {
	if width < 1 {
		width = 1
	}

	collapsed := strings.Join(strings.Fields(text), " ")
	if runeLen(collapsed) <= width {
		return collapsed
	}

	var lines []string
	current := ""

	for _, token := range splitSentences(collapsed) {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		if isTerminator(token) {
			switch {
			case current != "":
				current += token
			case len(lines) > 0:
				// The sentence was hard-wrapped; keep its punctuation on its last line
				lines[len(lines)-1] += token
			}
			// Leading punctuation with no sentence before it is dropped
			continue
		}

		candidate := token
		if current != "" {
			candidate = current + " " + token
		}
		if runeLen(candidate) <= width {
			current = candidate
			continue
		}

		if current != "" {
			lines = append(lines, current)
			current = ""
		}
		if runeLen(token) <= width {
			current = token
		} else {
			lines = append(lines, Wrap(token, width)...)
		}
	}

	if current != "" {
		lines = append(lines, current)
	}

	return strings.Join(lines, "\n")
}

// splitSentences splits text into alternating sentence bodies and terminator
// runs, keeping the terminators as their own tokens
func splitSentences(text string) []string {
	var tokens []string
	last := 0
	for _, loc := range terminatorRun.FindAllStringIndex(text, -1) {
		tokens = append(tokens, text[last:loc[0]], text[loc[0]:loc[1]])
		last = loc[1]
	}
	return append(tokens, text[last:])
}

func isTerminator(token string) bool {
	return strings.Trim(token, ".!?") == ""
}
