package reflow

import (
	"strings"
	"unicode/utf8"
)

// Wrap greedily packs the whitespace-separated tokens of text into lines of at
// most width runes. Tokens are never split: a token longer than width gets a
// line of its own. Empty or blank input yields no lines.
func Wrap(text string, width int) []string {
	if width < 1 {
		width = 1
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	var current strings.Builder
	currentLen := 0

	for _, word := range words {
		wordLen := utf8.RuneCountInString(word)
		if currentLen > 0 && currentLen+1+wordLen > width {
			lines = append(lines, current.String())
			current.Reset()
			currentLen = 0
		}
		if currentLen > 0 {
			current.WriteByte(' ')
			currentLen++
		}
		current.WriteString(word)
		currentLen += wordLen
	}

	if currentLen > 0 {
		lines = append(lines, current.String())
	}

	return lines
}

// runeLen is the display length used for every width comparison
func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
