package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
)

// savedMsg is sent when a save finishes
type savedMsg struct {
	path string
	err  error
}

// copiedMsg is sent when a clipboard copy finishes
type copiedMsg struct {
	chars int
	err   error
}

// loadModelMsg asks Update to start loading a model
type loadModelMsg struct {
	model string
}

// ClipboardFunc writes text to the system clipboard
type ClipboardFunc func(text string) error

// DefaultTranscriptName is the suggested save path for a source file
func DefaultTranscriptName(source string) string {
	if source == "" {
		return "transcript.txt"
	}
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return base + "_transcript.txt"
}

// saveCmd writes text to path
func saveCmd(path, text string) tea.Cmd {
	return func() tea.Msg {
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			return savedMsg{path: path, err: fmt.Errorf("failed to save %s: %w", path, err)}
		}
		return savedMsg{path: path}
	}
}

// copyCmd places text on the clipboard
func copyCmd(write ClipboardFunc, text string) tea.Cmd {
	if write == nil {
		write = clipboard.WriteAll
	}
	return func() tea.Msg {
		if err := write(text); err != nil {
			return copiedMsg{err: fmt.Errorf("failed to copy to clipboard: %w", err)}
		}
		return copiedMsg{chars: len([]rune(text))}
	}
}
