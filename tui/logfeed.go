package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
)

// LogKind selects the icon and colour of a log entry
type LogKind string

const (
	LogInfo     LogKind = "info"
	LogStatus   LogKind = "status"
	LogError    LogKind = "error"
	LogComplete LogKind = "complete"
)

// LogEntry is one line in the log surface
type LogEntry struct {
	Timestamp time.Time
	Kind      LogKind
	Text      string
}

// LogFeed is the scrolling operator log
type LogFeed struct {
	Entries []LogEntry

	Viewport viewport.Model

	// MaxEntries limits the number of entries kept (0 = unlimited)
	MaxEntries int
}

// NewLogFeed creates a log feed with the given dimensions
func NewLogFeed(width, height int) *LogFeed {
	return &LogFeed{
		Viewport:   viewport.New(width, height),
		MaxEntries: 1000,
	}
}

// Add appends an entry and scrolls to it
func (f *LogFeed) Add(kind LogKind, text string) {
	f.AddEntry(LogEntry{Timestamp: time.Now(), Kind: kind, Text: text})
}

// AddEntry appends a fully specified entry
func (f *LogFeed) AddEntry(e LogEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	f.Entries = append(f.Entries, e)

	// Trim old entries if needed
	if f.MaxEntries > 0 && len(f.Entries) > f.MaxEntries {
		f.Entries = f.Entries[len(f.Entries)-f.MaxEntries:]
	}

	f.Viewport.SetContent(f.Render())
	f.Viewport.GotoBottom()
}

// SetSize updates the feed dimensions
func (f *LogFeed) SetSize(width, height int) {
	f.Viewport.Width = width
	f.Viewport.Height = height
	f.Viewport.SetContent(f.Render())
}

// Clear removes all entries
func (f *LogFeed) Clear() {
	f.Entries = nil
	f.Viewport.SetContent(f.Render())
}

// View returns the viewport view for Bubble Tea
func (f *LogFeed) View() string {
	return f.Viewport.View()
}

// Text returns the log as plain lines, for copying and saving
func (f *LogFeed) Text() string {
	lines := make([]string, 0, len(f.Entries))
	for _, e := range f.Entries {
		lines = append(lines, fmt.Sprintf("%s %s", e.Timestamp.Format("15:04:05"), e.Text))
	}
	return strings.Join(lines, "\n")
}

// Render renders all entries to a string
func (f *LogFeed) Render() string {
	if len(f.Entries) == 0 {
		return MutedStyle.Render("  Nothing logged yet")
	}

	timestampStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	lines := make([]string, 0, len(f.Entries))
	for _, e := range f.Entries {
		icon, style := logStyle(e.Kind)
		lines = append(lines, fmt.Sprintf("%s %s %s",
			timestampStyle.Render(e.Timestamp.Format("15:04:05")),
			style.Render(icon),
			style.Render(e.Text),
		))
	}
	return strings.Join(lines, "\n")
}

func logStyle(kind LogKind) (string, lipgloss.Style) {
	switch kind {
	case LogStatus:
		return "[>]", lipgloss.NewStyle().Foreground(ColorSecondary)
	case LogError:
		return "[!]", lipgloss.NewStyle().Foreground(ColorError)
	case LogComplete:
		return "[x]", lipgloss.NewStyle().Foreground(ColorSuccess)
	default:
		return "[-]", lipgloss.NewStyle().Foreground(ColorText)
	}
}
