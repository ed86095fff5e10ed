package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"whisperpad/worker"
)

// maxEventBatch caps how many queued events one Update call applies
const maxEventBatch = 64

// eventsMsg delivers worker events, in emission order, to Update
type eventsMsg struct {
	events []worker.Event
	closed bool
}

// waitForEvents blocks until the worker emits, then drains whatever else is
// already queued so bursts of engine output cost one redraw
func waitForEvents(ch <-chan worker.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsMsg{closed: true}
		}

		events := []worker.Event{ev}
		for len(events) < maxEventBatch {
			select {
			case ev, ok := <-ch:
				if !ok {
					return eventsMsg{events: events, closed: true}
				}
				events = append(events, ev)
			default:
				return eventsMsg{events: events}
			}
		}
		return eventsMsg{events: events}
	}
}
