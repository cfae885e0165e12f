package session

import (
	"sync"

	"github.com/kozaktomas/rollcall/internal/constants"
)

// Event types sent to session listeners.
const (
	EventState             = "state"
	EventRecognitionFailed = "recognition_failed"
	EventDecisionUpdated   = "decision_updated"
	EventCommitProgress    = "commit_progress"
	EventCommitPartial     = "commit_partial"
	EventCommitted         = "committed"
	EventCancelled         = "cancelled"
)

// Event is a session notification.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	State     State  `json:"state"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// EventBroadcaster fans session events out to listeners. Once the session
// closes every listener channel is closed and new listeners get a closed
// channel.
type EventBroadcaster struct {
	listeners []chan Event
	closed    bool
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, constants.EventChannelBuffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// closeListeners closes every listener after the final event.
func (b *EventBroadcaster) closeListeners() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.listeners {
		close(ch)
	}
	b.listeners = nil
}
