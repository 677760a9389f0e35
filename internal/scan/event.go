package scan

import (
	"fmt"
	"time"
)

// EventKind tags an Event.
type EventKind uint8

const (
	EventStatus EventKind = iota
	EventProgress
	EventDirectorySize
	EventCompleted
	EventError
	EventTimedOut
)

func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventProgress:
		return "progress"
	case EventDirectorySize:
		return "directory_size"
	case EventCompleted:
		return "completed"
	case EventError:
		return "error"
	case EventTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EventKind) UnmarshalText(b []byte) error {
	for kind := EventStatus; kind <= EventTimedOut; kind++ {
		if kind.String() == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", b)
}

// Event is one progress notification. Only the field matching Kind is set.
type Event struct {
	Kind    EventKind `json:"kind"`
	Text    string    `json:"text,omitempty"`
	Percent int       `json:"percent,omitempty"`
	Bytes   int64     `json:"bytes,omitempty"`
	Time    time.Time `json:"time"`
}

// Terminal reports whether ev ends the stream.
func (ev Event) Terminal() bool {
	switch ev.Kind {
	case EventCompleted, EventError, EventTimedOut:
		return true
	}
	return false
}

func statusEvent(text string) Event {
	return Event{Kind: EventStatus, Text: text, Time: time.Now()}
}

func progressEvent(percent int) Event {
	return Event{Kind: EventProgress, Percent: percent, Time: time.Now()}
}

// Sink receives events from the engine. Emit must not block for long; the
// engine calls it from its own goroutine.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(ev).
func (f SinkFunc) Emit(ev Event) { f(ev) }

type discard struct{}

func (discard) Emit(Event) {}

// Discard drops every event.
var Discard Sink = discard{}
