// internal/types/events.go
package types

// EventKind discriminates decoded stream events.
type EventKind int

const (
	// EventSessionInit carries the backend-issued session id (and optional
	// title) for a brand-new conversation. Emitted at most once per stream.
	EventSessionInit EventKind = iota
	// EventChunk carries an incremental piece of assistant content.
	EventChunk
	// EventError is terminal: the backend reported a failure mid-stream.
	EventError
	// EventDone is terminal: the exchange completed cleanly.
	EventDone
	// EventUnrecognized is a well-formed JSON frame matching none of the
	// known shapes. Callers log and skip it rather than guessing.
	EventUnrecognized
)

func (k EventKind) String() string {
	switch k {
	case EventSessionInit:
		return "session_initialized"
	case EventChunk:
		return "chunk"
	case EventError:
		return "error"
	case EventDone:
		return "done"
	case EventUnrecognized:
		return "unrecognized"
	}
	return "unknown"
}

// StreamEvent is one decoded unit of the streaming send protocol.
type StreamEvent struct {
	Kind      EventKind
	SessionID SessionID // EventSessionInit
	Title     string    // EventSessionInit, may be empty
	Text      string    // EventChunk
	Detail    string    // EventError
	Raw       string    // EventUnrecognized: the original frame text
}

// Terminal reports whether the event ends the exchange.
func (e StreamEvent) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}
