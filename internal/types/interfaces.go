// internal/types/interfaces.go
package types

import "context"

// SessionAPI is the backend session CRUD surface consumed by the directory
// and controller. All requests carry a bearer credential supplied by the
// external auth collaborator.
type SessionAPI interface {
	ListSessions(ctx context.Context, category ChatCategory) ([]*Session, error)
	ListArchivedSessions(ctx context.Context, category ChatCategory) ([]*Session, error)
	CreateSession(ctx context.Context, category ChatCategory) (*Session, error)
	ArchiveSession(ctx context.Context, id SessionID) error
	RestoreSession(ctx context.Context, id SessionID) error
	ListMessages(ctx context.Context, id SessionID) ([]*Message, error)
	GenerateTitle(ctx context.Context, id SessionID) (string, error)
}

// SendRequest is the body of a streaming send. SessionID is empty for the
// first message of a brand-new conversation.
type SendRequest struct {
	Message   string       `json:"message"`
	ChatType  ChatCategory `json:"chat_type"`
	SessionID SessionID    `json:"session_id,omitempty"`
}

// Streamer performs a streaming send. The returned channel yields decoded
// events strictly in network order and is closed after the terminal event.
// The stop function cancels the underlying transport; already-delivered
// events are unaffected.
type Streamer interface {
	SendStream(ctx context.Context, req SendRequest) (<-chan StreamEvent, func(), error)
}
