// internal/buffer/buffer.go
package buffer

import (
	"errors"
	"time"

	"github.com/user/studychat/internal/types"
)

var (
	// ErrProvisionalExists is returned when a provisional message is
	// appended while a previous one is still outstanding.
	ErrProvisionalExists = errors.New("a provisional message is already outstanding")
	// ErrNoProvisional is returned when confirming or rolling back with no
	// outstanding provisional message.
	ErrNoProvisional = errors.New("no outstanding provisional message")
)

// Buffer holds the ordered message list for one conversation and performs
// the optimistic-update bookkeeping for sends: a provisional user message
// goes in immediately, the streaming assistant message grows in place, and
// failures roll back or flag rather than silently dropping content.
//
// Messages keep a strict send-sequence order; a streaming assistant message
// sits immediately after its triggering user message regardless of when its
// content arrives.
type Buffer struct {
	sessionID types.SessionID
	msgs      []*types.Message
	nextSeq   int64

	provisional *types.Message // at most one, for the current send
	assistant   *types.Message // streaming reply of the current send
}

func New(sessionID types.SessionID) *Buffer {
	return &Buffer{sessionID: sessionID}
}

// SessionID returns the session this buffer belongs to. Empty for a
// brand-new conversation whose first send has not completed.
func (b *Buffer) SessionID() types.SessionID {
	return b.sessionID
}

// BindSession sets the session id once the backend issues one. Messages
// already in the buffer are re-homed to it.
func (b *Buffer) BindSession(id types.SessionID) {
	b.sessionID = id
	for _, m := range b.msgs {
		m.SessionID = id
	}
}

// Reset replaces the buffer contents with authoritative history. Any
// outstanding provisional or streaming state is discarded.
func (b *Buffer) Reset(sessionID types.SessionID, msgs []*types.Message) {
	b.sessionID = sessionID
	b.msgs = make([]*types.Message, len(msgs))
	copy(b.msgs, msgs)
	for i, m := range b.msgs {
		m.Seq = int64(i + 1)
	}
	b.nextSeq = int64(len(msgs))
	b.provisional = nil
	b.assistant = nil
}

// Snapshot returns a copy of the message list in send order.
func (b *Buffer) Snapshot() []*types.Message {
	out := make([]*types.Message, len(b.msgs))
	copy(out, b.msgs)
	return out
}

func (b *Buffer) Len() int {
	return len(b.msgs)
}

// AppendProvisional inserts a pending user message at the tail and returns
// it. The id is drawn from the client-local space, disjoint from server ids.
func (b *Buffer) AppendProvisional(content string) (*types.Message, error) {
	if b.provisional != nil {
		return nil, ErrProvisionalExists
	}
	b.nextSeq++
	m := &types.Message{
		ID:        types.NewProvisionalMessageID(),
		SessionID: b.sessionID,
		Role:      types.RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
		Seq:       b.nextSeq,
		Pending:   true,
	}
	b.msgs = append(b.msgs, m)
	b.provisional = m
	return m, nil
}

// ConfirmProvisional finishes the outstanding provisional message. With a
// nil authoritative message the provisional is kept and its pending flag
// cleared; otherwise it is replaced 1:1 at the same position so the list
// never holds both twins.
func (b *Buffer) ConfirmProvisional(authoritative *types.Message) error {
	if b.provisional == nil {
		return ErrNoProvisional
	}
	if authoritative == nil {
		b.provisional.Pending = false
		b.provisional = nil
		return nil
	}
	for i, m := range b.msgs {
		if m.ID == b.provisional.ID {
			authoritative.Seq = m.Seq
			authoritative.SessionID = b.sessionID
			b.msgs[i] = authoritative
			break
		}
	}
	b.provisional = nil
	return nil
}

// RollbackProvisional removes the outstanding provisional message entirely,
// as when a send fails before any session existed. The in-flight assistant
// message goes with it: a rollback undoes the whole exchange, including
// content that streamed in before the failure.
func (b *Buffer) RollbackProvisional() error {
	if b.provisional == nil {
		return ErrNoProvisional
	}
	b.remove(b.provisional.ID)
	if b.assistant != nil {
		b.remove(b.assistant.ID)
	}
	b.provisional = nil
	b.assistant = nil
	return nil
}

func (b *Buffer) remove(id types.MessageID) {
	for i, m := range b.msgs {
		if m.ID == id {
			b.msgs = append(b.msgs[:i], b.msgs[i+1:]...)
			return
		}
	}
}

// MarkProvisionalErrored flags the provisional message as failed but keeps
// it visible, for sends that fail inside an existing session.
func (b *Buffer) MarkProvisionalErrored() {
	if b.provisional == nil {
		return
	}
	b.provisional.Pending = false
	b.provisional.Errored = true
	b.provisional = nil
}

// AppendChunk applies one streamed content chunk. The first chunk of an
// exchange creates the streaming assistant message at the tail; later chunks
// grow its content monotonically (never replaced wholesale).
func (b *Buffer) AppendChunk(text string) {
	if b.assistant == nil {
		b.nextSeq++
		b.assistant = &types.Message{
			ID:        types.NewProvisionalMessageID(),
			SessionID: b.sessionID,
			Role:      types.RoleAssistant,
			CreatedAt: time.Now(),
			Seq:       b.nextSeq,
			Streaming: true,
		}
		b.msgs = append(b.msgs, b.assistant)
	}
	b.assistant.Content += text
}

// StreamedContent returns the assistant content accumulated so far in the
// current exchange.
func (b *Buffer) StreamedContent() string {
	if b.assistant == nil {
		return ""
	}
	return b.assistant.Content
}

// FinishStream marks the current exchange's assistant message complete.
func (b *Buffer) FinishStream() {
	if b.assistant != nil {
		b.assistant.Streaming = false
		b.assistant = nil
	}
}

// FailStream flags the failure on the streaming assistant message, or on the
// provisional user message when no assistant content had arrived yet.
// Content already streamed is retained.
func (b *Buffer) FailStream() {
	if b.assistant != nil {
		b.assistant.Streaming = false
		b.assistant.Errored = true
		b.assistant = nil
		if b.provisional != nil {
			b.provisional.Pending = false
			b.provisional = nil
		}
		return
	}
	b.MarkProvisionalErrored()
}
