// internal/types/models.go
package types

import (
	"fmt"
	"strings"
	"time"
)

// ChatCategory identifies a conversation domain. Immutable once a session
// is created.
type ChatCategory string

const (
	CategoryGeneral      ChatCategory = "general"
	CategorySelfAnalysis ChatCategory = "self_analysis"
	CategoryAdmission    ChatCategory = "admission"
	CategoryStudySupport ChatCategory = "study_support"
	CategoryFAQ          ChatCategory = "faq"
)

// Categories lists all known chat categories in display order.
func Categories() []ChatCategory {
	return []ChatCategory{
		CategoryGeneral,
		CategorySelfAnalysis,
		CategoryAdmission,
		CategoryStudySupport,
		CategoryFAQ,
	}
}

func (c ChatCategory) Valid() bool {
	switch c {
	case CategoryGeneral, CategorySelfAnalysis, CategoryAdmission, CategoryStudySupport, CategoryFAQ:
		return true
	}
	return false
}

// Slug returns the kebab-case path form of the category
// (e.g. "self_analysis" -> "self-analysis"). The transform is the routing
// contract: it must stay bidirectional and lossless with CategoryFromSlug.
func (c ChatCategory) Slug() string {
	return strings.ReplaceAll(string(c), "_", "-")
}

// CategoryFromSlug parses the kebab-case path segment back into a category.
func CategoryFromSlug(slug string) (ChatCategory, error) {
	c := ChatCategory(strings.ReplaceAll(slug, "-", "_"))
	if !c.Valid() {
		return "", fmt.Errorf("unknown chat category slug: %q", slug)
	}
	return c, nil
}

// SessionStatus is the lifecycle state of a session.
const (
	SessionActive   = "active"
	SessionArchived = "archived"
)

// Session is a cached, possibly-stale copy of a backend-owned conversation
// thread. The client never deletes sessions; it only archives and restores
// them through the backend.
type Session struct {
	ID        SessionID    `json:"id"`
	ChatType  ChatCategory `json:"chat_type"`
	Title     string       `json:"title,omitempty"`
	Status    string       `json:"status,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at,omitempty"`
}

// SortKey is the timestamp sessions are ordered by: updated_at when present,
// created_at otherwise. Computed at call time so message activity that
// touches updated_at reorders the list without an explicit re-sort step.
func (s *Session) SortKey() time.Time {
	if !s.UpdatedAt.IsZero() {
		return s.UpdatedAt
	}
	return s.CreatedAt
}

// Role is the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a session's conversation. The transient flags are
// client-only state and never round-trip through the backend.
type Message struct {
	ID        MessageID `json:"id"`
	SessionID SessionID `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// Seq is the client-side send order. Message order within a session is
	// a strict total order by send sequence, not wall-clock arrival.
	Seq int64 `json:"-"`

	Pending   bool `json:"-"`
	Streaming bool `json:"-"`
	Errored   bool `json:"-"`
}
