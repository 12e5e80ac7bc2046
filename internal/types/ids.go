// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type SessionID string
type MessageID string

// provisionalPrefix puts client-generated message ids in a namespace the
// backend never issues, so a provisional message cannot collide with the
// server-issued id of its persisted twin.
const provisionalPrefix = "local-"

func NewProvisionalMessageID() MessageID {
	return MessageID(provisionalPrefix + uuid.New().String())
}

// Provisional reports whether the id was generated client-side and has not
// been confirmed by the backend.
func (id MessageID) Provisional() bool {
	return strings.HasPrefix(string(id), provisionalPrefix)
}
