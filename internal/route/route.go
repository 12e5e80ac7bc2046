// internal/route/route.go
package route

import (
	"fmt"
	"strings"

	"github.com/user/studychat/internal/types"
)

// Route is the parsed form of a chat path: /chat/{category-slug}/{sessionId?}.
// The zero Route means "no chat route" (no category, no session).
type Route struct {
	Category  types.ChatCategory
	SessionID types.SessionID
}

// ParsePath parses a chat path. The session id segment is optional; a path
// with an unknown category slug is an error.
func ParsePath(path string) (Route, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] != "chat" {
		return Route{}, fmt.Errorf("not a chat path: %q", path)
	}
	category, err := types.CategoryFromSlug(parts[1])
	if err != nil {
		return Route{}, err
	}
	r := Route{Category: category}
	if len(parts) >= 3 && parts[2] != "" {
		r.SessionID = types.SessionID(parts[2])
	}
	return r, nil
}

// Path renders the route back to its canonical path form.
func (r Route) Path() string {
	if r.Category == "" {
		return "/"
	}
	if r.SessionID == "" {
		return "/chat/" + r.Category.Slug()
	}
	return "/chat/" + r.Category.Slug() + "/" + string(r.SessionID)
}

// IsZero reports whether the route names no category at all.
func (r Route) IsZero() bool {
	return r.Category == ""
}

// Navigator abstracts the browser history surface the reconciler steers:
// the current location plus push/replace navigation. Replace must not add a
// history entry.
type Navigator interface {
	Current() Route
	Push(r Route)
	Replace(r Route)
}

// History is an in-memory Navigator holding a linear entry list, the way a
// browser history behaves for this subsystem's purposes.
type History struct {
	entries []Route
}

// NewHistory creates a History positioned at the given initial route.
func NewHistory(initial Route) *History {
	return &History{entries: []Route{initial}}
}

func (h *History) Current() Route {
	return h.entries[len(h.entries)-1]
}

// Push navigates to a new route, adding a history entry.
func (h *History) Push(r Route) {
	h.entries = append(h.entries, r)
}

// Replace swaps the current entry without growing the history.
func (h *History) Replace(r Route) {
	h.entries[len(h.entries)-1] = r
}

// Len returns the number of history entries.
func (h *History) Len() int {
	return len(h.entries)
}
