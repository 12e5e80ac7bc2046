// internal/chat/controller.go
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/user/studychat/internal/buffer"
	"github.com/user/studychat/internal/compose"
	"github.com/user/studychat/internal/directory"
	"github.com/user/studychat/internal/types"
	"github.com/user/studychat/pkg/chatapi"
)

var (
	// ErrSendInFlight is returned when a send starts while another is still
	// streaming for this controller.
	ErrSendInFlight = errors.New("a send is already in flight")
	// ErrNoCategory is returned when sending before any category is set.
	ErrNoCategory = errors.New("no chat category selected")
	// ErrNoSessionCreated reports a first-message send that failed before
	// the backend issued a session id; the exchange was fully rolled back.
	ErrNoSessionCreated = errors.New("send failed before a session was created")
	// ErrSessionNotFound reports a history fetch for a session the backend
	// does not know (deep link to a foreign or deleted session). Terminal
	// page state; not retried.
	ErrSessionNotFound = errors.New("session not found")
)

// Phase tags the controller's position in the session/URL synchronization
// dance. The reconciler branches on it instead of inferring intent from a
// previous-value comparison.
type Phase int

const (
	// PhaseIdle: no synchronization work pending.
	PhaseIdle Phase = iota
	// PhaseSessionJustCreated: the backend issued a session id this
	// exchange and the URL has not caught up yet.
	PhaseSessionJustCreated
	// PhaseNavigating: the user explicitly navigated; the next
	// reconciliation treats a bare category URL as "start fresh".
	PhaseNavigating
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSessionJustCreated:
		return "session_just_created"
	case PhaseNavigating:
		return "navigating"
	}
	return "unknown"
}

// Controller owns the mutable chat state: the current category and session,
// the message buffer, and the directory handle. It is the only writer to
// all of them; every mutation goes through a named operation here.
//
// Policy for a category or session switch while a send is still streaming:
// the in-flight stream is cancelled. Chunks already applied are kept, and a
// per-exchange token turns the cancelled stream's remaining callbacks into
// no-ops so nothing leaks into the newly-displayed buffer.
type Controller struct {
	api    types.SessionAPI
	stream types.Streamer
	dir    *directory.Directory
	guard  *compose.Guard
	log    *slog.Logger

	mu       sync.Mutex
	category types.ChatCategory
	buf      *buffer.Buffer
	archived bool // current session is from the archived list (display only)
	phase    Phase

	sending    bool
	sendGen    uint64 // exchange token; bumped to invalidate stale callbacks
	sendCancel context.CancelFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithGuard installs an outgoing-message token guard.
func WithGuard(g *compose.Guard) Option {
	return func(c *Controller) { c.guard = g }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

func New(api types.SessionAPI, stream types.Streamer, dir *directory.Directory, opts ...Option) *Controller {
	c := &Controller{
		api:    api,
		stream: stream,
		dir:    dir,
		log:    slog.Default(),
		buf:    buffer.New(""),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Category returns the active chat category ("" until bootstrapped).
func (c *Controller) Category() types.ChatCategory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.category
}

// CurrentSession returns the current session id ("" for a fresh
// conversation whose first send has not completed).
func (c *Controller) CurrentSession() types.SessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.SessionID()
}

// CurrentSessionArchived reports whether the current session was adopted
// from the archived list.
func (c *Controller) CurrentSessionArchived() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.archived
}

// Phase returns the synchronization phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// SendInFlight reports whether an exchange is currently streaming.
func (c *Controller) SendInFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Messages returns a snapshot of the current conversation in send order.
func (c *Controller) Messages() []*types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Snapshot()
}

// Directory exposes the session directory for read-side consumers.
func (c *Controller) Directory() *directory.Directory {
	return c.dir
}

// BeginNavigate flags that the next URL change is an explicit user
// navigation, so a bare category path means "start a new conversation"
// rather than "the URL has not caught up yet".
func (c *Controller) BeginNavigate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseNavigating
}

// MarkURLSynced is called by the reconciler once the URL carries the
// freshly-created session id.
func (c *Controller) MarkURLSynced() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseSessionJustCreated {
		c.phase = PhaseIdle
	}
}

// SwitchCategory makes a different category current: the in-flight stream
// (if any) is cancelled, the conversation is cleared, and the category's
// session list is fetched in the background.
func (c *Controller) SwitchCategory(category types.ChatCategory) error {
	if !category.Valid() {
		return fmt.Errorf("invalid chat category: %q", category)
	}
	c.mu.Lock()
	if c.category == category {
		c.mu.Unlock()
		return nil
	}
	c.cancelExchangeLocked()
	c.category = category
	c.buf = buffer.New("")
	c.archived = false
	c.phase = PhaseIdle
	c.mu.Unlock()

	go func() {
		if _, err := c.dir.Fetch(context.Background(), category); err != nil {
			c.log.Warn("session list fetch failed", "category", category, "error", err)
		}
	}()
	return nil
}

// AdoptSession makes the given session current without fetching its
// history (the page loads history independently via LoadHistory). Unknown
// ids are adopted optimistically; archived status comes from whatever the
// directory has cached.
func (c *Controller) AdoptSession(id types.SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buf.SessionID() == id {
		return
	}
	c.cancelExchangeLocked()
	c.buf = buffer.New(id)
	_, archived, ok := c.dir.Lookup(id)
	c.archived = ok && archived
	c.phase = PhaseIdle
}

// OpenSession adopts a session and loads its history in one step.
func (c *Controller) OpenSession(ctx context.Context, id types.SessionID) error {
	c.AdoptSession(id)
	return c.LoadHistory(ctx)
}

// NewConversation starts a fresh conversation in the current category. The
// caller is expected to navigate to the bare category path alongside.
func (c *Controller) NewConversation() {
	c.ClearSession()
}

// ClearSession drops the current session and its messages, keeping the
// category. Used when the user navigates to the bare category path.
func (c *Controller) ClearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelExchangeLocked()
	c.buf = buffer.New("")
	c.archived = false
	c.phase = PhaseIdle
}

// LoadHistory fetches the current session's messages and replaces the
// buffer with them. A backend 404 maps to ErrSessionNotFound, which the
// page surfaces as a terminal error state.
func (c *Controller) LoadHistory(ctx context.Context) error {
	c.mu.Lock()
	id := c.buf.SessionID()
	c.mu.Unlock()
	if id == "" {
		return nil
	}

	msgs, err := c.api.ListMessages(ctx, id)
	if err != nil {
		var apiErr *chatapi.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return fmt.Errorf("load history: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// The session may have changed while the fetch was in flight.
	if c.buf.SessionID() != id {
		return nil
	}
	c.buf.Reset(id, msgs)
	return nil
}

// Archive archives a session and re-fetches its category's lists. If the
// archived session was current, the conversation is cleared.
func (c *Controller) Archive(ctx context.Context, id types.SessionID) error {
	category := c.sessionCategory(id)
	if err := c.dir.Archive(ctx, id); err != nil {
		return err
	}
	if c.CurrentSession() == id {
		c.ClearSession()
	}
	c.refetchLists(ctx, category)
	return nil
}

// Restore restores an archived session and re-fetches its category's lists.
func (c *Controller) Restore(ctx context.Context, id types.SessionID) error {
	category := c.sessionCategory(id)
	if err := c.dir.Restore(ctx, id); err != nil {
		return err
	}
	c.refetchLists(ctx, category)
	return nil
}

// sessionCategory resolves the category a session belongs to, so a write to
// a session outside the current category still refreshes the right lists.
// Falls back to the current category when the id is not cached anywhere.
func (c *Controller) sessionCategory(id types.SessionID) types.ChatCategory {
	if s, _, ok := c.dir.Lookup(id); ok {
		return s.ChatType
	}
	return c.Category()
}

// GenerateTitle asks the backend to title the current session. Explicitly
// user-initiated; the client never triggers it on its own.
func (c *Controller) GenerateTitle(ctx context.Context) (string, error) {
	id := c.CurrentSession()
	if id == "" {
		return "", errors.New("no current session to title")
	}
	title, err := c.api.GenerateTitle(ctx, id)
	if err != nil {
		return "", fmt.Errorf("generate title: %w", err)
	}
	c.refetchLists(ctx, c.sessionCategory(id))
	return title, nil
}

func (c *Controller) refetchLists(ctx context.Context, category types.ChatCategory) {
	if category == "" {
		return
	}
	c.dir.Invalidate(category)
	if _, err := c.dir.Fetch(ctx, category); err != nil {
		c.log.Warn("active list re-fetch failed", "category", category, "error", err)
	}
	if _, err := c.dir.FetchArchived(ctx, category); err != nil {
		c.log.Warn("archived list re-fetch failed", "category", category, "error", err)
	}
}

// cancelExchangeLocked aborts the in-flight exchange, if any, and
// invalidates its pending callbacks. Caller holds c.mu.
func (c *Controller) cancelExchangeLocked() {
	if c.sendCancel != nil {
		c.sendCancel()
		c.sendCancel = nil
	}
	c.sending = false
	c.sendGen++
}
