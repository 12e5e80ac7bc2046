// internal/chat/send.go
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/user/studychat/internal/buffer"
	"github.com/user/studychat/internal/types"
)

// SendOption configures a single Send call.
type SendOption func(*sendOptions)

type sendOptions struct {
	onDelta    func(string)
	onFinished func(error)
}

// WithOnDelta registers a callback invoked for every assistant content
// chunk as it arrives. Called from the exchange goroutine.
func WithOnDelta(fn func(string)) SendOption {
	return func(o *sendOptions) { o.onDelta = fn }
}

// WithOnFinished registers a callback invoked exactly once when the
// exchange ends, with nil on success. Not invoked if the exchange is
// cancelled by a category or session switch.
func WithOnFinished(fn func(error)) SendOption {
	return func(o *sendOptions) { o.onFinished = fn }
}

// Send starts an exchange: the user message is appended provisionally and
// the request streams in the background. Send itself returns immediately;
// progress is observable through Messages and the callbacks.
//
// At most one exchange runs at a time; a second Send while one is in
// flight returns ErrSendInFlight.
func (c *Controller) Send(ctx context.Context, content string, opts ...SendOption) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return errors.New("empty message")
	}

	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := c.guard.Check(content); err != nil {
		return err
	}

	c.mu.Lock()
	if c.category == "" {
		c.mu.Unlock()
		return ErrNoCategory
	}
	if c.sending {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	category := c.category
	sessionID := c.buf.SessionID()
	if _, err := c.buf.AppendProvisional(content); err != nil {
		c.mu.Unlock()
		return err
	}

	c.sending = true
	c.sendGen++
	gen := c.sendGen

	// The exchange outlives the caller's context deliberately: a send keeps
	// streaming after the triggering call returns. Cancellation happens via
	// sendCancel (switch/clear) or the streamer's own idle timeout.
	exCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.sendCancel = cancel
	c.mu.Unlock()

	go c.runExchange(exCtx, gen, category, sessionID, content, o)
	return nil
}

func (c *Controller) runExchange(ctx context.Context, gen uint64, category types.ChatCategory, sessionID types.SessionID, content string, o sendOptions) {
	req := types.SendRequest{
		Message:   content,
		ChatType:  category,
		SessionID: sessionID,
	}

	events, stop, err := c.stream.SendStream(ctx, req)
	if err != nil {
		c.failExchange(gen, sessionID, "", fmt.Errorf("send: %w", err), o)
		return
	}
	defer stop()

	var (
		gotSession types.SessionID
		streamErr  error
	)

	for ev := range events {
		switch ev.Kind {
		case types.EventSessionInit:
			gotSession = ev.SessionID
			c.applySessionInit(gen, ev.SessionID)
			if ev.Text != "" {
				c.applyChunk(gen, ev.Text, o)
			}
		case types.EventChunk:
			c.applyChunk(gen, ev.Text, o)
		case types.EventError:
			streamErr = fmt.Errorf("stream error: %s", ev.Detail)
		case types.EventDone, types.EventUnrecognized:
			// done handled after the loop; unrecognized frames are skipped
		}
	}

	if streamErr != nil {
		c.failExchange(gen, sessionID, gotSession, streamErr, o)
		return
	}
	c.finishExchange(gen, o)
}

// applySessionInit binds the freshly-issued session id, promotes the
// provisional user message, and flags the URL as behind. No-op if the
// exchange was superseded.
func (c *Controller) applySessionInit(gen uint64, id types.SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.sendGen {
		return
	}
	if c.buf.SessionID() == "" {
		c.buf.BindSession(id)
		c.phase = PhaseSessionJustCreated
	}
	if err := c.buf.ConfirmProvisional(nil); err != nil {
		c.log.Debug("provisional confirm skipped", "error", err)
	}
	category := c.category
	go func() {
		if _, err := c.dir.Fetch(context.Background(), category); err != nil {
			c.log.Warn("session list refresh failed", "error", err)
		}
	}()
}

func (c *Controller) applyChunk(gen uint64, text string, o sendOptions) {
	c.mu.Lock()
	if gen != c.sendGen {
		c.mu.Unlock()
		return
	}
	c.buf.AppendChunk(text)
	c.mu.Unlock()
	if o.onDelta != nil {
		o.onDelta(text)
	}
}

func (c *Controller) finishExchange(gen uint64, o sendOptions) {
	c.mu.Lock()
	if gen != c.sendGen {
		c.mu.Unlock()
		return
	}
	c.sending = false
	c.sendCancel = nil
	// Existing-session sends see no session_initialized frame, so the
	// provisional may still be pending here.
	if err := c.buf.ConfirmProvisional(nil); err != nil && !errors.Is(err, buffer.ErrNoProvisional) {
		c.log.Debug("provisional confirm skipped", "error", err)
	}
	c.buf.FinishStream()
	category := c.category
	c.mu.Unlock()

	go func() {
		if _, err := c.dir.Fetch(context.Background(), category); err != nil {
			c.log.Warn("post-exchange list refresh failed", "error", err)
		}
	}()
	if o.onFinished != nil {
		o.onFinished(nil)
	}
}

// failExchange applies the failure policy: if the send targeted an
// existing or newly-initialized session, the provisional stays with an
// error flag; if it failed before any session existed, the whole exchange
// rolls back.
func (c *Controller) failExchange(gen uint64, priorSession, gotSession types.SessionID, cause error, o sendOptions) {
	c.mu.Lock()
	if gen != c.sendGen {
		c.mu.Unlock()
		return
	}
	c.sending = false
	c.sendCancel = nil

	finalErr := cause
	if priorSession == "" && gotSession == "" {
		if err := c.buf.RollbackProvisional(); err != nil {
			c.log.Debug("rollback skipped", "error", err)
		}
		finalErr = fmt.Errorf("%w: %v", ErrNoSessionCreated, cause)
	} else {
		c.buf.FailStream()
	}
	c.mu.Unlock()

	c.log.Warn("exchange failed", "error", cause)
	if o.onFinished != nil {
		o.onFinished(finalErr)
	}
}
