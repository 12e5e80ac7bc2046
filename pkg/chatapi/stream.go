package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/user/studychat/internal/types"
)

// SendStream posts a message to the streaming chat endpoint and returns the
// decoded events in network order. The channel is closed after the terminal
// event or when the stream closes cleanly; the returned stop function
// cancels the underlying transport (already-delivered events are kept).
//
// A non-2xx status is reported as an *APIError before any decoding happens.
func (c *Client) SendStream(ctx context.Context, req types.SendRequest) (<-chan types.StreamEvent, func(), error) {
	buf, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/stream", bytes.NewReader(buf))
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	token, err := c.tokens.Token(ctx)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("bearer token: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.stream.Do(httpReq)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		cancel()
		return nil, nil, decodeAPIError(resp.StatusCode, body)
	}

	events := make(chan types.StreamEvent, 64)

	// The idle timer cancels the request context when no event arrives for
	// too long, so a silent backend cannot hang the exchange forever.
	var timedOut atomic.Bool
	timer := time.AfterFunc(c.idle, func() {
		timedOut.Store(true)
		cancel()
	})

	go func() {
		defer close(events)
		defer resp.Body.Close()
		defer timer.Stop()

		dec := NewDecoder(resp.Body)
		for {
			ev, err := dec.Next()
			if err != nil {
				if err == io.EOF {
					return
				}
				if timedOut.Load() {
					ev = types.StreamEvent{
						Kind:   types.EventError,
						Detail: fmt.Sprintf("no data received for %s", c.idle),
					}
				} else if ctx.Err() != nil {
					// Cancelled by the caller: not an error, just stop.
					return
				} else {
					ev = types.StreamEvent{Kind: types.EventError, Detail: err.Error()}
				}
				// The context may already be cancelled here (idle timer), so
				// deliver through the buffer rather than racing ctx.Done.
				select {
				case events <- ev:
				default:
				}
				return
			}
			timer.Reset(c.idle)
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Terminal() {
				return
			}
		}
	}()

	return events, cancel, nil
}
