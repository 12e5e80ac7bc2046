package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/user/studychat/internal/types"
)

const defaultIdleTimeout = 90 * time.Second

// Config holds the settings for a backend client.
type Config struct {
	// BaseURL is the backend root, without a trailing slash.
	BaseURL string
	// Tokens supplies the bearer credential for every request.
	Tokens TokenSource
	// IdleTimeout bounds the gap between stream events before the stream is
	// failed rather than left hanging. Zero means the default (90s).
	IdleTimeout time.Duration
	// Retry applies to idempotent fetches only. Nil means the default policy.
	Retry *RetryPolicy
}

// Client talks to the chat backend: session CRUD plus the streaming send.
// It implements types.SessionAPI and types.Streamer.
type Client struct {
	baseURL string
	tokens  TokenSource
	idle    time.Duration
	retry   *RetryPolicy

	// JSON calls get a bounded client; stream bodies must outlive any
	// overall timeout, so they use a separate one.
	http   *http.Client
	stream *http.Client
}

func New(cfg *Config) *Client {
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	retry := cfg.Retry
	if retry == nil {
		retry = DefaultRetryPolicy()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		tokens:  cfg.Tokens,
		idle:    idle,
		retry:   retry,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		stream: &http.Client{},
	}
}

// APIError is a non-2xx backend response, carrying the JSON `detail` field
// when the body had one.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Detail)
}

func decodeAPIError(statusCode int, body []byte) *APIError {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return &APIError{StatusCode: statusCode, Detail: payload.Detail}
	}
	detail := strings.TrimSpace(string(body))
	if detail == "" {
		detail = http.StatusText(statusCode)
	}
	return &APIError{StatusCode: statusCode, Detail: detail}
}

func (c *Client) ListSessions(ctx context.Context, category types.ChatCategory) ([]*types.Session, error) {
	var sessions []*types.Session
	path := "/sessions?" + url.Values{"chat_type": {string(category)}}.Encode()
	if err := c.getJSON(ctx, path, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (c *Client) ListArchivedSessions(ctx context.Context, category types.ChatCategory) ([]*types.Session, error) {
	var sessions []*types.Session
	path := "/sessions/archived?" + url.Values{"chat_type": {string(category)}}.Encode()
	if err := c.getJSON(ctx, path, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (c *Client) CreateSession(ctx context.Context, category types.ChatCategory) (*types.Session, error) {
	body := map[string]types.ChatCategory{"chat_type": category}
	var session types.Session
	if err := c.doJSON(ctx, http.MethodPost, "/sessions", body, &session); err != nil {
		return nil, err
	}
	if session.ChatType == "" {
		session.ChatType = category
	}
	return &session, nil
}

func (c *Client) ArchiveSession(ctx context.Context, id types.SessionID) error {
	return c.doJSON(ctx, http.MethodPatch, "/sessions/"+string(id)+"/archive", nil, nil)
}

func (c *Client) RestoreSession(ctx context.Context, id types.SessionID) error {
	return c.doJSON(ctx, http.MethodPatch, "/sessions/"+string(id)+"/restore", nil, nil)
}

func (c *Client) ListMessages(ctx context.Context, id types.SessionID) ([]*types.Message, error) {
	var messages []*types.Message
	if err := c.getJSON(ctx, "/sessions/"+string(id)+"/messages", &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *Client) GenerateTitle(ctx context.Context, id types.SessionID) (string, error) {
	var resp struct {
		Title string `json:"title"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/sessions/"+string(id)+"/title", nil, &resp); err != nil {
		return "", err
	}
	return resp.Title, nil
}

// getJSON is doJSON for idempotent fetches, wrapped in the retry policy.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.retry.Execute(ctx, func() error {
		return c.doJSON(ctx, http.MethodGet, path, nil, out)
	})
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("bearer token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return decodeAPIError(resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
