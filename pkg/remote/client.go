// Package remote is a client for the rsdnn control API.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-rsdnn/internal/httpc"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote: %d: %s", e.StatusCode, e.Message)
}

// Client talks to one rsdnn server.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a client for base, e.g. "http://localhost:8080".
func New(base string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: parse %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote: unsupported scheme %q", u.Scheme)
	}
	return &Client{base: u, http: httpc.Client}, nil
}

// Status fetches the current status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/api/status", &st)
	return st, err
}

// Action posts a control action such as "stream/start" or "detection/on".
func (c *Client) Action(ctx context.Context, action string) (map[string]any, error) {
	out := map[string]any{}
	err := c.do(ctx, http.MethodPost, "/api/"+strings.TrimLeft(action, "/"), &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return json.Unmarshal(body, out)
}

// Watch streams status updates to fn until ctx is done or the connection
// fails.
func (c *Client) Watch(ctx context.Context, fn func(Status)) error {
	u := *c.base
	u.Scheme = "ws"
	if c.base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path += "/ws/status"

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("remote: dial %s: %w", u.String(), err)
	}
	defer ws.Close()

	// Unblock ReadMessage on cancel
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("remote: read status: %w", err)
		}

		var st Status
		if err := json.Unmarshal(data, &st); err != nil {
			return fmt.Errorf("remote: decode status: %w", err)
		}
		fn(st)
	}
}
