// Package client is a small Go client for the deploy API and its log relay.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/domain"
)

const defaultBaseURL = "http://localhost:9000"

// ErrBuildFailed is returned by Follow when the build ends with a failure line.
var ErrBuildFailed = errors.New("build failed")

// Client provides typed access to the API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// Project is the project payload returned by the API.
type Project struct {
	ID        string    `json:"project_id"`
	URL       string    `json:"url"`
	Channel   string    `json:"wss_channel"`
	GitURL    string    `json:"git_url,omitempty"`
	Build     string    `json:"build_status,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

type envelope struct {
	Status string  `json:"status"`
	Data   Project `json:"data"`
}

// CreateProject submits gitURL for deployment.
func (c *Client) CreateProject(ctx context.Context, gitURL string) (Project, error) {
	var resp envelope
	if err := c.do(ctx, http.MethodPost, "/project", map[string]string{"gitURL": gitURL}, &resp); err != nil {
		return Project{}, err
	}
	return resp.Data, nil
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, projectID string) (Project, error) {
	var resp envelope
	if err := c.do(ctx, http.MethodGet, "/project/"+url.PathEscape(projectID), nil, &resp); err != nil {
		return Project{}, err
	}
	return resp.Data, nil
}

// Follow subscribes to channel and calls fn with every log line until the
// build reaches a terminal line, ctx ends or the relay reports an error.
// Lines published before the subscription is active are not delivered.
func (c *Client) Follow(ctx context.Context, channel string, fn func(line string)) error {
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return fmt.Errorf("dial log relay: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(channel)); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("read log frame: %w", err)
		}
		var frame struct {
			Log     *string `json:"log"`
			Error   string  `json:"error"`
			Details string  `json:"details"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Error != "" {
			if frame.Details != "" {
				return fmt.Errorf("log relay: %s: %s", frame.Error, frame.Details)
			}
			return fmt.Errorf("log relay: %s", frame.Error)
		}
		if frame.Log == nil {
			continue
		}
		line := *frame.Log
		fn(line)
		if domain.IsTerminal(line) {
			if line == domain.LineDone {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrBuildFailed, line)
		}
	}
}

func (c *Client) wsURL() string {
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://") + "/ws"
	default:
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://") + "/ws"
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, v any) error {
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}
