// Package stream is a minimal Stream Chat client: short-lived user sessions
// for posting messages and reactions, plus the server-side user upsert.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"mojobot/internal/domain"
	"mojobot/internal/httpclient"
)

const (
	defaultBaseURL = "https://chat.stream-io-api.com"
	maxErrorBody   = 512
)

// ErrNoConnectionID is returned when the socket handshake never yields a connection id.
var ErrNoConnectionID = errors.New("stream: no connection id in health check")

// APIError is a non-2xx answer from the Stream REST or connect endpoint.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("stream API returned %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("stream API returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to one Stream Chat app. It holds no per-conversation state and
// is safe for concurrent use.
type Client struct {
	apiKey    string
	apiSecret string
	baseURL   string
	timeout   time.Duration
	http      *http.Client
	dialer    *websocket.Dialer
	logger    *slog.Logger
}

type ClientConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Timeout   time.Duration
	Logger    *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		timeout:   cfg.Timeout,
		http:      httpclient.New(cfg.Timeout),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.Timeout,
		},
		logger: cfg.Logger,
	}
}

// Configured reports whether both the key and secret are set.
func (c *Client) Configured() bool { return c.apiKey != "" && c.apiSecret != "" }

type connectPayload struct {
	UserID                       string      `json:"user_id"`
	UserDetails                  userDetails `json:"user_details"`
	ServerDeterminesConnectionID bool        `json:"server_determines_connection_id"`
}

type userDetails struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type wsEvent struct {
	Type         string    `json:"type"`
	ConnectionID string    `json:"connection_id"`
	Error        *apiError `json:"error,omitempty"`
}

// apiError is the JSON error body Stream returns.
type apiError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"StatusCode"`
}

// Connect opens a session as the given identity and waits for the server to
// assign a connection id. The caller owns the session and must Close it.
func (c *Client) Connect(ctx context.Context, as domain.AgentIdentity) (domain.ChatSession, error) {
	if !c.Configured() {
		return nil, errors.New("stream: API key and secret are required")
	}
	token, err := UserToken(c.apiSecret, as.ID)
	if err != nil {
		return nil, err
	}

	wsURL, err := c.connectURL(as, token)
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, fmt.Errorf("stream connect: %w", decodeAPIError(resp))
		}
		return nil, fmt.Errorf("stream connect: %w", err)
	}

	connID, err := c.awaitConnectionID(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	c.logger.Debug("stream session open", "user_id", as.ID, "connection_id", connID)
	return newSession(c, conn, as.ID, token, connID), nil
}

func (c *Client) connectURL(as domain.AgentIdentity, token string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("stream base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/connect"

	payload, err := json.Marshal(connectPayload{
		UserID:                       as.ID,
		UserDetails:                  userDetails{ID: as.ID, Name: as.Name},
		ServerDeterminesConnectionID: true,
	})
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("json", string(payload))
	q.Set("api_key", c.apiKey)
	q.Set("authorization", token)
	q.Set("stream-auth-type", "jwt")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// awaitConnectionID reads events until the first health.check.
func (c *Client) awaitConnectionID(ctx context.Context, conn *websocket.Conn) (string, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for {
		var ev wsEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return "", fmt.Errorf("stream connect: waiting for health check: %w", err)
		}
		if ev.Error != nil {
			return "", fmt.Errorf("stream connect: %w", ev.Error.asAPIError(http.StatusUnauthorized))
		}
		if ev.Type != "health.check" {
			continue
		}
		if ev.ConnectionID == "" {
			return "", ErrNoConnectionID
		}
		return ev.ConnectionID, nil
	}
}

// do sends a JSON request to the REST API. connectionID may be empty for
// server-side calls.
func (c *Client) do(ctx context.Context, method, path, token, connectionID string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := c.baseURL + path
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	if connectionID != "" {
		q.Set("connection_id", connectionID)
	}
	u += "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)
	req.Header.Set("stream-auth-type", "jwt")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %w", method, path, decodeAPIError(resp))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) *APIError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var ae apiError
	if err := json.Unmarshal(data, &ae); err == nil && ae.Message != "" {
		return ae.asAPIError(resp.StatusCode)
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

func (e *apiError) asAPIError(fallbackStatus int) *APIError {
	status := e.StatusCode
	if status == 0 {
		status = fallbackStatus
	}
	return &APIError{StatusCode: status, Code: e.Code, Message: e.Message}
}
