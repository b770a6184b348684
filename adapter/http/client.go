package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scttfrdmn/catering-agent-go/adapter/codec"
	"github.com/scttfrdmn/catering-agent-go/agenkit"
	"github.com/scttfrdmn/catering-agent-go/session"
)

// Client talks to a running Server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error ErrorBody `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		return &APIError{Status: resp.StatusCode, Code: e.Error.Code, Message: e.Error.Message}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// CreateSession starts a session for userID.
func (c *Client) CreateSession(ctx context.Context, userID string, state map[string]interface{}) (*session.Session, error) {
	var s session.Session
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", createSessionRequest{UserID: userID, State: state}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Send posts a chat message to a session.
func (c *Client) Send(ctx context.Context, sessionID, content string) (*MessageResponse, error) {
	var out MessageResponse
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, messageRequest{Content: content}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Approve runs the approval workflow for a transaction.
func (c *Client) Approve(ctx context.Context, transactionID string) (*ApprovalResponse, error) {
	var out ApprovalResponse
	if err := c.do(ctx, http.MethodPost, "/v1/approvals/"+url.PathEscape(transactionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatConn is a websocket chat connection. Requests are answered in order,
// so Ask calls are serialized.
type ChatConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// DialChat opens the websocket chat channel of the server at baseURL.
func (c *Client) DialChat(ctx context.Context) (*ChatConn, error) {
	u, err := url.Parse(c.baseURL + "/v1/ws")
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	dialer := &websocket.Dialer{
		HandshakeTimeout: 45 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", u, err)
	}
	return &ChatConn{conn: conn}, nil
}

// Ask sends one message and waits for its reply.
func (c *ChatConn) Ask(ctx context.Context, sessionID, content string) (*agenkit.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}
	req := codec.NewRequest(sessionID, content)
	data, err := codec.EncodeBytes(req)
	if err != nil {
		return nil, err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return nil, fmt.Errorf("failed to send: %w", err)
	}
	_, reply, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to receive: %w", err)
	}
	env, err := codec.DecodeBytes(reply)
	if err != nil {
		return nil, err
	}
	if env.ID != req.ID {
		return nil, fmt.Errorf("reply %s does not match request %s", env.ID, req.ID)
	}
	return env.Message()
}

// Close sends a close frame and closes the connection.
func (c *ChatConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
