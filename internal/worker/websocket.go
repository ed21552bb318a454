package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

type WebSocketClient struct {
	url    string
	token  string
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
}

type Signal struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

type Command struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

func NewWebSocketClient(serverURL, token string, logger *slog.Logger) *WebSocketClient {
	return &WebSocketClient{
		url:    serverURL,
		token:  token,
		logger: logger,
	}
}

// Connect dials the server, sending the token as a bearer Authorization
// header.
func (c *WebSocketClient) Connect(ctx context.Context) error {
	c.logger.Debug("Connecting to WebSocket", slog.String("url", c.url))

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info("WebSocket connected", slog.String("url", c.url))
	return nil
}

func (c *WebSocketClient) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *WebSocketClient) ReadSignal(ctx context.Context) (*Signal, error) {
	conn := c.current()
	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	var signal Signal
	if err := conn.ReadJSON(&signal); err != nil {
		return nil, fmt.Errorf("failed to read signal: %w", err)
	}

	c.logger.Debug("Received signal", slog.String("type", signal.Type))
	return &signal, nil
}

func (c *WebSocketClient) WriteCommand(ctx context.Context, cmd *Command) error {
	conn := c.current()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	c.logger.Debug("Sending command", slog.String("type", cmd.Type))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("failed to write command: %w", err)
	}
	return nil
}

func (c *WebSocketClient) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.logger.Info("Closing WebSocket connection")
	return conn.Close()
}

func (c *WebSocketClient) Ping(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
