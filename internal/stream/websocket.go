package stream

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebSocketConfig holds configuration for the websocket transport.
type WebSocketConfig struct {
	// URL is the ws:// or wss:// endpoint of the telemetry producer.
	URL string

	// HandshakeTimeout bounds the dial. Default: 10 seconds.
	HandshakeTimeout time.Duration

	// FrameBuffer is the capacity of the delivery channel. Default: 64.
	FrameBuffer int

	Logger zerolog.Logger
}

// WebSocketTransport is the default transport: a single websocket
// connection with a read pump delivering payloads in arrival order.
type WebSocketTransport struct {
	cfg    WebSocketConfig
	frames chan []byte

	mu   sync.Mutex
	conn *websocket.Conn

	closeOnce sync.Once
}

// NewWebSocketTransport creates a websocket transport.
func NewWebSocketTransport(cfg WebSocketConfig) *WebSocketTransport {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = 64
	}
	return &WebSocketTransport{
		cfg:    cfg,
		frames: make(chan []byte, cfg.FrameBuffer),
	}
}

// Connect dials the endpoint and starts the read pump.
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	go t.readPump(conn)
	return nil
}

func (t *WebSocketTransport) readPump(conn *websocket.Conn) {
	defer close(t.frames)
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.cfg.Logger.Warn().Err(err).Msg("websocket read ended")
			return
		}
		t.frames <- payload
	}
}

// Send writes one text message to the producer.
func (t *WebSocketTransport) Send(_ context.Context, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return websocket.ErrCloseSent
	}
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

// Frames returns the delivery channel.
func (t *WebSocketTransport) Frames() <-chan []byte {
	return t.frames
}

// Close shuts the connection down. Idempotent; the read pump closes the
// frame channel on its way out.
func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		conn := t.conn
		t.conn = nil
		t.mu.Unlock()
		if conn != nil {
			err = conn.Close()
		} else {
			close(t.frames)
		}
	})
	return err
}
