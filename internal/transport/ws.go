package transport

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/parley/chat-client/internal/protocol"
)

// WSTransport is the WebSocket event channel. Each Dial opens a fresh
// connection and read loop; a read failure or server close surfaces as a
// single OnDisconnect and the transport becomes idle until the next Dial.
type WSTransport struct {
	url string

	mu     sync.Mutex
	conn   net.Conn
	done   chan struct{}
	connID string // per-connection id for log correlation
}

// NewWS creates a WebSocket transport for the given ws:// or wss:// URL.
// No connection is made until Dial.
func NewWS(url string) *WSTransport {
	return &WSTransport{url: url}
}

// Dial opens a new WebSocket connection and starts the read loop. The
// server's connect acknowledgement (carrying the assigned own id) is routed
// to h.OnConnect; all other events go to h.OnEvent in frame order.
func (t *WSTransport) Dial(ctx context.Context, h Handlers) error {
	conn, _, _, err := ws.Dial(ctx, t.url)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", t.url, err)
	}

	done := make(chan struct{})
	connID := uuid.NewString()

	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
	}
	t.conn = conn
	t.done = done
	t.connID = connID
	t.mu.Unlock()

	log.Printf("[ws] connected url=%s conn=%s", t.url, connID)
	go t.readLoop(conn, done, connID, h)
	return nil
}

// Emit writes one event as a text frame. Returns an error when no
// connection is active.
func (t *WSTransport) Emit(event string, payload interface{}) error {
	data, err := protocol.NewClientEvent(event, payload)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return fmt.Errorf("transport: emit %q: no active connection", event)
	}
	if err := wsutil.WriteClientMessage(t.conn, ws.OpText, data); err != nil {
		return fmt.Errorf("transport: write %q: %w", event, err)
	}
	return nil
}

// Close tears down the current connection. Safe to call when idle.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	done := t.done
	t.conn = nil
	t.done = nil
	t.mu.Unlock()

	if done != nil {
		close(done)
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// readLoop reads frames until the connection fails or Close is called. It
// runs once per connection and reports at most one disconnect.
func (t *WSTransport) readLoop(conn net.Conn, done chan struct{}, connID string, h Handlers) {
	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			select {
			case <-done:
				// Deliberate close; the caller already knows.
				return
			default:
			}
			log.Printf("[ws] read failed conn=%s: %v", connID, err)
			t.mu.Lock()
			if t.conn == conn {
				t.conn = nil
				t.done = nil
			}
			t.mu.Unlock()
			conn.Close()
			if h.OnDisconnect != nil {
				h.OnDisconnect()
			}
			return
		}
		deliver(h, data)
	}
}
