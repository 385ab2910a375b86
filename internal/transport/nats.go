package transport

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/parley/chat-client/internal/protocol"
)

// NATS subject layout. Each client owns an events subject keyed by a
// generated client id; the server learns it from the connect announcement.
const (
	SubjectConnect = "parley.connect"   // client -> server: announce events subject
	SubjectActions = "parley.actions."  // + <client id>, client -> server events
	SubjectEvents  = "parley.events."   // + <client id>, server -> client events
)

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL  string // nats://localhost:4222
	Name string // client name for identification
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:  "nats://localhost:4222",
		Name: "parley-client",
	}
}

// NATSTransport is the NATS-backed event channel. NATS-level auto-reconnect
// is disabled: a dropped connection surfaces as a plain disconnect and the
// caller decides when to dial again, same as the WebSocket transport.
type NATSTransport struct {
	config NATSConfig

	mu       sync.Mutex
	conn     *nats.Conn
	sub      *nats.Subscription
	clientID string
}

// NewNATS creates a NATS transport with the given config. No connection is
// made until Dial.
func NewNATS(config NATSConfig) *NATSTransport {
	return &NATSTransport{config: config}
}

// Dial connects to NATS, subscribes to a fresh per-client events subject,
// and announces it to the server. Every Dial generates a new client id, so
// each connection gets its own subscription and the server treats it as a
// new participant.
func (t *NATSTransport) Dial(ctx context.Context, h Handlers) error {
	clientID := uuid.NewString()

	opts := []nats.Option{
		nats.Name(t.config.Name),
		nats.MaxReconnects(0),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed client=%s", clientID)
			if h.OnDisconnect != nil {
				h.OnDisconnect()
			}
		}),
	}

	nc, err := nats.Connect(t.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("transport: nats connect: %w", err)
	}

	sub, err := nc.Subscribe(SubjectEvents+clientID, func(msg *nats.Msg) {
		deliver(h, msg.Data)
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("transport: nats subscribe: %w", err)
	}

	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
	}
	t.conn = nc
	t.sub = sub
	t.clientID = clientID
	t.mu.Unlock()

	// Announce the events subject; the server answers with the connect
	// acknowledgement on it.
	hello, err := protocol.NewClientEvent(protocol.EventConnected, protocol.Connected{ID: clientID})
	if err != nil {
		return err
	}
	if err := nc.Publish(SubjectConnect, hello); err != nil {
		return fmt.Errorf("transport: nats announce: %w", err)
	}

	log.Printf("[nats] connected to %s client=%s", nc.ConnectedUrl(), clientID)
	return nil
}

// Emit publishes one event to this client's actions subject.
func (t *NATSTransport) Emit(event string, payload interface{}) error {
	data, err := protocol.NewClientEvent(event, payload)
	if err != nil {
		return err
	}

	t.mu.Lock()
	nc := t.conn
	clientID := t.clientID
	t.mu.Unlock()

	if nc == nil {
		return fmt.Errorf("transport: emit %q: no active connection", event)
	}
	if err := nc.Publish(SubjectActions+clientID, data); err != nil {
		return fmt.Errorf("transport: publish %q: %w", event, err)
	}
	return nil
}

// Close drains the events subscription and closes the NATS connection.
func (t *NATSTransport) Close() error {
	t.mu.Lock()
	nc := t.conn
	sub := t.sub
	t.conn = nil
	t.sub = nil
	t.mu.Unlock()

	if sub != nil {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain: %v", err)
		}
	}
	if nc != nil {
		// Give the drain a moment before tearing the connection down.
		if err := nc.FlushTimeout(2 * time.Second); err != nil {
			log.Printf("[nats] flush: %v", err)
		}
		nc.Close()
	}
	return nil
}
