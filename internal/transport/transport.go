// Package transport provides the bidirectional event channel the client core
// runs on. A transport delivers server events reliably and in order for the
// lifetime of one connection; on any failure it reports a plain disconnect
// and the caller decides whether and when to dial again. Two implementations
// exist: WebSocket and NATS.
package transport

import (
	"context"
	"encoding/json"
	"log"

	"github.com/parley/chat-client/internal/protocol"
)

// Handlers receive lifecycle and event callbacks for one connection. A fresh
// Handlers set is installed on every Dial so that handlers never survive a
// reconnect.
type Handlers struct {
	// OnConnect fires once the server has acknowledged the connection and
	// assigned this client its own id.
	OnConnect func(ownID string)
	// OnDisconnect fires when the connection is lost for any reason.
	// Transport-level failures are not distinguished from clean closes.
	OnDisconnect func()
	// OnEvent receives one raw wire envelope per server event, in delivery
	// order, from a single goroutine.
	OnEvent func(raw []byte)
}

// Transport is a dialable, reliable-ordered event channel.
type Transport interface {
	// Dial establishes a connection and begins delivering callbacks to h.
	// It may be called again after a disconnect to start a new connection.
	Dial(ctx context.Context, h Handlers) error
	// Emit writes one named event to the wire. Fire-and-forget: outcomes
	// arrive later as inbound events.
	Emit(event string, payload interface{}) error
	// Close tears the current connection down without redialing.
	Close() error
}

// deliver routes one raw inbound envelope: the connect acknowledgement is
// decoded here and surfaced through OnConnect, everything else is passed
// through for the core to decode.
func deliver(h Handlers, raw []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("[transport] dropping malformed envelope: %v", err)
		return
	}
	if env.Event == protocol.EventConnected {
		var c protocol.Connected
		if err := json.Unmarshal(env.Data, &c); err != nil {
			log.Printf("[transport] dropping malformed connect payload: %v", err)
			return
		}
		if h.OnConnect != nil {
			h.OnConnect(c.ID)
		}
		return
	}
	if h.OnEvent != nil {
		h.OnEvent(raw)
	}
}
