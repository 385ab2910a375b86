// Package dispatch translates local intents into outbound wire events. It is
// a stateless mapping layer: each intent produces exactly one event with a
// fixed name and payload shape, and nothing is emitted while the connection
// is down. Success or failure of an action is observed later through a
// separate inbound event; emission itself is fire-and-forget.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/parley/chat-client/internal/metrics"
	"github.com/parley/chat-client/internal/protocol"
)

// ErrNotConnected is returned when an action is attempted without an active
// connection. The input never reaches the network.
var ErrNotConnected = errors.New("dispatch: not connected")

// Emitter writes one named event to the wire. Implemented by the transports.
type Emitter interface {
	Emit(event string, payload interface{}) error
}

// Dispatcher emits local intents through an Emitter, gated on connectivity.
type Dispatcher struct {
	emitter   Emitter
	connected func() bool
}

// New creates a Dispatcher. The connected callback reports the supervisor's
// current connection status.
func New(emitter Emitter, connected func() bool) *Dispatcher {
	return &Dispatcher{emitter: emitter, connected: connected}
}

// Register emits a register action.
func (d *Dispatcher) Register(username, password, name string) error {
	return d.emit(protocol.EventRegister, protocol.RegisterPayload{
		Username: username,
		Password: password,
		Name:     name,
	})
}

// Login emits a login action.
func (d *Dispatcher) Login(username, password string) error {
	return d.emit(protocol.EventLogin, protocol.LoginPayload{
		Username: username,
		Password: password,
	})
}

// Join emits the join action that announces the authenticated user to the
// room. It is only ever invoked from inside the login-success transition,
// which itself requires connectivity, so it carries no extra connected
// check.
func (d *Dispatcher) Join(username, name string) error {
	return d.send(protocol.EventJoin, protocol.JoinPayload{Username: username, Name: name})
}

// SendMessage emits a chat message. The payload is the bare text string,
// transmitted exactly as typed.
func (d *Dispatcher) SendMessage(text string) error {
	return d.emit(protocol.EventSendMessage, text)
}

// Typing emits an absolute typing assertion. Emitting the same value
// repeatedly is expected and safe.
func (d *Dispatcher) Typing(isTyping bool) error {
	return d.emit(protocol.EventTyping, isTyping)
}

func (d *Dispatcher) emit(event string, payload interface{}) error {
	if !d.connected() {
		return ErrNotConnected
	}
	return d.send(event, payload)
}

func (d *Dispatcher) send(event string, payload interface{}) error {
	if err := d.emitter.Emit(event, payload); err != nil {
		return fmt.Errorf("dispatch: emit %q: %w", event, err)
	}
	metrics.ActionsTotal.WithLabelValues(event).Inc()
	return nil
}
