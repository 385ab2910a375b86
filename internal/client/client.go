// Package client wires the chat client core together. The Client supervises
// the transport lifecycle, runs the session machine, reconciles inbound
// server events into the local chat state, and exposes a read-only snapshot
// for rendering plus the local-intent calls as its only write surface.
//
// Every established connection gets a generation number and a fresh handler
// set; events, disconnects, and timer completions carrying a previous
// generation are discarded, so nothing from a dead connection can touch
// current state.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parley/chat-client/internal/chat"
	"github.com/parley/chat-client/internal/dispatch"
	"github.com/parley/chat-client/internal/metrics"
	"github.com/parley/chat-client/internal/protocol"
	"github.com/parley/chat-client/internal/session"
	"github.com/parley/chat-client/internal/transport"
)

// ErrNotInChat is returned when a chat action is attempted before the
// session is authenticated.
var ErrNotInChat = errors.New("client: not signed in to the chat")

// Config holds tunable client parameters.
type Config struct {
	// RegisterFlowDelay and LoginJoinDelay are the display delays around
	// auth responses; zero values use the session defaults.
	RegisterFlowDelay time.Duration
	LoginJoinDelay    time.Duration
	// OnChange, if set, is invoked after every observable state change. It
	// runs on whichever goroutine caused the change and must not block.
	OnChange func()
}

// DefaultConfig returns a Config with the standard delays.
func DefaultConfig() Config {
	return Config{
		RegisterFlowDelay: session.DefaultRegisterFlowDelay,
		LoginJoinDelay:    session.DefaultLoginJoinDelay,
	}
}

// Snapshot is the read-only view handed to the rendering layer.
type Snapshot struct {
	Connected   bool
	OwnID       string
	Session     session.Snapshot
	Users       []protocol.User
	Messages    []protocol.Message
	Typing      []chat.TypingUser
	Composition string
}

// Client is the chat client core.
type Client struct {
	cfg        Config
	transport  transport.Transport
	machine    *session.Machine
	state      *chat.State
	dispatcher *dispatch.Dispatcher

	gen       atomic.Uint64
	connected atomic.Bool

	mu      sync.Mutex
	ownID   string
	compose string
}

// New creates a Client on the given transport. Nothing is dialed until
// Connect.
func New(t transport.Transport, cfg Config) *Client {
	c := &Client{cfg: cfg, transport: t, state: chat.NewState()}
	c.dispatcher = dispatch.New(t, c.Connected)
	c.machine = session.NewMachine(c.dispatcher, session.Options{
		RegisterFlowDelay: cfg.RegisterFlowDelay,
		LoginJoinDelay:    cfg.LoginJoinDelay,
		Schedule:          c.schedule,
	})
	return c
}

// Connect starts a new connection generation and dials the transport.
// Handlers installed here are bound to this generation; anything the old
// connection still delivers is dropped. Retry policy belongs to the caller:
// Connect itself never redials.
func (c *Client) Connect(ctx context.Context) error {
	g := c.gen.Add(1)
	h := transport.Handlers{
		OnConnect:    func(ownID string) { c.handleConnect(g, ownID) },
		OnDisconnect: func() { c.handleDisconnect(g) },
		OnEvent:      func(raw []byte) { c.handleEvent(g, raw) },
	}
	if err := c.transport.Dial(ctx, h); err != nil {
		return fmt.Errorf("client: connect: %w", err)
	}
	return nil
}

// Close tears down the connection and invalidates all pending work.
func (c *Client) Close() error {
	c.gen.Add(1)
	c.connected.Store(false)
	metrics.Connected.Set(0)
	c.machine.Reset()
	return c.transport.Close()
}

// Connected reports whether an active connection is established.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// ---------------------------------------------------------------------------
// Local intents (the core's only write surface)
// ---------------------------------------------------------------------------

// SubmitRegister validates and emits a register action.
func (c *Client) SubmitRegister(username, password, name string) error {
	err := c.machine.SubmitRegister(username, password, name)
	c.notify()
	return err
}

// SubmitLogin validates and emits a login action.
func (c *Client) SubmitLogin(username, password string) error {
	err := c.machine.SubmitLogin(username, password)
	c.notify()
	return err
}

// SetFlow switches the presented auth form.
func (c *Client) SetFlow(f session.Flow) {
	c.machine.SetFlow(f)
	c.notify()
}

// UpdateComposition replaces the local composition buffer and emits a typing
// signal derived from the new length. The signal is an absolute assertion,
// so emitting the same value repeatedly is fine. Nothing is emitted before
// the session is in the chat.
func (c *Client) UpdateComposition(text string) {
	c.mu.Lock()
	c.compose = text
	c.mu.Unlock()

	if c.machine.Phase() == session.PhaseAuthenticated {
		if err := c.dispatcher.Typing(len(text) > 0); err != nil && !errors.Is(err, dispatch.ErrNotConnected) {
			log.Printf("[client] typing signal failed: %v", err)
		}
	}
	c.notify()
}

// Send transmits the current composition buffer. On success the buffer is
// cleared and a typing-stopped signal goes out as a side effect.
func (c *Client) Send() error {
	c.mu.Lock()
	text := c.compose
	c.mu.Unlock()
	return c.SubmitMessage(text)
}

// SubmitMessage validates and transmits message text. The trimmed-nonempty
// check gates sending only; the text goes out exactly as typed. Fails
// locally, with no emission, when the text is invalid, the connection is
// down, or the session is not authenticated.
func (c *Client) SubmitMessage(text string) error {
	if err := chat.ValidateOutgoing(text); err != nil {
		return err
	}
	if !c.connected.Load() {
		return dispatch.ErrNotConnected
	}
	if c.machine.Phase() != session.PhaseAuthenticated {
		return ErrNotInChat
	}

	if err := c.dispatcher.SendMessage(text); err != nil {
		return err
	}

	c.mu.Lock()
	c.compose = ""
	c.mu.Unlock()

	if err := c.dispatcher.Typing(false); err != nil && !errors.Is(err, dispatch.ErrNotConnected) {
		log.Printf("[client] typing-stop signal failed: %v", err)
	}
	c.notify()
	return nil
}

// Snapshot returns the full read-only view for rendering.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	ownID := c.ownID
	compose := c.compose
	c.mu.Unlock()

	return Snapshot{
		Connected:   c.connected.Load(),
		OwnID:       ownID,
		Session:     c.machine.Snapshot(),
		Users:       c.state.Roster.Users(),
		Messages:    c.state.Log.Messages(),
		Typing:      c.state.Typing.Users(),
		Composition: compose,
	}
}

// ---------------------------------------------------------------------------
// Connection lifecycle
// ---------------------------------------------------------------------------

func (c *Client) handleConnect(g uint64, ownID string) {
	if g != c.gen.Load() {
		metrics.StaleDropsTotal.Inc()
		return
	}

	c.mu.Lock()
	c.ownID = ownID
	c.mu.Unlock()

	c.connected.Store(true)
	metrics.Connected.Set(1)
	if g > 1 {
		metrics.ReconnectsTotal.Inc()
	}

	// Roster and log contents stay visible across a reconnect, but the next
	// history snapshot re-bases the log.
	c.state.Log.Rebase()

	log.Printf("[client] connected gen=%d own_id=%s", g, ownID)
	c.notify()
}

func (c *Client) handleDisconnect(g uint64) {
	if g != c.gen.Load() {
		metrics.StaleDropsTotal.Inc()
		return
	}

	c.connected.Store(false)
	metrics.Connected.Set(0)

	c.mu.Lock()
	c.ownID = ""
	c.mu.Unlock()

	// Back to anonymous: identity and pending auth work are gone, chat
	// subscriptions are effectively closed. Roster and log contents are
	// deliberately left in place for display.
	c.machine.Reset()

	log.Printf("[client] disconnected gen=%d", g)
	c.notify()
}

// handleEvent decodes one inbound envelope and applies it. Events from a
// previous generation are discarded before decoding.
func (c *Client) handleEvent(g uint64, raw []byte) {
	if g != c.gen.Load() {
		metrics.StaleDropsTotal.Inc()
		return
	}

	name, evt, err := protocol.ParseServerEvent(raw)
	if err != nil {
		log.Printf("[client] dropping event: %v", err)
		return
	}
	metrics.EventsTotal.WithLabelValues(name).Inc()

	switch e := evt.(type) {
	case protocol.RegisterResponse:
		c.machine.HandleRegisterResult(e.Success, e.Message)
	case protocol.LoginResponse:
		c.machine.HandleLoginResult(e.Success, e.Message)
	case protocol.UserJoined:
		if !c.inChat(name) {
			return
		}
		c.state.ApplyUserJoined(e.User)
		metrics.RosterSize.Set(float64(c.state.Roster.Count()))
	case protocol.UserLeft:
		if !c.inChat(name) {
			return
		}
		c.state.ApplyUserLeft(e.UserID)
		metrics.RosterSize.Set(float64(c.state.Roster.Count()))
	case protocol.UserList:
		if !c.inChat(name) {
			return
		}
		c.state.ApplyUserList(e.Users)
		metrics.RosterSize.Set(float64(c.state.Roster.Count()))
	case protocol.ChatHistory:
		if !c.inChat(name) {
			return
		}
		c.state.ApplyChatHistory(e.Messages)
	case protocol.NewMessage:
		if !c.inChat(name) {
			return
		}
		c.state.ApplyNewMessage(e.Message)
	case protocol.UserTyping:
		if !c.inChat(name) {
			return
		}
		c.state.ApplyUserTyping(e)
	default:
		// Connected is consumed by the transport; anything else unknown was
		// already rejected by the parser.
	}
	c.notify()
}

// inChat gates chat-event processing on the authenticated phase.
func (c *Client) inChat(event string) bool {
	if c.machine.Phase() != session.PhaseAuthenticated {
		log.Printf("[client] dropping %q event outside chat phase", event)
		return false
	}
	return true
}

// schedule is the generation-guarded timer the session machine runs its
// delayed completions on. The callback fires only if the connection that
// scheduled it is still the current, live one.
func (c *Client) schedule(d time.Duration, f func()) {
	g := c.gen.Load()
	time.AfterFunc(d, func() {
		if g != c.gen.Load() || !c.connected.Load() {
			metrics.StaleDropsTotal.Inc()
			return
		}
		f()
		c.notify()
	})
}

func (c *Client) notify() {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange()
	}
}
