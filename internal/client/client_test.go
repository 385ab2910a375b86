package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/parley/chat-client/internal/dispatch"
	"github.com/parley/chat-client/internal/session"
	"github.com/parley/chat-client/internal/transport"
)

// fakeTransport is an in-memory transport. Each Dial appends a handler set,
// so tests can keep a reference to a stale connection's handlers and deliver
// through them after a reconnect.
type fakeTransport struct {
	mu       sync.Mutex
	handlers []transport.Handlers
	emitted  []emission
}

type emission struct {
	event   string
	payload interface{}
}

func (f *fakeTransport) Dial(ctx context.Context, h transport.Handlers) error {
	f.mu.Lock()
	f.handlers = append(f.handlers, h)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Emit(event string, payload interface{}) error {
	f.mu.Lock()
	f.emitted = append(f.emitted, emission{event, payload})
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) current() transport.Handlers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[len(f.handlers)-1]
}

func (f *fakeTransport) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.emitted))
	for i, e := range f.emitted {
		out[i] = e.event
	}
	return out
}

func (f *fakeTransport) count(event string) int {
	n := 0
	for _, name := range f.events() {
		if name == event {
			n++
		}
	}
	return n
}

// envelope builds a raw server event for OnEvent delivery.
func envelope(t *testing.T, event string, data interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{"event": event, "data": data})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

func newTestClient(t *testing.T) (*Client, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	c := New(ft, Config{
		RegisterFlowDelay: 10 * time.Millisecond,
		LoginJoinDelay:    10 * time.Millisecond,
	})
	return c, ft
}

// connectAndLogin drives the client to the authenticated phase.
func connectAndLogin(t *testing.T, c *Client, ft *fakeTransport) {
	t.Helper()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	ft.current().OnConnect("sock-1")

	if err := c.SubmitLogin("alice", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	ft.current().OnEvent(envelope(t, "loginResponse", map[string]interface{}{"success": true, "message": ""}))
	time.Sleep(50 * time.Millisecond)

	if c.Snapshot().Session.Phase != session.PhaseAuthenticated {
		t.Fatal("expected authenticated phase after login flow")
	}
}

func TestEndToEndScenario(t *testing.T) {
	c, ft := newTestClient(t)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	ft.current().OnConnect("sock-1")

	snap := c.Snapshot()
	if !snap.Connected || snap.OwnID != "sock-1" {
		t.Fatalf("expected connected with own id sock-1, got %+v", snap)
	}

	if err := c.SubmitLogin("alice", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if got := ft.events(); len(got) != 1 || got[0] != "login" {
		t.Fatalf("expected single login emission, got %v", got)
	}

	ft.current().OnEvent(envelope(t, "loginResponse", map[string]interface{}{"success": true, "message": ""}))

	if ft.count("join") != 0 {
		t.Fatal("join must wait for the delay")
	}
	time.Sleep(50 * time.Millisecond)

	if ft.count("join") != 1 {
		t.Fatalf("expected one join, got %v", ft.events())
	}
	ft.mu.Lock()
	joinPayload := ft.emitted[1].payload
	ft.mu.Unlock()
	raw, _ := json.Marshal(joinPayload)
	var jp struct{ Username, Name string }
	if err := json.Unmarshal(raw, &jp); err != nil {
		t.Fatalf("decode join payload: %v", err)
	}
	if jp.Username != "alice" || jp.Name != "alice" {
		t.Errorf("expected join{alice, alice}, got %+v", jp)
	}

	ft.current().OnEvent(envelope(t, "userList", []map[string]string{{"id": "u1", "name": "Alice", "username": "alice"}}))
	ft.current().OnEvent(envelope(t, "chatHistory", []interface{}{}))
	ft.current().OnEvent(envelope(t, "newMessage", map[string]interface{}{
		"id": "m1", "userId": "u1", "userName": "Alice", "text": "hi", "timestamp": 1000,
	}))

	snap = c.Snapshot()
	if len(snap.Users) != 1 || snap.Users[0].ID != "u1" {
		t.Errorf("expected roster [u1], got %+v", snap.Users)
	}
	if len(snap.Messages) != 1 || snap.Messages[0].ID != "m1" {
		t.Errorf("expected log [m1], got %+v", snap.Messages)
	}
	if snap.Session.Phase != session.PhaseAuthenticated {
		t.Errorf("expected authenticated, got %v", snap.Session.Phase)
	}
}

func TestDisconnectBeforeJoinDelayPreventsJoin(t *testing.T) {
	c, ft := newTestClient(t)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	ft.current().OnConnect("sock-1")

	if err := c.SubmitLogin("alice", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	ft.current().OnEvent(envelope(t, "loginResponse", map[string]interface{}{"success": true, "message": ""}))

	// Drop the connection before the join delay elapses.
	ft.current().OnDisconnect()
	time.Sleep(50 * time.Millisecond)

	if ft.count("join") != 0 {
		t.Fatal("a disconnect during the post-login delay must prevent the join")
	}
	snap := c.Snapshot()
	if snap.Session.Phase != session.PhaseAnonymous {
		t.Errorf("expected anonymous after disconnect, got %v", snap.Session.Phase)
	}
	if snap.Connected {
		t.Error("expected disconnected status")
	}
}

func TestStaleLoginResponseIgnoredAfterReconnect(t *testing.T) {
	c, ft := newTestClient(t)

	// Generation 1.
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	gen1 := ft.current()
	gen1.OnConnect("sock-1")
	if err := c.SubmitLogin("alice", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}

	// Generation 2 starts before the response arrives.
	gen1.OnDisconnect()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	ft.current().OnConnect("sock-2")

	// The old connection's response shows up late.
	gen1.OnEvent(envelope(t, "loginResponse", map[string]interface{}{"success": true, "message": ""}))
	time.Sleep(50 * time.Millisecond)

	snap := c.Snapshot()
	if snap.Session.Phase == session.PhaseAuthenticated {
		t.Fatal("a stale login response must not transition the phase")
	}
	if ft.count("join") != 0 {
		t.Fatal("a stale login response must not cause a join")
	}
	if snap.OwnID != "sock-2" {
		t.Errorf("expected own id from the live connection, got %q", snap.OwnID)
	}
}

func TestChatEventsDroppedOutsideAuthenticatedPhase(t *testing.T) {
	c, ft := newTestClient(t)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	ft.current().OnConnect("sock-1")

	ft.current().OnEvent(envelope(t, "newMessage", map[string]interface{}{
		"id": "m1", "userId": "u1", "userName": "A", "text": "early", "timestamp": 1,
	}))
	ft.current().OnEvent(envelope(t, "userList", []map[string]string{{"id": "u1", "name": "A", "username": "a"}}))

	snap := c.Snapshot()
	if len(snap.Messages) != 0 || len(snap.Users) != 0 {
		t.Fatalf("chat events must be dropped before authentication, got %+v", snap)
	}
}

func TestSubmitMessageGating(t *testing.T) {
	c, ft := newTestClient(t)

	// Disconnected.
	if err := c.SubmitMessage("hello"); !errors.Is(err, dispatch.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	ft.current().OnConnect("sock-1")

	// Connected but anonymous.
	if err := c.SubmitMessage("hello"); !errors.Is(err, ErrNotInChat) {
		t.Fatalf("expected ErrNotInChat, got %v", err)
	}

	// Whitespace-only never emits regardless of phase.
	if err := c.SubmitMessage("   "); err == nil {
		t.Fatal("expected validation error for whitespace-only text")
	}
	if ft.count("sendMessage") != 0 {
		t.Fatal("nothing should have reached the wire")
	}
}

func TestSendTransmitsUntrimmedAndClearsComposition(t *testing.T) {
	c, ft := newTestClient(t)
	connectAndLogin(t, c, ft)

	c.UpdateComposition("  hi there ")
	if ft.count("typing") == 0 {
		t.Fatal("composition change should emit a typing signal")
	}

	if err := c.Send(); err != nil {
		t.Fatalf("send: %v", err)
	}

	ft.mu.Lock()
	var sent interface{}
	for _, e := range ft.emitted {
		if e.event == "sendMessage" {
			sent = e.payload
		}
	}
	last := ft.emitted[len(ft.emitted)-1]
	ft.mu.Unlock()

	if sent != "  hi there " {
		t.Errorf("text must go out untrimmed, got %v", sent)
	}
	// The trailing typing-stopped side effect.
	if last.event != "typing" || last.payload != false {
		t.Errorf("expected trailing typing=false, got %+v", last)
	}
	if c.Snapshot().Composition != "" {
		t.Error("send must clear the composition buffer")
	}
}

func TestTypingSignalRepeatsAndTracksLength(t *testing.T) {
	c, ft := newTestClient(t)
	connectAndLogin(t, c, ft)

	before := ft.count("typing")
	c.UpdateComposition("a")
	c.UpdateComposition("ab")
	c.UpdateComposition("")

	ft.mu.Lock()
	var signals []bool
	for _, e := range ft.emitted {
		if e.event == "typing" {
			if v, ok := e.payload.(bool); ok {
				signals = append(signals, v)
			}
		}
	}
	ft.mu.Unlock()

	if len(signals)-before != 3 {
		t.Fatalf("expected a signal per composition change, got %d new", len(signals)-before)
	}
	tail := signals[len(signals)-3:]
	if tail[0] != true || tail[1] != true || tail[2] != false {
		t.Errorf("expected [true true false], got %v", tail)
	}
}

func TestDisconnectKeepsRosterAndLogContents(t *testing.T) {
	c, ft := newTestClient(t)
	connectAndLogin(t, c, ft)

	ft.current().OnEvent(envelope(t, "userList", []map[string]string{{"id": "u1", "name": "A", "username": "a"}}))
	ft.current().OnEvent(envelope(t, "chatHistory", []interface{}{map[string]interface{}{
		"id": "m1", "userId": "u1", "userName": "A", "text": "hi", "timestamp": 1,
	}}))

	ft.current().OnDisconnect()

	snap := c.Snapshot()
	if snap.Connected {
		t.Fatal("expected disconnected")
	}
	if snap.Session.Phase != session.PhaseAnonymous {
		t.Errorf("expected anonymous session, got %v", snap.Session.Phase)
	}
	if len(snap.Users) != 1 || len(snap.Messages) != 1 {
		t.Errorf("roster and log contents must survive a disconnect, got %+v", snap)
	}
}

func TestStaleDisconnectFromOldConnectionIgnored(t *testing.T) {
	c, ft := newTestClient(t)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	gen1 := ft.current()
	gen1.OnConnect("sock-1")

	// Redial; the old read loop reports its failure afterwards.
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	ft.current().OnConnect("sock-2")
	gen1.OnDisconnect()

	snap := c.Snapshot()
	if !snap.Connected {
		t.Fatal("a stale disconnect must not take the live connection down")
	}
	if snap.OwnID != "sock-2" {
		t.Errorf("expected sock-2, got %q", snap.OwnID)
	}
}
