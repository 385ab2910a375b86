package dispatch

import (
	"errors"
	"testing"
)

// recordingEmitter captures emitted events in order.
type recordingEmitter struct {
	events   []string
	payloads []interface{}
	fail     error
}

func (e *recordingEmitter) Emit(event string, payload interface{}) error {
	if e.fail != nil {
		return e.fail
	}
	e.events = append(e.events, event)
	e.payloads = append(e.payloads, payload)
	return nil
}

func connectedAlways() bool { return true }
func connectedNever() bool  { return false }

func TestEachIntentMapsToOneEvent(t *testing.T) {
	em := &recordingEmitter{}
	d := New(em, connectedAlways)

	if err := d.Register("bob", "123456", "Bob"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := d.Login("bob", "123456"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := d.Join("bob", "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := d.SendMessage("hi there"); err != nil {
		t.Fatalf("sendMessage: %v", err)
	}
	if err := d.Typing(true); err != nil {
		t.Fatalf("typing: %v", err)
	}

	want := []string{"register", "login", "join", "sendMessage", "typing"}
	if len(em.events) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(em.events), em.events)
	}
	for i, name := range want {
		if em.events[i] != name {
			t.Errorf("event %d: expected %q, got %q", i, name, em.events[i])
		}
	}
}

func TestNoEmissionWhileDisconnected(t *testing.T) {
	em := &recordingEmitter{}
	d := New(em, connectedNever)

	if err := d.SendMessage("hi"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := d.Typing(true); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := d.Login("bob", "pw"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if len(em.events) != 0 {
		t.Fatalf("nothing must reach the wire while disconnected, got %v", em.events)
	}
}

func TestSendMessagePayloadIsBareUntrimmedString(t *testing.T) {
	em := &recordingEmitter{}
	d := New(em, connectedAlways)

	if err := d.SendMessage("  padded  "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, ok := em.payloads[0].(string)
	if !ok {
		t.Fatalf("expected bare string payload, got %T", em.payloads[0])
	}
	if text != "  padded  " {
		t.Errorf("text must be transmitted as typed, got %q", text)
	}
}

func TestEmitErrorIsWrapped(t *testing.T) {
	sentinel := errors.New("boom")
	em := &recordingEmitter{fail: sentinel}
	d := New(em, connectedAlways)

	err := d.Typing(false)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped emitter error, got %v", err)
	}
}
