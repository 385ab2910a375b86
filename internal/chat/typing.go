package chat

import (
	"sort"
	"sync"
)

// TypingUser identifies one user currently shown as typing.
type TypingUser struct {
	ID   string
	Name string
}

// TypingTracker materializes per-user typing signals into the set of users
// currently typing. Each signal is an absolute assertion, not a toggle; the
// last received value per id wins. There is no expiry timer: an absent
// "stopped typing" signal leaves a user shown as typing until they leave the
// roster. A per-user expiry would be the hardening path if crashed senders
// become a problem in practice.
type TypingTracker struct {
	mu     sync.RWMutex
	typing map[string]string // user id -> display name
}

// NewTypingTracker creates an empty TypingTracker.
func NewTypingTracker() *TypingTracker {
	return &TypingTracker{typing: make(map[string]string)}
}

// ApplySignal sets the typing membership of id to isTyping. Repeated signals
// with the same value are expected and harmless.
func (t *TypingTracker) ApplySignal(id, name string, isTyping bool) {
	t.mu.Lock()
	if isTyping {
		t.typing[id] = name
	} else {
		delete(t.typing, id)
	}
	t.mu.Unlock()
}

// Remove drops a user from the typing set, called when the user leaves the
// roster so that typing entries never outlive roster membership.
func (t *TypingTracker) Remove(id string) {
	t.mu.Lock()
	delete(t.typing, id)
	t.mu.Unlock()
}

// Contains reports whether the given id is currently marked as typing.
func (t *TypingTracker) Contains(id string) bool {
	t.mu.RLock()
	_, ok := t.typing[id]
	t.mu.RUnlock()
	return ok
}

// Count returns the number of users currently typing.
func (t *TypingTracker) Count() int {
	t.mu.RLock()
	n := len(t.typing)
	t.mu.RUnlock()
	return n
}

// Users returns the users currently typing, sorted by id for stable output.
func (t *TypingTracker) Users() []TypingUser {
	t.mu.RLock()
	out := make([]TypingUser, 0, len(t.typing))
	for id, name := range t.typing {
		out = append(out, TypingUser{ID: id, Name: name})
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
