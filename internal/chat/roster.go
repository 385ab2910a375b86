// Package chat maintains the client's local view of the shared chat room:
// the roster of connected users, the set of users currently typing, and the
// ordered message log. All three are reconciled purely from server events,
// applied in delivery order.
package chat

import (
	"sort"
	"sync"

	"github.com/parley/chat-client/internal/protocol"
)

// Roster is the set of currently connected users, keyed by server-assigned
// user id. It is goroutine-safe. Two update modes exist: a full snapshot
// replace and single join/leave deltas; both converge to the same set when
// applied in delivery order.
type Roster struct {
	mu    sync.RWMutex
	users map[string]protocol.User
}

// NewRoster creates an empty Roster ready for use.
func NewRoster() *Roster {
	return &Roster{users: make(map[string]protocol.User)}
}

// ApplySnapshot replaces the roster wholesale. Repeated snapshots are
// idempotent: the last one wins. It returns the ids that were present before
// but are absent from the snapshot, so the caller can cascade removals.
func (r *Roster) ApplySnapshot(users []protocol.User) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]protocol.User, len(users))
	for _, u := range users {
		next[u.ID] = u
	}

	var removed []string
	for id := range r.users {
		if _, ok := next[id]; !ok {
			removed = append(removed, id)
		}
	}
	r.users = next
	return removed
}

// ApplyJoin upserts a user. If the id is already present the newer record
// replaces the older one, which guards against duplicate join notifications.
func (r *Roster) ApplyJoin(u protocol.User) {
	r.mu.Lock()
	r.users[u.ID] = u
	r.mu.Unlock()
}

// ApplyLeave removes a user by id. Removing an unknown id is a no-op.
// Returns true if the user was present.
func (r *Roster) ApplyLeave(id string) bool {
	r.mu.Lock()
	_, ok := r.users[id]
	if ok {
		delete(r.users, id)
	}
	r.mu.Unlock()
	return ok
}

// Contains reports whether the given id is in the roster.
func (r *Roster) Contains(id string) bool {
	r.mu.RLock()
	_, ok := r.users[id]
	r.mu.RUnlock()
	return ok
}

// Get returns the user for the given id, if present.
func (r *Roster) Get(id string) (protocol.User, bool) {
	r.mu.RLock()
	u, ok := r.users[id]
	r.mu.RUnlock()
	return u, ok
}

// Count returns the current number of users.
func (r *Roster) Count() int {
	r.mu.RLock()
	n := len(r.users)
	r.mu.RUnlock()
	return n
}

// Users returns a snapshot of the roster sorted by display name (id as a
// tiebreaker) for stable rendering. The returned slice is safe to retain.
func (r *Roster) Users() []protocol.User {
	r.mu.RLock()
	out := make([]protocol.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}
