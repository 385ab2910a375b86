package chat

import (
	"sync"

	"github.com/parley/chat-client/internal/protocol"
)

// MessageLog is the ordered, append-only message sequence. Ordering is
// receipt order; timestamps are display-only and not assumed monotonic.
//
// The server does not guarantee that the chatHistory snapshot arrives before
// the first newMessage. Appends received before a base snapshot has been
// established are buffered and spliced in after the snapshot contents once
// it arrives. Rebase re-arms that buffering for the next connection while
// leaving existing entries visible.
type MessageLog struct {
	mu      sync.RWMutex
	entries []protocol.Message
	pending []protocol.Message
	based   bool // a history snapshot has been applied this connection
}

// NewMessageLog creates an empty MessageLog.
func NewMessageLog() *MessageLog {
	return &MessageLog{}
}

// ApplyHistory replaces the log with the history snapshot followed by any
// appends that were buffered while waiting for it. Used once per connection;
// if repeated, the last snapshot wins.
func (l *MessageLog) ApplyHistory(msgs []protocol.Message) {
	l.mu.Lock()
	l.entries = make([]protocol.Message, 0, len(msgs)+len(l.pending))
	l.entries = append(l.entries, msgs...)
	l.entries = append(l.entries, l.pending...)
	l.pending = nil
	l.based = true
	l.mu.Unlock()
}

// ApplyNew appends a message in receipt order. Messages are not deduplicated
// by id: a duplicate delivery produces a duplicate visible entry. Before a
// history snapshot has established a base the message is buffered instead.
func (l *MessageLog) ApplyNew(msg protocol.Message) {
	l.mu.Lock()
	if l.based {
		l.entries = append(l.entries, msg)
	} else {
		l.pending = append(l.pending, msg)
	}
	l.mu.Unlock()
}

// Rebase marks the log as awaiting a fresh history snapshot. Entries stay
// visible so a brief reconnect can keep displaying the old conversation.
func (l *MessageLog) Rebase() {
	l.mu.Lock()
	l.based = false
	l.pending = nil
	l.mu.Unlock()
}

// Len returns the number of visible messages.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	n := len(l.entries)
	l.mu.RUnlock()
	return n
}

// Messages returns a copy of the visible log in receipt order.
func (l *MessageLog) Messages() []protocol.Message {
	l.mu.RLock()
	out := make([]protocol.Message, len(l.entries))
	copy(out, l.entries)
	l.mu.RUnlock()
	return out
}
