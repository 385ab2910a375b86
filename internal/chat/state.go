package chat

import (
	"github.com/parley/chat-client/internal/protocol"
)

// State composes the roster, typing tracker, and message log and enforces
// the cross-entity invariant between them: the typing set's keys are always
// a subset of the roster's ids. Every roster removal (leave delta or
// snapshot replace) cascades into the typing set, and typing signals for
// users not in the roster are dropped.
type State struct {
	Roster *Roster
	Typing *TypingTracker
	Log    *MessageLog
}

// NewState creates an empty chat state.
func NewState() *State {
	return &State{
		Roster: NewRoster(),
		Typing: NewTypingTracker(),
		Log:    NewMessageLog(),
	}
}

// ApplyUserList replaces the roster from a full snapshot and removes typing
// entries for users the snapshot no longer contains.
func (s *State) ApplyUserList(users []protocol.User) {
	for _, id := range s.Roster.ApplySnapshot(users) {
		s.Typing.Remove(id)
	}
}

// ApplyUserJoined upserts a single user into the roster.
func (s *State) ApplyUserJoined(u protocol.User) {
	s.Roster.ApplyJoin(u)
}

// ApplyUserLeft removes a user from the roster and from the typing set.
func (s *State) ApplyUserLeft(id string) {
	s.Roster.ApplyLeave(id)
	s.Typing.Remove(id)
}

// ApplyUserTyping applies an absolute typing assertion. Signals for ids not
// in the roster are dropped so the typing set never references an unknown
// user.
func (s *State) ApplyUserTyping(sig protocol.UserTyping) {
	if sig.IsTyping && !s.Roster.Contains(sig.UserID) {
		return
	}
	s.Typing.ApplySignal(sig.UserID, sig.UserName, sig.IsTyping)
}

// ApplyChatHistory replaces the message log from the history snapshot.
func (s *State) ApplyChatHistory(msgs []protocol.Message) {
	s.Log.ApplyHistory(msgs)
}

// ApplyNewMessage appends one message in receipt order.
func (s *State) ApplyNewMessage(msg protocol.Message) {
	s.Log.ApplyNew(msg)
}
