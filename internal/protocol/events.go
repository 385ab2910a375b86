// Package protocol defines the chat event types and payload structures
// exchanged between the client and the server. Every event is serialized as a
// JSON envelope carrying an event name discriminator and a payload; inbound
// payloads are decoded at the transport boundary into concrete structs so
// that all downstream handling is over a closed set of types.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Event name constants
// ---------------------------------------------------------------------------

// Client -> Server event names.
const (
	EventRegister    = "register"
	EventLogin       = "login"
	EventJoin        = "join"
	EventSendMessage = "sendMessage"
	EventTyping      = "typing"
)

// Server -> Client event names.
const (
	EventConnected        = "connect"
	EventRegisterResponse = "registerResponse"
	EventLoginResponse    = "loginResponse"
	EventUserJoined       = "userJoined"
	EventUserLeft         = "userLeft"
	EventUserList         = "userList"
	EventChatHistory      = "chatHistory"
	EventNewMessage       = "newMessage"
	EventUserTyping       = "userTyping"
)

// ---------------------------------------------------------------------------
// Shared payload structs
// ---------------------------------------------------------------------------

// User is a connected chat participant. ID is assigned by the server and is
// the join key for roster, typing, and message authorship state.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Message is a single chat message. Timestamp is epoch milliseconds and is
// display-only; clients must not assume timestamps are monotonic.
type Message struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// ---------------------------------------------------------------------------
// Client -> Server payload structs
// ---------------------------------------------------------------------------

// RegisterPayload carries a new-account request.
type RegisterPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginPayload carries a login attempt.
type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// JoinPayload announces the authenticated user to the chat room. Name falls
// back to the username when no display name was provided.
type JoinPayload struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

// sendMessage and typing carry bare values (a string and a bool) rather than
// object payloads, matching the server's wire contract.

// ---------------------------------------------------------------------------
// Server -> Client payload structs
// ---------------------------------------------------------------------------

// Connected is delivered once per connection and carries the identifier the
// server assigned to this client ("own id").
type Connected struct {
	ID string `json:"id"`
}

// AuthResponse is the outcome of a register or login round-trip.
type AuthResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RegisterResponse is the server's answer to a register event.
type RegisterResponse struct{ AuthResponse }

// LoginResponse is the server's answer to a login event.
type LoginResponse struct{ AuthResponse }

// UserJoined announces a single user entering the room.
type UserJoined struct{ User }

// UserLeft announces a user leaving the room by id.
type UserLeft struct {
	UserID string
}

// UserList is a full roster snapshot.
type UserList struct {
	Users []User
}

// ChatHistory is a full message-log snapshot, delivered once after join.
type ChatHistory struct {
	Messages []Message
}

// NewMessage appends one message to the log.
type NewMessage struct{ Message }

// UserTyping is an absolute typing assertion for one user.
type UserTyping struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the event name.
// ---------------------------------------------------------------------------

// Envelope holds the event name and the raw JSON payload for deferred
// decoding into a concrete struct.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// UnmarshalJSON implements json.Unmarshaler. It rejects envelopes without an
// event name so malformed frames are caught at the boundary.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var partial struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Event == "" {
		return fmt.Errorf("protocol: missing or empty \"event\" field")
	}
	e.Event = partial.Event
	e.Data = partial.Data
	return nil
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseServerEvent parses raw wire bytes into a typed server event. It
// returns the event name, the decoded struct (one of the Server -> Client
// payload types above), and any error encountered. Unknown or client-only
// event names are an error.
func ParseServerEvent(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse event: %w", err)
	}

	var (
		evt interface{}
		err error
	)

	switch env.Event {
	case EventConnected:
		var p Connected
		err = json.Unmarshal(env.Data, &p)
		evt = p
	case EventRegisterResponse:
		var p RegisterResponse
		err = json.Unmarshal(env.Data, &p)
		evt = p
	case EventLoginResponse:
		var p LoginResponse
		err = json.Unmarshal(env.Data, &p)
		evt = p
	case EventUserJoined:
		var p UserJoined
		err = json.Unmarshal(env.Data, &p.User)
		evt = p
	case EventUserLeft:
		// Payload is a bare JSON string holding the user id.
		var p UserLeft
		err = json.Unmarshal(env.Data, &p.UserID)
		evt = p
	case EventUserList:
		var p UserList
		err = json.Unmarshal(env.Data, &p.Users)
		evt = p
	case EventChatHistory:
		var p ChatHistory
		err = json.Unmarshal(env.Data, &p.Messages)
		evt = p
	case EventNewMessage:
		var p NewMessage
		err = json.Unmarshal(env.Data, &p.Message)
		evt = p
	case EventUserTyping:
		var p UserTyping
		err = json.Unmarshal(env.Data, &p)
		evt = p
	default:
		return env.Event, nil, fmt.Errorf("protocol: unknown server event: %q", env.Event)
	}

	if err != nil {
		return env.Event, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Event, err)
	}
	return env.Event, evt, nil
}

// NewClientEvent creates the JSON-encoded bytes for a client event. The
// payload may be a struct, a bare string (sendMessage), or a bool (typing);
// it is placed under the "data" key next to the event name.
func NewClientEvent(event string, payload interface{}) ([]byte, error) {
	out, err := json.Marshal(struct {
		Event string      `json:"event"`
		Data  interface{} `json:"data"`
	}{Event: event, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal %q event: %w", event, err)
	}
	return out, nil
}
