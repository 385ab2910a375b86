// Package session tracks the client's authentication lifecycle: anonymous,
// authenticating through the login or register flow, and authenticated. It
// validates credentials locally before any network effect and owns the two
// fixed display delays around auth responses (register success switches the
// presented flow to login; login success emits the join action and opens the
// chat phase).
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Phase is the authentication lifecycle state.
type Phase int

const (
	PhaseAnonymous Phase = iota
	PhaseAuthenticating
	PhaseAuthenticated
)

// String implements fmt.Stringer for log output.
func (p Phase) String() string {
	switch p {
	case PhaseAnonymous:
		return "anonymous"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Flow is the auth form currently presented to the user.
type Flow int

const (
	FlowLogin Flow = iota
	FlowRegister
)

// String implements fmt.Stringer for log output.
func (f Flow) String() string {
	if f == FlowRegister {
		return "register"
	}
	return "login"
}

// MinPasswordLen is the minimum register password length.
const MinPasswordLen = 6

// Default display delays. Register success lingers on the notice before the
// form switches to login; login success lingers before the join action fires.
const (
	DefaultRegisterFlowDelay = 2 * time.Second
	DefaultLoginJoinDelay    = 1 * time.Second
)

// ErrValidation marks a local validation failure: malformed input that never
// reached the network.
var ErrValidation = errors.New("session: validation failed")

// Emitter sends auth-related actions toward the transport. Implemented by
// the action dispatcher.
type Emitter interface {
	Register(username, password, name string) error
	Login(username, password string) error
	Join(username, name string) error
}

// Identity is the authenticated user as known locally.
type Identity struct {
	Username string
	Name     string
}

// Options tunes the machine's delays and timer scheduling. Schedule defaults
// to time.AfterFunc; the connection supervisor injects a generation-guarded
// scheduler so that a disconnect cancels pending completions.
type Options struct {
	RegisterFlowDelay time.Duration
	LoginJoinDelay    time.Duration
	Schedule          func(d time.Duration, f func())
}

// Snapshot is a read-only view of the machine for rendering.
type Snapshot struct {
	Phase    Phase
	Flow     Flow
	Notice   string
	Error    string
	Identity Identity // zero value unless Phase is PhaseAuthenticated
}

// Machine is the authentication state machine. It is goroutine-safe. Chat
// event processing elsewhere is only valid while the machine reports
// PhaseAuthenticated.
type Machine struct {
	mu      sync.Mutex
	emitter Emitter
	opts    Options

	phase    Phase
	flow     Flow
	identity Identity
	notice   string
	errText  string

	// Credentials remembered from the last validated submit, used to build
	// the join action after login succeeds.
	pendingUsername string
	displayName     string

	// epoch invalidates scheduled completions from before a Reset. A login
	// response that fires its join timer after a disconnect must find a
	// different epoch and do nothing.
	epoch uint64
}

// NewMachine creates a Machine in the anonymous phase presenting the login
// flow. A nil Schedule in opts falls back to time.AfterFunc; zero delays
// fall back to the defaults.
func NewMachine(emitter Emitter, opts Options) *Machine {
	if opts.RegisterFlowDelay <= 0 {
		opts.RegisterFlowDelay = DefaultRegisterFlowDelay
	}
	if opts.LoginJoinDelay <= 0 {
		opts.LoginJoinDelay = DefaultLoginJoinDelay
	}
	if opts.Schedule == nil {
		opts.Schedule = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	return &Machine{emitter: emitter, opts: opts, phase: PhaseAnonymous, flow: FlowLogin}
}

// SubmitRegister validates and emits a register action. The phase does not
// change; the register form stays presented until the server responds. The
// display name is remembered so a later login can join with it.
func (m *Machine) SubmitRegister(username, password, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearSlots()
	m.flow = FlowRegister

	if err := validateCredentials(username, password); err != nil {
		m.errText = err.Error()
		return err
	}
	if len(password) < MinPasswordLen {
		err := fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLen)
		m.errText = err.Error()
		return err
	}

	m.displayName = name
	if err := m.emitter.Register(username, password, name); err != nil {
		m.errText = err.Error()
		return err
	}
	return nil
}

// HandleRegisterResult applies the server's register response. On success a
// transient notice is shown and, after the register delay, the presented
// flow switches to login and the notice clears.
func (m *Machine) HandleRegisterResult(success bool, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !success {
		m.errText = message
		m.notice = ""
		return
	}

	m.errText = ""
	m.notice = "Registration successful! You can now log in."
	m.scheduleLocked(m.opts.RegisterFlowDelay, func() {
		m.flow = FlowLogin
		m.notice = ""
	})
}

// SubmitLogin validates and emits a login action, moving the machine into
// the authenticating phase. No password length check applies on login.
func (m *Machine) SubmitLogin(username, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearSlots()
	m.flow = FlowLogin

	if err := validateCredentials(username, password); err != nil {
		m.errText = err.Error()
		return err
	}

	prev := m.phase
	m.phase = PhaseAuthenticating
	m.pendingUsername = username
	if err := m.emitter.Login(username, password); err != nil {
		m.phase = prev
		m.errText = err.Error()
		return err
	}
	return nil
}

// HandleLoginResult applies the server's login response. On success a
// transient notice is shown and, after the login delay, the join action is
// emitted exactly once and the phase becomes authenticated. A disconnect
// before the delay elapses cancels the join. On failure the machine stays
// authenticating with the server's message in the error slot.
func (m *Machine) HandleLoginResult(success bool, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseAuthenticating {
		return
	}

	if !success {
		m.errText = message
		m.notice = ""
		return
	}

	m.errText = ""
	m.notice = "Login successful!"

	username := m.pendingUsername
	name := m.displayName
	if name == "" {
		name = username
	}

	m.scheduleLocked(m.opts.LoginJoinDelay, func() {
		// Join is fire-and-forget and never retried automatically.
		if err := m.emitter.Join(username, name); err != nil {
			m.errText = err.Error()
			return
		}
		m.phase = PhaseAuthenticated
		m.identity = Identity{Username: username, Name: name}
		m.notice = ""
	})
}

// SetFlow switches the presented auth form.
func (m *Machine) SetFlow(f Flow) {
	m.mu.Lock()
	m.flow = f
	m.mu.Unlock()
}

// Phase returns the current lifecycle phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	p := m.phase
	m.mu.Unlock()
	return p
}

// Reset returns the machine to the anonymous phase, clears the identity and
// both text slots, and invalidates every pending scheduled completion.
// Called on disconnect.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.epoch++
	m.phase = PhaseAnonymous
	m.identity = Identity{}
	m.clearSlots()
	m.mu.Unlock()
}

// Snapshot returns a read-only copy of the machine state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Phase:    m.phase,
		Flow:     m.flow,
		Notice:   m.notice,
		Error:    m.errText,
		Identity: m.identity,
	}
}

// clearSlots empties the notice and error text. Callers hold m.mu.
func (m *Machine) clearSlots() {
	m.notice = ""
	m.errText = ""
}

// scheduleLocked schedules f to run under the machine lock after d, unless
// the epoch has moved on by then. Callers hold m.mu.
func (m *Machine) scheduleLocked(d time.Duration, f func()) {
	epoch := m.epoch
	m.opts.Schedule(d, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.epoch != epoch {
			return
		}
		f()
	})
}

// validateCredentials applies the checks shared by register and login.
func validateCredentials(username, password string) error {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: username and password are required", ErrValidation)
	}
	return nil
}
