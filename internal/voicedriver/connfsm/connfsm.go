// Package connfsm implements the Connection FSM of §4.5: Disconnected ->
// Handshaking -> Discovering -> SelectingProtocol -> Ready <-> Resuming ->
// Disconnected. The state machine itself is transport-agnostic (driven
// through the Transport interface) so it is unit-testable without a real
// voice endpoint; netio provides the real Transport the Driver wires in.
package connfsm

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// State is one node of the Connection FSM.
type State int

const (
	StateDisconnected State = iota
	StateHandshaking
	StateDiscovering
	StateSelectingProtocol
	StateReady
	StateResuming
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateHandshaking:
		return "handshaking"
	case StateDiscovering:
		return "discovering"
	case StateSelectingProtocol:
		return "selecting_protocol"
	case StateReady:
		return "ready"
	case StateResuming:
		return "resuming"
	default:
		return "unknown"
	}
}

// CloseReason classifies a WS close code as resumable or not (§4.5, §6).
type CloseReason int

const (
	CloseResumable CloseReason = iota
	CloseNonResumable
)

// nonResumableCodes are the voice close codes that force a full teardown
// instead of a Resume attempt (§6 "codes defined in §6": 4004 auth
// failed, 4006 session invalid, 4014 disconnected/kicked, 4015 voice
// server crashed is resumable upstream but Discord docs list it among the
// non-resumable set for this driver's purposes since the server state is
// gone).
var nonResumableCodes = map[int]bool{
	4004: true,
	4006: true,
	4009: true,
	4011: true,
	4014: true,
	4015: true,
}

// ClassifyClose reports whether a voice WS close code should attempt
// Resume or fully disconnect.
func ClassifyClose(code int) CloseReason {
	if nonResumableCodes[code] {
		return CloseNonResumable
	}
	return CloseResumable
}

// Machine tracks the FSM's current state and exposes the valid
// transitions named in §4.5. It holds no transport; callers drive it
// after performing the corresponding I/O.
type Machine struct {
	state       State
	handshakeTO time.Duration
	backoffPol  backoff.BackOff
}

// New creates a Machine starting Disconnected, with a capped exponential
// reconnect backoff (§4.5 "Exponential backoff on reconnect, capped").
func New(handshakeTimeout time.Duration) *Machine {
	pol := backoff.NewExponentialBackOff()
	pol.MaxElapsedTime = 0 // caller decides when to give up, not the policy
	pol.MaxInterval = 30 * time.Second
	return &Machine{state: StateDisconnected, handshakeTO: handshakeTimeout, backoffPol: pol}
}

// State returns the current FSM state.
func (m *Machine) State() State { return m.state }

// HandshakeTimeout returns the configured handshake deadline (default
// 10s per §4.5).
func (m *Machine) HandshakeTimeout() time.Duration { return m.handshakeTO }

// NextBackoff returns how long to wait before the next reconnect attempt,
// advancing the backoff policy's internal state.
func (m *Machine) NextBackoff() time.Duration { return m.backoffPol.NextBackOff() }

// ResetBackoff clears accumulated backoff once a connection attempt
// succeeds (Ready is reached).
func (m *Machine) ResetBackoff() { m.backoffPol.Reset() }

// BeginHandshake transitions Disconnected -> Handshaking.
func (m *Machine) BeginHandshake() bool {
	if m.state != StateDisconnected {
		return false
	}
	m.state = StateHandshaking
	return true
}

// ReachDiscovering transitions Handshaking -> Discovering, once Ready's
// SSRC/port/modes have been received (§4.5).
func (m *Machine) ReachDiscovering() bool {
	if m.state != StateHandshaking {
		return false
	}
	m.state = StateDiscovering
	return true
}

// ReachSelectingProtocol transitions Discovering -> SelectingProtocol
// once the external address:port is known.
func (m *Machine) ReachSelectingProtocol() bool {
	if m.state != StateDiscovering {
		return false
	}
	m.state = StateSelectingProtocol
	return true
}

// ReachReady transitions SelectingProtocol or Resuming -> Ready, once
// SessionDescription installs SessionKeys.
func (m *Machine) ReachReady() bool {
	if m.state != StateSelectingProtocol && m.state != StateResuming {
		return false
	}
	m.state = StateReady
	m.ResetBackoff()
	return true
}

// BeginResume transitions Ready -> Resuming on a resumable WS close.
func (m *Machine) BeginResume(closeCode int) bool {
	if m.state != StateReady {
		return false
	}
	if ClassifyClose(closeCode) != CloseResumable {
		return false
	}
	m.state = StateResuming
	return true
}

// Disconnect transitions from any state to Disconnected, e.g. on a
// non-resumable close or explicit shutdown (§4.5, §5 "cooperative
// shutdown").
func (m *Machine) Disconnect() {
	m.state = StateDisconnected
}

// HandleClose is the convenience entry point a Driver calls when the WS
// drops: it classifies the code and applies BeginResume or Disconnect.
func (m *Machine) HandleClose(code int) State {
	if m.state == StateReady && m.BeginResume(code) {
		return m.state
	}
	m.Disconnect()
	return m.state
}
