// Package netio implements the transport layer of §4.5/§6: the voice
// WebSocket client (opcodes, heartbeat/Resume) over gorilla/websocket, the
// UDP send/receive socket, and IP Discovery. connfsm drives this package's
// state transitions; netio itself only speaks the wire protocol.
package netio

import "encoding/json"

// Opcode is a Discord voice gateway opcode (§6 "Voice WebSocket").
type Opcode int

const (
	OpIdentify           Opcode = 0
	OpSelectProtocol     Opcode = 1
	OpReady              Opcode = 2
	OpHeartbeat          Opcode = 3
	OpSessionDescription Opcode = 4
	OpSpeaking           Opcode = 5
	OpHeartbeatAck       Opcode = 6
	OpResume             Opcode = 7
	OpHello              Opcode = 8
	OpResumed            Opcode = 9
	OpClientDisconnect   Opcode = 13
)

// Payload is the envelope every voice gateway frame uses.
type Payload struct {
	Op   Opcode          `json:"op"`
	Data json.RawMessage `json:"d"`
}

// IdentifyData is sent for OpIdentify.
type IdentifyData struct {
	ServerID  string `json:"server_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

// SelectProtocolData is sent for OpSelectProtocol after IP discovery.
type SelectProtocolData struct {
	Protocol string                  `json:"protocol"`
	Data     SelectProtocolInnerData `json:"data"`
}

// SelectProtocolInnerData carries the discovered external address.
type SelectProtocolInnerData struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
	Mode    string `json:"mode"`
}

// ReadyData is received for OpReady.
type ReadyData struct {
	SSRC  uint32   `json:"ssrc"`
	IP    string   `json:"ip"`
	Port  uint16   `json:"port"`
	Modes []string `json:"modes"`
}

// SessionDescriptionData is received for OpSessionDescription.
type SessionDescriptionData struct {
	Mode      string `json:"mode"`
	SecretKey []byte `json:"secret_key"`
}

// HelloData is received for OpHello, naming the heartbeat interval.
type HelloData struct {
	HeartbeatIntervalMS float64 `json:"heartbeat_interval"`
}

// SpeakingData is sent/received for OpSpeaking (§3 "Update speaking
// bitmap"). Discord's speaking bitmap is MICROPHONE=1, SOUNDSHARE=2,
// PRIORITY=4.
type SpeakingData struct {
	Speaking int    `json:"speaking"`
	Delay    int    `json:"delay"`
	SSRC     uint32 `json:"ssrc"`
	UserID   string `json:"user_id,omitempty"` // only set on the received echo, not the outgoing update
}

// ClientDisconnectData is received for OpClientDisconnect when a user
// leaves the voice channel (§4.7 "Core: ... ClientDisconnect").
type ClientDisconnectData struct {
	UserID string `json:"user_id"`
}

// HeartbeatPayload is sent for OpHeartbeat; Discord echoes the nonce back
// in OpHeartbeatAck.
type HeartbeatPayload struct {
	Nonce int64 `json:"t"`
}

// ResumeData is sent for OpResume (§4.5 "Resuming: ... send Resume").
type ResumeData struct {
	ServerID  string `json:"server_id"`
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

const (
	SpeakingMicrophone = 1 << 0
	SpeakingSoundshare = 1 << 1
	SpeakingPriority   = 1 << 2
)
