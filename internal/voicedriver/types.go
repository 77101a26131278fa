// Package voicedriver ties the voice driver's components (§2 of the design)
// into a single per-process Driver: a deadline-driven mixing scheduler, the
// per-call mixer pipeline, and the receive-path jitter buffers, fronted by a
// small public control surface.
package voicedriver

import "fmt"

// GuildID, ChannelID and UserID are the driver's own identifier types.
// The core never imports a gateway library's snowflake type directly —
// the Gateway collaborator (internal/gateway) translates into these.
type (
	GuildID   uint64
	ChannelID uint64
	UserID    uint64
)

// SSRC is a 32-bit synchronization source identifier, one per speaking party.
type SSRC uint32

// ConnectionInfo is the pre-negotiated session handed to the driver by the
// Gateway collaborator (§3 "ConnectionInfo").
type ConnectionInfo struct {
	Endpoint  string
	SessionID string
	Token     string
	GuildID   GuildID
	UserID    UserID
	ChannelID ChannelID
}

func (c ConnectionInfo) String() string {
	return fmt.Sprintf("ConnectionInfo{guild=%d channel=%d endpoint=%s}", c.GuildID, c.ChannelID, c.Endpoint)
}
