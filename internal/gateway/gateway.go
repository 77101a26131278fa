// Package gateway adapts arikawa/v3's text/voice-state gateway session
// into the external "Gateway" collaborator §6 describes: voxd's own
// connfsm/netio own the actual voice WebSocket/UDP protocol, so this
// package's only job is joining a voice channel, receiving the two
// gateway events Discord sends in response (VoiceServerUpdate,
// VoiceStateUpdate), and assembling them into a voicedriver.ConnectionInfo.
// Adapted from the teacher's internal/discord/module.go (NewSession) and
// internal/voice/discord_voice_manager.go (JoinChannel's event-await
// shape), narrowed to exclude arikawa/v3/voice entirely.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/diamondburned/arikawa/v3/gateway"
	"github.com/diamondburned/arikawa/v3/session"
	"go.uber.org/zap"

	"github.com/Raikerian/voxd/internal/voicedriver"
)

// Gateway joins/leaves voice channels on behalf of the driver and
// surfaces the ConnectionInfo needed to start the Connection FSM.
type Gateway struct {
	session *session.Session
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[voicedriver.GuildID]*joinWait
}

type joinWait struct {
	userID    voicedriver.UserID
	channelID voicedriver.ChannelID
	token     string
	endpoint  string
	sessionID string
	haveToken bool
	haveState bool
	done      chan voicedriver.ConnectionInfo
}

// New wraps an already-open arikawa session (constructed by NewSession).
func New(sess *session.Session, logger *zap.Logger) *Gateway {
	g := &Gateway{session: sess, logger: logger, pending: make(map[voicedriver.GuildID]*joinWait)}
	sess.AddHandler(g.onVoiceServerUpdate)
	sess.AddHandler(g.onVoiceStateUpdate)
	return g
}

// Join sends a voice-state update requesting channelID and blocks (up to
// timeout) for the matching VoiceServerUpdate/VoiceStateUpdate pair,
// returning the ConnectionInfo connfsm needs to begin handshaking (§4.5).
func (g *Gateway) Join(ctx context.Context, guildID voicedriver.GuildID, channelID voicedriver.ChannelID, selfUserID voicedriver.UserID, timeout time.Duration) (voicedriver.ConnectionInfo, error) {
	wait := &joinWait{userID: selfUserID, channelID: channelID, done: make(chan voicedriver.ConnectionInfo, 1)}

	g.mu.Lock()
	g.pending[guildID] = wait
	g.mu.Unlock()

	cid := discordChannelID(channelID)
	if err := g.session.Gateway().Send(ctx, &gateway.UpdateVoiceStateCommand{
		GuildID:   discordGuildID(guildID),
		ChannelID: cid,
		SelfMute:  false,
		SelfDeaf:  false,
	}); err != nil {
		g.mu.Lock()
		delete(g.pending, guildID)
		g.mu.Unlock()
		return voicedriver.ConnectionInfo{}, fmt.Errorf("gateway: send voice state update: %w", err)
	}

	select {
	case info := <-wait.done:
		return info, nil
	case <-time.After(timeout):
		g.mu.Lock()
		delete(g.pending, guildID)
		g.mu.Unlock()
		return voicedriver.ConnectionInfo{}, voicedriver.ErrHandshakeTimeout
	case <-ctx.Done():
		return voicedriver.ConnectionInfo{}, ctx.Err()
	}
}

// Leave sends a voice-state update with a nil channel, disconnecting.
func (g *Gateway) Leave(ctx context.Context, guildID voicedriver.GuildID) error {
	return g.session.Gateway().Send(ctx, &gateway.UpdateVoiceStateCommand{
		GuildID:   discordGuildID(guildID),
		ChannelID: 0,
	})
}

func (g *Gateway) onVoiceServerUpdate(ev *gateway.VoiceServerUpdateEvent) {
	guildID := voicedriver.GuildID(ev.GuildID)
	g.mu.Lock()
	wait, ok := g.pending[guildID]
	g.mu.Unlock()
	if !ok {
		return
	}

	wait.token = ev.Token
	wait.endpoint = ev.Endpoint
	wait.haveToken = true
	g.tryComplete(guildID, wait)
}

func (g *Gateway) onVoiceStateUpdate(ev *gateway.VoiceStateUpdateEvent) {
	guildID := voicedriver.GuildID(ev.GuildID)
	g.mu.Lock()
	wait, ok := g.pending[guildID]
	g.mu.Unlock()
	if !ok || uint64(ev.UserID) != uint64(wait.userID) {
		return
	}

	wait.sessionID = ev.SessionID
	wait.haveState = true
	g.tryComplete(guildID, wait)
}

func (g *Gateway) tryComplete(guildID voicedriver.GuildID, wait *joinWait) {
	if !wait.haveToken || !wait.haveState {
		return
	}

	g.mu.Lock()
	if g.pending[guildID] != wait {
		g.mu.Unlock()
		return // already completed/timed out
	}
	delete(g.pending, guildID)
	g.mu.Unlock()

	wait.done <- voicedriver.ConnectionInfo{
		Endpoint:  wait.endpoint,
		SessionID: wait.sessionID,
		Token:     wait.token,
		GuildID:   guildID,
		UserID:    wait.userID,
		ChannelID: wait.channelID,
	}
}
