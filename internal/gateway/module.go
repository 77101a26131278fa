package gateway

import (
	"context"
	"errors"

	"github.com/diamondburned/arikawa/v3/gateway"
	"github.com/diamondburned/arikawa/v3/session"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/voxd/internal/config"
	"github.com/Raikerian/voxd/internal/voicedriver"
)

// Module provides the arikawa session and the Gateway collaborator,
// trimmed from the teacher's internal/discord.Module to the voice-state
// intents this driver actually consumes (§6 "Consumed from
// collaborators"). New is bound to the voicedriver.Gateway interface via
// fx.As so voicedriver.Module's NewDriver can depend on the interface
// without importing this package.
var Module = fx.Module("gateway",
	fx.Provide(
		NewSession,
		fx.Annotate(New, fx.As(new(voicedriver.Gateway))),
	),
)

// SessionParams holds dependencies for NewSession.
type SessionParams struct {
	fx.In
	Cfg    *config.Config
	LC     fx.Lifecycle
	Logger *zap.Logger
}

// NewSession opens an arikawa session with only the intents the voice
// driver needs: guild membership (to resolve user IDs) and guild voice
// states (to receive VoiceStateUpdate/VoiceServerUpdate).
func NewSession(params SessionParams) (*session.Session, error) {
	if params.Cfg.Discord.BotToken == "" {
		return nil, errors.New("gateway: discord bot token is not set in config")
	}

	s := session.New("Bot " + params.Cfg.Discord.BotToken)
	s.AddIntents(gateway.IntentGuilds | gateway.IntentGuildVoiceStates | gateway.IntentGuildMembers)

	params.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			params.Logger.Info("opening discord gateway session")
			return s.Open(ctx)
		},
		OnStop: func(ctx context.Context) error {
			params.Logger.Info("closing discord gateway session")
			return s.Close()
		},
	})

	return s, nil
}
