package voicedriver

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/voxd/internal/config"
)

// Module provides the Driver and ties its Start/Shutdown into the Fx
// lifecycle, mirroring the teacher's internal/voice.Module (NewService
// wired through a single fx.Provide) but scoped to this package's own
// Driver/Gateway pair instead of the teacher's AudioMixer/SessionManager
// trio.
var Module = fx.Module("voicedriver",
	fx.Provide(NewDriver),
	fx.Invoke(registerLifecycle),
)

// workerPoolSize sizes the initial Worker Thread pool (§4.4); additional
// workers are created on demand by promotion, so this only needs to cover
// the common case without over-provisioning idle OS threads.
const workerPoolSize = 2

// NewDriver builds the Driver from config, ready for Fx to hand to
// registerLifecycle.
func NewDriver(cfg *config.Config, logger *zap.Logger, gw Gateway) *Driver {
	return New(cfg.Voice, logger, gw, workerPoolSize)
}

func registerLifecycle(lc fx.Lifecycle, d *Driver, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting voice driver worker threads")
			d.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down voice driver")
			return d.Shutdown(ctx)
		},
	})
}
