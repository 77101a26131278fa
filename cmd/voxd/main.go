// Command voxd runs the voice driver against a live Discord gateway
// session, wiring config, logging, the gateway collaborator and the
// voice driver itself into a single Fx graph (mirrors the teacher's
// main.go, trimmed to this repo's modules).
package main

import (
	"flag"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/Raikerian/voxd/internal/app"
	"github.com/Raikerian/voxd/internal/config"
	"github.com/Raikerian/voxd/internal/gateway"
	"github.com/Raikerian/voxd/internal/infrastructure"
	"github.com/Raikerian/voxd/internal/voicedriver"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	flag.Parse()

	application := app.New(
		fx.Supply(*configPath),
		config.Module,
		infrastructure.LoggerModule,
		gateway.Module,
		voicedriver.Module,
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return infrastructure.NewFxLoggerAdapter(logger)
		}),
	)

	application.Run()
}
