// Package app provides the main application structure and lifecycle management.
package app

import (
	"context"

	"go.uber.org/fx"
)

// Application represents the main application with its lifecycle. Unlike
// the teacher's Application, it registers no lifecycle hooks of its own:
// the gateway session and the voice driver's worker threads each own
// their OnStart/OnStop hook (internal/gateway.Module, internal/voicedriver.
// Module), so this wrapper only needs to start and stop the Fx graph.
type Application struct {
	app *fx.App
}

// New creates a new Application from the provided modules and options.
func New(modules ...fx.Option) *Application {
	return &Application{app: fx.New(modules...)}
}

// Run starts the application and blocks until it's stopped.
func (a *Application) Run() {
	a.app.Run()
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	return a.app.Stop(ctx)
}
