// Package disposer implements the dedicated blocking release thread of
// §4.8: resources whose drop can be slow (process handles, file
// descriptors, decoder buffers) are handed off by queueing rather than
// dropped inline on the Mixer's deadline path.
package disposer

import (
	"context"

	"go.uber.org/zap"
)

// Disposable is anything whose release may block or take a while.
type Disposable interface {
	Dispose() error
}

// DisposableFunc adapts a plain function to Disposable.
type DisposableFunc func() error

// Dispose implements Disposable.
func (f DisposableFunc) Dispose() error { return f() }

// Disposer runs one background goroutine draining a queue of Disposables,
// so the Mixer can hand off ownership without blocking its own tick
// (§4.8 "The Mixer hands ownership to the Disposer by queueing").
type Disposer struct {
	logger *zap.Logger
	queue  chan Disposable
	done   chan struct{}
}

// New starts the Disposer's background goroutine. queueDepth bounds how
// many pending disposals may be queued before Queue blocks the caller.
func New(logger *zap.Logger, queueDepth int) *Disposer {
	if queueDepth < 1 {
		queueDepth = 1
	}
	d := &Disposer{
		logger: logger,
		queue:  make(chan Disposable, queueDepth),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Queue hands d a resource to release. Blocks only if the queue is full,
// which a Mixer tick should never observe in practice (§5: the Disposer
// runs off the audio deadline path entirely).
func (d *Disposer) Queue(item Disposable) {
	d.queue <- item
}

func (d *Disposer) run() {
	defer close(d.done)
	for item := range d.queue {
		if err := item.Dispose(); err != nil {
			d.logger.Warn("disposer: resource release failed", zap.Error(err))
		}
	}
}

// Shutdown closes the queue and waits for every already-queued item to be
// released. ctx bounds how long to wait before giving up.
func (d *Disposer) Shutdown(ctx context.Context) error {
	close(d.queue)
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
