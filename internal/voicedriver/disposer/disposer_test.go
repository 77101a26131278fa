package disposer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Raikerian/voxd/internal/voicedriver/disposer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestQueueDisposesEveryItem(t *testing.T) {
	d := disposer.New(zap.NewNop(), 4)

	var mu sync.Mutex
	var released []int
	for i := 0; i < 3; i++ {
		i := i
		d.Queue(disposer.DisposableFunc(func() error {
			mu.Lock()
			released = append(released, i)
			mu.Unlock()
			return nil
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, released, 3)
}

func TestDisposeErrorDoesNotStopTheDrain(t *testing.T) {
	d := disposer.New(zap.NewNop(), 4)
	d.Queue(disposer.DisposableFunc(func() error { return errors.New("close failed") }))

	done := make(chan struct{})
	d.Queue(disposer.DisposableFunc(func() error {
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disposer stalled after a failing disposal")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
}
