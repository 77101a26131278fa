package workerpool_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Raikerian/voxd/internal/voicedriver/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitReturnsJobResult(t *testing.T) {
	p := workerpool.New(2)
	defer p.Close()

	resultCh := p.Submit(func(ctx context.Context) (any, error) {
		return 42, nil
	})

	select {
	case r := <-resultCh:
		require.NoError(t, r.Err)
		assert.Equal(t, 42, r.Value)
	case <-time.After(time.Second):
		t.Fatal("job did not complete in time")
	}
}

func TestSubmitDoesNotBlockCaller(t *testing.T) {
	p := workerpool.New(1)
	defer p.Close()

	block := make(chan struct{})
	p.Submit(func(ctx context.Context) (any, error) {
		<-block
		return nil, nil
	})

	done := make(chan struct{})
	go func() {
		p.Submit(func(ctx context.Context) (any, error) { return nil, nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked the caller")
	}
	close(block)
}

func TestPoolRunsJobsConcurrentlyUpToMax(t *testing.T) {
	p := workerpool.New(4)
	defer p.Close()

	var inFlight int32
	var maxSeen int32
	release := make(chan struct{})
	results := make([]<-chan workerpool.Result, 4)
	for i := 0; i < 4; i++ {
		results[i] = p.Submit(func(ctx context.Context) (any, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				cur := atomic.LoadInt32(&maxSeen)
				if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&inFlight, -1)
			return nil, nil
		})
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	for _, r := range results {
		<-r
	}
	assert.Equal(t, int32(4), atomic.LoadInt32(&maxSeen))
}

func TestCloseStopsAcceptingAfterInFlightDrain(t *testing.T) {
	p := workerpool.New(1)
	r := p.Submit(func(ctx context.Context) (any, error) { return "done", nil })
	require.NoError(t, (<-r).Err)
	p.Close()
}
