package scheduler_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Raikerian/voxd/internal/voicedriver/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunnable struct {
	id   string
	live bool
	cost time.Duration
	err  error
}

func (f *fakeRunnable) ID() string { return f.id }
func (f *fakeRunnable) Tick(now time.Time) (bool, time.Duration, error) {
	return f.live, f.cost, f.err
}

func TestChoosePromotionTargetPicksFirstUnderCapacity(t *testing.T) {
	cfg := scheduler.Config{LiveTracksPerThread: 16, CostCeiling: 10 * time.Millisecond}
	workers := []scheduler.WorkerStatus{
		{ID: 0, Population: 16, LastCost: time.Millisecond},
		{ID: 1, Population: 5, LastCost: time.Millisecond},
		{ID: 2, Population: 0, LastCost: 0},
	}
	assert.Equal(t, 1, scheduler.ChoosePromotionTarget(workers, cfg))
}

func TestChoosePromotionTargetSkipsOverCostCeiling(t *testing.T) {
	cfg := scheduler.Config{LiveTracksPerThread: 16, CostCeiling: 5 * time.Millisecond}
	workers := []scheduler.WorkerStatus{
		{ID: 0, Population: 2, LastCost: 9 * time.Millisecond},
		{ID: 1, Population: 2, LastCost: 1 * time.Millisecond},
	}
	assert.Equal(t, 1, scheduler.ChoosePromotionTarget(workers, cfg))
}

func TestChoosePromotionTargetReturnsNegativeOneWhenNoneFit(t *testing.T) {
	cfg := scheduler.Config{LiveTracksPerThread: 1, CostCeiling: time.Millisecond}
	workers := []scheduler.WorkerStatus{{ID: 0, Population: 1, LastCost: 2 * time.Millisecond}}
	assert.Equal(t, -1, scheduler.ChoosePromotionTarget(workers, cfg))
}

func TestChooseEvictionTargetPicksHighestCostOverBudget(t *testing.T) {
	cfg := scheduler.Config{WorkBudget: 18 * time.Millisecond}
	costs := map[string]time.Duration{
		"a": 10 * time.Millisecond,
		"b": 12 * time.Millisecond,
	}
	assert.Equal(t, "b", scheduler.ChooseEvictionTarget(22*time.Millisecond, costs, cfg))
}

func TestChooseEvictionTargetNoneWhenUnderBudget(t *testing.T) {
	cfg := scheduler.Config{WorkBudget: 18 * time.Millisecond}
	costs := map[string]time.Duration{"a": 5 * time.Millisecond}
	assert.Equal(t, "", scheduler.ChooseEvictionTarget(5*time.Millisecond, costs, cfg))
}

func TestWorkerAcceptAddsOnNextTick(t *testing.T) {
	idle := scheduler.NewIdleCollector()
	w := scheduler.NewWorker(0, scheduler.Config{LiveTracksPerThread: 16, WorkBudget: 18 * time.Millisecond}, idle)

	r := &fakeRunnable{id: "call-1", live: true, cost: time.Millisecond}
	w.Accept(r)
	w.RunTick(time.Now())

	assert.Equal(t, 1, w.Status().Population)
}

func TestWorkerDemotesWhenRunnableGoesIdle(t *testing.T) {
	idle := scheduler.NewIdleCollector()
	w := scheduler.NewWorker(0, scheduler.Config{LiveTracksPerThread: 16, WorkBudget: 18 * time.Millisecond}, idle)

	r := &fakeRunnable{id: "call-1", live: false, cost: time.Millisecond}
	w.Accept(r)
	w.RunTick(time.Now())

	assert.Equal(t, 0, w.Status().Population)
	assert.Equal(t, 1, idle.Len())
}

func TestWorkerEvictsWorstOffenderWhenOverBudget(t *testing.T) {
	idle := scheduler.NewIdleCollector()
	cfg := scheduler.Config{LiveTracksPerThread: 16, WorkBudget: 10 * time.Millisecond}
	w := scheduler.NewWorker(0, cfg, idle)

	w.Accept(&fakeRunnable{id: "cheap", live: true, cost: 4 * time.Millisecond})
	w.Accept(&fakeRunnable{id: "expensive", live: true, cost: 9 * time.Millisecond})
	w.RunTick(time.Now())

	require.Equal(t, 1, w.Status().Population, "the most expensive mixer is evicted once the budget is exceeded")
	_, stillThere := idle.Take("expensive")
	assert.True(t, stillThere)
}

func TestWorkerSkipsErroringRunnableWithoutCrashing(t *testing.T) {
	idle := scheduler.NewIdleCollector()
	w := scheduler.NewWorker(0, scheduler.Config{LiveTracksPerThread: 16, WorkBudget: 18 * time.Millisecond}, idle)
	w.Accept(&fakeRunnable{id: "broken", live: true, err: errors.New("boom")})

	assert.NotPanics(t, func() { w.RunTick(time.Now()) })
}
