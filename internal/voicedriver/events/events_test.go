package events_test

import (
	"testing"
	"time"

	"github.com/Raikerian/voxd/internal/voicedriver/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFireOrderingIsInsertionOrder(t *testing.T) {
	store := events.New()
	var order []int

	store.On(events.KindTrackEnd, func(events.Event) events.Result {
		order = append(order, 1)
		return events.Continue
	})
	store.On(events.KindTrackEnd, func(events.Event) events.Result {
		order = append(order, 2)
		return events.Continue
	})

	store.Fire(events.KindTrackEnd, nil)
	require.Equal(t, []int{1, 2}, order)
}

func TestFireCancelRemovesHandler(t *testing.T) {
	store := events.New()
	calls := 0
	store.On(events.KindTrackLoop, func(events.Event) events.Result {
		calls++
		return events.Cancel
	})

	store.Fire(events.KindTrackLoop, nil)
	store.Fire(events.KindTrackLoop, nil)
	assert.Equal(t, 1, calls)
}

func TestPeriodicReArmsAtInterval(t *testing.T) {
	store := events.New()
	now := time.Unix(0, 0)
	fires := 0
	store.Periodic(now, 20*time.Millisecond, func(events.Event) events.Result {
		fires++
		return events.Continue
	})

	store.Tick(now.Add(10 * time.Millisecond))
	assert.Equal(t, 0, fires, "must not fire before its interval elapses")

	store.Tick(now.Add(20 * time.Millisecond))
	assert.Equal(t, 1, fires)

	store.Tick(now.Add(39 * time.Millisecond))
	assert.Equal(t, 1, fires, "re-armed deadline is 40ms, not 39ms")

	store.Tick(now.Add(40 * time.Millisecond))
	assert.Equal(t, 2, fires)
}

func TestDelayedFiresOnceThenDies(t *testing.T) {
	store := events.New()
	now := time.Unix(0, 0)
	fires := 0
	store.Delayed(now, 5*time.Millisecond, func(events.Event) events.Result {
		fires++
		return events.Continue
	})

	store.Tick(now.Add(5 * time.Millisecond))
	store.Tick(now.Add(50 * time.Millisecond))
	assert.Equal(t, 1, fires)
}

func TestRescheduleOverridesNextDeadline(t *testing.T) {
	store := events.New()
	now := time.Unix(0, 0)
	var fireTimes []time.Duration
	store.Delayed(now, 5*time.Millisecond, func(events.Event) events.Result {
		fireTimes = append(fireTimes, time.Duration(len(fireTimes)))
		return events.Result{Action: events.ActionReschedule, Delay: 15 * time.Millisecond}
	})

	store.Tick(now.Add(5 * time.Millisecond))
	require.Len(t, fireTimes, 1)

	store.Tick(now.Add(10 * time.Millisecond))
	assert.Len(t, fireTimes, 1, "rescheduled deadline is now+15ms from the first fire, not the original 5ms")

	store.Tick(now.Add(20 * time.Millisecond))
	assert.Len(t, fireTimes, 2)
}

func TestSubscriptionCancelStopsFutureFires(t *testing.T) {
	store := events.New()
	calls := 0
	sub := store.On(events.KindPlayable, func(events.Event) events.Result {
		calls++
		return events.Continue
	})

	store.Fire(events.KindPlayable, nil)
	sub.Cancel()
	store.Fire(events.KindPlayable, nil)
	assert.Equal(t, 1, calls)
}
