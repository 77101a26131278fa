// Package scheduler implements the two-tier Scheduler of §4.4: an Idle
// Collector parks Mixers with no live tracks, and a dynamic pool of
// Worker Threads drives live Mixers on an absolute 20ms deadline with no
// cumulative drift. Nothing in this corpus implements an equivalent
// deadline scheduler, so this package is built from spec §4.4/§5 directly
// using channels and time.After timers rather than a third-party scheduler
// library (see DESIGN.md).
package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Runnable is whatever a Worker drives once per tick. The mixer package's
// Mixer (paired with its Track set) implements this through an adapter the
// Driver wires up; Scheduler itself stays mixer-agnostic.
type Runnable interface {
	ID() string
	// Tick runs one 20ms pass. live reports whether this Runnable still
	// has at least one Playing track (§4.4 "Demotion ... zero Play tracks
	// AND no pending commands"); cost is how long the tick's work half
	// took, used for overload eviction.
	Tick(now time.Time) (live bool, cost time.Duration, err error)
}

// Config carries the tunables §4.4 names.
type Config struct {
	LiveTracksPerThread int
	CostCeiling         time.Duration // max last-tick cost a worker may accept a promotion at
	WorkBudget          time.Duration // soft 18ms budget before overload eviction (§4.4)
}

// IdleCollector parks Runnables with no live tracks until Take removes one
// so the Driver can move it back onto a Worker (§4.4 "Idle -> Worker").
type IdleCollector struct {
	mu     sync.Mutex
	parked map[string]Runnable
}

// NewIdleCollector creates an empty collector.
func NewIdleCollector() *IdleCollector {
	return &IdleCollector{parked: make(map[string]Runnable)}
}

// Park adds r to the idle set (§4.4 "Worker -> Idle").
func (c *IdleCollector) Park(r Runnable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parked[r.ID()] = r
}

// Take removes and returns r by id, for handing to a worker on promotion.
func (c *IdleCollector) Take(id string) (Runnable, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.parked[id]
	if ok {
		delete(c.parked, id)
	}
	return r, ok
}

// Len reports how many Runnables are currently parked.
func (c *IdleCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.parked)
}

// WorkerStatus is a worker's population/cost snapshot, enough for the
// Scheduler to pick a promotion target without reaching into Worker
// internals (§4.4 "the first worker whose current population <
// live_tracks_per_thread and whose last-tick cost < configured cost
// ceiling").
type WorkerStatus struct {
	ID         int
	Population int
	LastCost   time.Duration
}

// ChoosePromotionTarget implements §4.4's promotion rule as a pure
// function over worker snapshots, so it is testable without running real
// workers. Returns -1 if a new worker must be created.
func ChoosePromotionTarget(workers []WorkerStatus, cfg Config) int {
	sorted := append([]WorkerStatus(nil), workers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, w := range sorted {
		if w.Population < cfg.LiveTracksPerThread && w.LastCost < cfg.CostCeiling {
			return w.ID
		}
	}
	return -1
}

// ChooseEvictionTarget implements §4.4's overload rule: when a worker's
// total tick cost exceeds cfg.WorkBudget, the Runnable with the highest
// observed mix cost is evicted back to the Idle task, at most once per
// tick. Returns "" if no eviction is warranted.
func ChooseEvictionTarget(totalCost time.Duration, costs map[string]time.Duration, cfg Config) string {
	if totalCost <= cfg.WorkBudget || len(costs) == 0 {
		return ""
	}
	var worstID string
	var worst time.Duration
	for id, c := range costs {
		if c > worst {
			worst = c
			worstID = id
		}
	}
	return worstID
}

// Worker drives a set of live Runnables on a fixed 20ms cadence (§4.4
// "Worker tick"). Each Worker owns its Runnables single-threadedly;
// Mixers are never shared across Workers (§5).
type Worker struct {
	id  int
	cfg Config

	mu       sync.Mutex
	mixers   map[string]Runnable
	lastCost map[string]time.Duration

	idle     *IdleCollector
	incoming chan Runnable
	stop     chan struct{}
	stopped  chan struct{}
}

// NewWorker creates a Worker that parks demoted Runnables on idle.
func NewWorker(id int, cfg Config, idle *IdleCollector) *Worker {
	return &Worker{
		id:       id,
		cfg:      cfg,
		mixers:   make(map[string]Runnable),
		lastCost: make(map[string]time.Duration),
		idle:     idle,
		incoming: make(chan Runnable, 16),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Status returns the worker's current population/cost snapshot.
func (w *Worker) Status() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	var maxCost time.Duration
	for _, c := range w.lastCost {
		if c > maxCost {
			maxCost = c
		}
	}
	return WorkerStatus{ID: w.id, Population: len(w.mixers), LastCost: maxCost}
}

// Accept queues r to join this worker at the start of its next tick
// (§4.4 "handle idle->live transitions").
func (w *Worker) Accept(r Runnable) {
	w.incoming <- r
}

// RunTick executes exactly one worker tick's mix/evict/demote sequence
// against the wall-clock instant now, matching §4.4's pseudocode order
// (idle transitions, drain, mix, then post-tick bookkeeping).
func (w *Worker) RunTick(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

drain:
	for {
		select {
		case r := <-w.incoming:
			w.mixers[r.ID()] = r
		default:
			break drain
		}
	}

	var total time.Duration
	costs := make(map[string]time.Duration, len(w.mixers))
	var toDemote []string

	for id, r := range w.mixers {
		live, cost, err := r.Tick(now)
		if err != nil {
			continue
		}
		costs[id] = cost
		w.lastCost[id] = cost
		total += cost
		if !live {
			toDemote = append(toDemote, id)
		}
	}

	for _, id := range toDemote {
		if r, ok := w.mixers[id]; ok {
			delete(w.mixers, id)
			delete(w.lastCost, id)
			w.idle.Park(r)
		}
	}

	if evictID := ChooseEvictionTarget(total, costs, w.cfg); evictID != "" {
		if r, ok := w.mixers[evictID]; ok {
			delete(w.mixers, evictID)
			delete(w.lastCost, evictID)
			w.idle.Park(r)
		}
	}
}

// Run drives RunTick on an absolute 20ms deadline schedule until Stop is
// called. Missed deadlines are never merged (§5: "ticks are never
// merged"); RunTick still runs once per elapsed interval.
func (w *Worker) Run(tickInterval time.Duration) {
	defer close(w.stopped)
	next := time.Now()
	for {
		select {
		case <-w.stop:
			return
		default:
		}
		next = next.Add(tickInterval)
		w.RunTick(time.Now())
		sleep := time.Until(next)
		if sleep > 0 {
			select {
			case <-time.After(sleep):
			case <-w.stop:
				return
			}
		}
	}
}

// Stop halts Run and waits for it to return.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.stopped
}
