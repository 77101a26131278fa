// Package track implements the Track state machine and Track Handle of
// §4.2: public operations are message-passing only (never shared mutable
// state with the Mixer), mirroring the teacher's session_manager.go
// pattern of a mutex-guarded map reached only through narrow accessor
// methods, generalized here to a command channel instead of a mutex since
// the Mixer must never block on a Track (§4.1 "the audio deadline path
// must never block").
package track

import (
	"fmt"
	"time"

	"github.com/Raikerian/voxd/internal/voicedriver/events"
)

// State is one node of the Preparing -> Playable <-> Paused <-> Playing ->
// {Ended | Errored} machine (§4.2).
type State int

const (
	StatePreparing State = iota
	StatePlayable
	StatePaused
	StatePlaying
	StateEnded
	StateErrored
)

func (s State) String() string {
	switch s {
	case StatePreparing:
		return "preparing"
	case StatePlayable:
		return "playable"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	case StateEnded:
		return "ended"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// LoopPolicy controls what happens when a track reaches its end.
type LoopPolicy int

const (
	LoopNone LoopPolicy = iota
	LoopInfinite
	LoopCount
)

// Snapshot is the immutable view returned by GetView (§4.2 "get_view ->
// snapshot"). Actions are assembled against a Snapshot so a caller's seek
// or pre-load is ordered consistently with the state the caller observed,
// without a round trip back through the Mixer first (§4.2 "Action
// Protocol").
type Snapshot struct {
	State      State
	Position   time.Duration
	Volume     float32
	Loops      LoopPolicy
	LoopsLeft  int
	LastError  error
	generation uint64
}

// ActionKind enumerates the composite commands a Snapshot can produce.
type ActionKind int

const (
	ActionPlay ActionKind = iota
	ActionPause
	ActionStop
	ActionSetVolume
	ActionSeek
	ActionSetLoops
	ActionMakePlayable
)

// Action is a command built from a Snapshot and submitted back to the
// Track's command channel. Carrying the Snapshot's generation lets the
// Track detect and reject a stale Action whose state has since moved on.
type Action struct {
	Kind      ActionKind
	Volume    float32
	SeekTo    time.Duration
	Loops     LoopPolicy
	LoopCount int

	generation uint64
}

// NewAction builds an Action from a Snapshot (§4.2 "Action Protocol").
func (s Snapshot) NewAction(kind ActionKind) Action {
	return Action{Kind: kind, generation: s.generation}
}

// errStaleAction describes an Action whose Snapshot generation has been
// superseded. Nothing returns it: Handle.Submit queues every Action and
// apply drops stale ones silently.
type errStaleAction struct{ kind ActionKind }

func (e *errStaleAction) Error() string {
	return fmt.Sprintf("track: action %d submitted against a stale snapshot", e.kind)
}

// Handle is the public, message-passing-only surface a caller (the Driver,
// or user code) uses to control a Track (§4.2). It never reaches into
// Track internals directly.
type Handle struct {
	t *Track
}

// Play requests a transition into Playing.
func (h Handle) Play() error { return h.t.submit(Action{Kind: ActionPlay, generation: h.t.generation()}) }

// Pause requests a transition into Paused.
func (h Handle) Pause() error {
	return h.t.submit(Action{Kind: ActionPause, generation: h.t.generation()})
}

// Stop requests a transition into Ended.
func (h Handle) Stop() error { return h.t.submit(Action{Kind: ActionStop, generation: h.t.generation()}) }

// SetVolume requests a volume change, applied before the next mixed tick.
func (h Handle) SetVolume(v float32) error {
	return h.t.submit(Action{Kind: ActionSetVolume, Volume: v, generation: h.t.generation()})
}

// Seek sets the track's reported position to d. The Input itself is not
// seeked, so audio continues from where the Input already is.
func (h Handle) Seek(d time.Duration) error {
	return h.t.submit(Action{Kind: ActionSeek, SeekTo: d, generation: h.t.generation()})
}

// SetLoops changes the loop policy.
func (h Handle) SetLoops(policy LoopPolicy, count int) error {
	return h.t.submit(Action{Kind: ActionSetLoops, Loops: policy, LoopCount: count, generation: h.t.generation()})
}

// MakePlayable queues a command that moves a Preparing track to Playable
// when the command queue is next drained (§4.2 "make_playable"). It does
// not parse headers or touch the Input, and it does not block.
func (h Handle) MakePlayable() error {
	return h.t.submit(Action{Kind: ActionMakePlayable, generation: h.t.generation()})
}

// GetView returns the current Snapshot.
func (h Handle) GetView() Snapshot { return h.t.snapshot() }

// AddEvent subscribes a handler to one of this track's event kinds
// (TrackStart, TrackEnd, TrackLoop, TrackError, Playable).
func (h Handle) AddEvent(kind events.Kind, fn events.Handler) events.Subscription {
	return h.t.events.On(kind, fn)
}

// Submit pushes a pre-built Action (from a Snapshot obtained earlier)
// straight onto the command queue. A stale Action is still queued and is
// dropped silently when the queue is drained.
func (h Handle) Submit(a Action) error { return h.t.submit(a) }

// Track owns the Preparing->...->{Ended|Errored} state machine for one
// audio source. It is driven exclusively by its owning Mixer/worker
// thread; Handle is the only way anything else touches it.
type Track struct {
	events *events.Store

	state     State
	position  time.Duration
	volume    float32
	loops     LoopPolicy
	loopsLeft int
	lastErr   error
	gen       uint64

	commands chan Action
}

// New creates a Track in StatePreparing with volume 1.0.
func New() *Track {
	return &Track{
		events:   events.New(),
		state:    StatePreparing,
		volume:   1.0,
		commands: make(chan Action, 32),
	}
}

// Handle returns the public control surface for this Track.
func (t *Track) Handle() Handle { return Handle{t: t} }

func (t *Track) generation() uint64 { return t.gen }

func (t *Track) snapshot() Snapshot {
	return Snapshot{
		State:      t.state,
		Position:   t.position,
		Volume:     t.volume,
		Loops:      t.loops,
		LoopsLeft:  t.loopsLeft,
		LastError:  t.lastErr,
		generation: t.gen,
	}
}

func (t *Track) submit(a Action) error {
	select {
	case t.commands <- a:
		return nil
	default:
		return fmt.Errorf("track: command queue full")
	}
}

// DrainCommands applies every pending Action synchronously, to be called
// once per Mixer tick (§4.3 step 1: "Drain inbound command queue (bounded,
// non-blocking)"). It never blocks.
func (t *Track) DrainCommands() {
	for {
		select {
		case a := <-t.commands:
			t.apply(a)
		default:
			return
		}
	}
}

func (t *Track) apply(a Action) {
	if a.generation != 0 && a.generation != t.gen {
		return // stale Action against a superseded Snapshot
	}
	switch a.Kind {
	case ActionPlay:
		t.transitionToPlaying()
	case ActionPause:
		t.transitionToPaused()
	case ActionStop:
		t.transitionToEnded()
	case ActionSetVolume:
		t.volume = a.Volume
	case ActionSeek:
		t.position = a.SeekTo
	case ActionSetLoops:
		t.loops = a.Loops
		t.loopsLeft = a.LoopCount
	case ActionMakePlayable:
		t.transitionToPlayable()
	}
}

func (t *Track) bump() { t.gen++ }

// MarkPlayable transitions Preparing -> Playable once headers are parsed
// and the codec identified (§4.2). Called by the Thread Pool's worker,
// not the Mixer, since header parsing may block (§4.1, §4.9).
func (t *Track) MarkPlayable() {
	if t.state != StatePreparing {
		return
	}
	t.state = StatePlayable
	t.bump()
	t.events.Fire(events.KindPlayable, nil)
}

func (t *Track) transitionToPlayable() {
	if t.state == StatePreparing {
		t.MarkPlayable()
	}
}

func (t *Track) transitionToPlaying() {
	switch t.state {
	case StatePlayable, StatePaused:
		wasPaused := t.state == StatePaused
		t.state = StatePlaying
		t.bump()
		if !wasPaused {
			t.events.Fire(events.KindTrackStart, nil)
		}
	}
}

func (t *Track) transitionToPaused() {
	if t.state == StatePlaying {
		t.state = StatePaused
		t.bump()
	}
}

// End transitions this Track to Ended and fires TrackEnd, called by the
// Mixer when the Input reports Eof (§4.1, §4.3 step 9).
func (t *Track) End() {
	if t.state == StateEnded || t.state == StateErrored {
		return
	}
	t.state = StateEnded
	t.bump()
	t.events.Fire(events.KindTrackEnd, nil)
}

func (t *Track) transitionToEnded() { t.End() }

// Loop is called by the Mixer when Eof is reached (§4.2). If the loop
// policy allows another pass it resets position to zero and fires
// TrackLoop; otherwise it ends the track.
func (t *Track) Loop() {
	if t.loops == LoopNone {
		t.End()
		return
	}
	if t.loops == LoopCount {
		if t.loopsLeft <= 0 {
			t.End()
			return
		}
		t.loopsLeft--
	}
	t.position = 0
	t.events.Fire(events.KindTrackLoop, nil)
}

// Fail transitions this Track to Errored (§4.2 "* -> Errored: unrecoverable
// input failure; triggers TrackError event; handle remains valid but is
// inert").
func (t *Track) Fail(err error) {
	t.lastErr = err
	t.state = StateErrored
	t.bump()
	t.events.Fire(events.KindTrackError, err)
}

// IsPlaying reports whether the Mixer should be pulling PCM/Opus from this
// track's Input this tick (§4.3 step 3: "For each Play track").
func (t *Track) IsPlaying() bool { return t.state == StatePlaying }

// State returns the current machine state.
func (t *Track) State() State { return t.state }

// Volume returns the current mix volume, applied by the Mixer per §4.3
// step 3b ("Apply volume; sum into the Mixer's float scratch buffer").
func (t *Track) Volume() float32 { return t.volume }

// AdvancePosition is called by the Mixer after it pulls one tick of audio
// from this Track's Input, so position-crossing events (§4.3 step 9) stay
// accurate without the Track reaching into the Input itself.
func (t *Track) AdvancePosition(d time.Duration) { t.position += d }

// Events exposes the per-track event store so the Mixer can dispatch
// Track-kind events it owns the timing of (TrackEnd/TrackLoop ordering,
// §4.7).
func (t *Track) Events() *events.Store { return t.events }
