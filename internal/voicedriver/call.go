package voicedriver

import (
	"fmt"
	"time"

	"github.com/Raikerian/voxd/internal/voicedriver/codec"
	"github.com/Raikerian/voxd/internal/voicedriver/input"
	"github.com/Raikerian/voxd/internal/voicedriver/mixer"
	"github.com/Raikerian/voxd/internal/voicedriver/track"
)

// trackSource adapts a Track plus its Input into the mixer.Source view a
// Mixer tick needs, applying volume before summing (§4.3 step 3b).
type trackSource struct {
	t       *track.Track
	pcm     input.PCM
	opus    input.Opus
	scratch []float32

	// starvingLimit is the bounded WouldBlock window of §4.1 ("a track
	// that keeps returning WouldBlock is paused"); 0 disables the check.
	starvingLimit int
	starvingCount int
}

func newTrackSource(t *track.Track, pcm input.PCM, opus input.Opus, starvingLimit int) *trackSource {
	return &trackSource{
		t:             t,
		pcm:           pcm,
		opus:          opus,
		scratch:       make([]float32, codec.FrameSamples*codec.Channels),
		starvingLimit: starvingLimit,
	}
}

// NextPCM implements mixer.Source.
func (s *trackSource) NextPCM() ([]int16, bool) {
	if !s.t.IsPlaying() || s.pcm == nil {
		return nil, false
	}
	status := s.pcm.ReadPCM(s.scratch)
	switch status {
	case input.StatusFrame:
		s.starvingCount = 0
		s.t.AdvancePosition(time.Duration(codec.FrameDurationMS) * time.Millisecond)
		vol := s.t.Volume()
		samples := codec.Float32ToPCMInt16(applyVolume(s.scratch, vol))
		return samples, true
	case input.StatusEOF:
		s.handleEOF(s.pcm)
		return nil, false
	case input.StatusWouldBlock:
		s.noteStarving()
		return nil, false
	default: // Error: treated as silence for this tick (§4.1)
		return nil, false
	}
}

// OpusPassthrough implements mixer.Source.
func (s *trackSource) OpusPassthrough() ([]byte, bool) {
	if !s.t.IsPlaying() || s.opus == nil || s.t.Volume() != 1.0 {
		return nil, false
	}
	frame, samples, status := s.opus.NextOpusFrame()
	switch status {
	case input.StatusFrame:
		s.starvingCount = 0
		s.t.AdvancePosition(time.Duration(samples) * time.Second / codec.SampleRate)
		return frame, true
	case input.StatusEOF:
		s.handleEOF(s.opus)
		return nil, false
	case input.StatusWouldBlock:
		s.noteStarving()
		return nil, false
	default: // Error: treated as silence for this tick (§4.1)
		return nil, false
	}
}

// handleEOF applies the Loop policy when an Input reports Eof (§4.2, §8
// "Finite(n) emits TrackLoop exactly n times, then TrackEnd"): Loop
// decides whether to end or continue, and a continuing loop seeks the
// Input back to the start so the next tick reads from position zero
// rather than repeating Eof. Unseekable inputs can never be replayed
// (§4.1 "unseekable inputs MUST refuse seeks"), so they always end.
func (s *trackSource) handleEOF(seeker input.Seeker) {
	if !seeker.IsSeekable() {
		s.t.End()
		return
	}
	s.t.Loop()
	if s.t.State() == track.StateEnded {
		return
	}
	if err := seeker.Seek(0); err != nil {
		s.t.End()
	}
}

// noteStarving counts consecutive WouldBlock reads and pauses the track
// once the streak exceeds starvingLimit (§4.1's bounded starving
// window), so a source that stalls indefinitely stops occupying a live
// mixing slot instead of silently consuming ticks forever.
func (s *trackSource) noteStarving() {
	if s.starvingLimit <= 0 {
		return
	}
	s.starvingCount++
	if s.starvingCount > s.starvingLimit {
		s.starvingCount = 0
		_ = s.t.Handle().Pause()
	}
}

func applyVolume(samples []float32, vol float32) []float32 {
	if vol == 1.0 {
		return samples
	}
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = s * vol
	}
	return out
}

// runnable adapts one guild's call to scheduler.Runnable, the unit the
// Scheduler's Worker Threads drive every 20ms tick (§4.4, §5: "Mixer
// instances are never shared across threads"). It holds no state of its
// own beyond the call it wraps, since call.sources is guarded by call.mu.
type runnable struct {
	c *call
}

// ID implements scheduler.Runnable.
func (r *runnable) ID() string { return fmt.Sprintf("guild-%d", r.c.guildID) }

// Tick implements scheduler.Runnable: it is the Worker-tick body of §4.4
// ("mix + encode + encrypt ... into packet-buffer arena ... send all
// packets ... run per-track message side effects") scoped to one call.
func (r *runnable) Tick(now time.Time) (live bool, cost time.Duration, err error) {
	start := time.Now()
	r.c.mu.Lock()
	defer r.c.mu.Unlock()

	for _, t := range r.c.tracks {
		t.DrainCommands()
	}

	srcs := make([]mixer.Source, 0, len(r.c.sources))
	anyPlaying := false
	for id, t := range r.c.tracks {
		if t.IsPlaying() {
			anyPlaying = true
		}
		if src, ok := r.c.sources[id]; ok {
			srcs = append(srcs, src)
		}
	}

	result, err := r.c.mx.Tick(srcs)
	if err != nil {
		return anyPlaying, time.Since(start), err
	}
	if result.Packet != nil && r.c.udp != nil {
		_ = r.c.udp.Send(result.Packet) // a send failure is logged and counted, never fatal for one tick (§4.3 step 7)
	}
	if r.c.router != nil {
		r.c.router.Step()
	}

	return anyPlaying, time.Since(start), nil
}
