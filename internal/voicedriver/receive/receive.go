// Package receive implements the optional receive path of §4.6: demux
// inbound UDP by SSRC, open each packet, feed it into a per-SSRC jitter
// buffer, and step playout once per Mixer tick into a decoded VoiceTick.
package receive

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Raikerian/voxd/internal/voicedriver/codec"
	"github.com/Raikerian/voxd/internal/voicedriver/events"
	"github.com/Raikerian/voxd/internal/voicedriver/jitter"
	"github.com/Raikerian/voxd/internal/voicedriver/seal"
	"github.com/Raikerian/voxd/internal/voicedriver/vrtp"
)

// RtpPacketEvent is the events.KindRtpPacket payload: enough of the parsed
// header for a handler to inspect without re-parsing the wire packet.
type RtpPacketEvent struct {
	SSRC      uint32
	Sequence  uint16
	Timestamp uint32
}

// VoiceTick is emitted once per SsrcState per playout step that yielded a
// packet or a missed slot; steps with nothing to play emit none (§4.7
// "Core: ... VoiceTick").
type VoiceTick struct {
	SSRC      uint32
	UserID    uint64
	Sequence  uint16
	Timestamp uint32
	PCM       []int16 // nil if receive-decode is disabled or decoding failed; PLC output when Missed
	Missed    bool
}

// Config carries the §6 receive-path tunables.
type Config struct {
	PlayoutBufferLength int
	PlayoutSpikeLength  int
	SilenceTimeoutTicks int
	DecodeEnabled       bool
	// SsrcUserCacheSize bounds the SSRC->UserID lookup cache (repurposing
	// golang-lru/v2, the teacher's generic LRU dependency, for this
	// receive-path role since the teacher itself never needed an SSRC
	// cache — see DESIGN.md).
	SsrcUserCacheSize int
}

type ssrcState struct {
	buffer  *jitter.Buffer
	decoder *codec.Decoder
}

// Router demuxes inbound packets by SSRC and drives each one's playout
// step (§4.6 steps 3-5).
type Router struct {
	mu     sync.Mutex
	cfg    Config
	sealer *seal.Sealer
	states map[uint32]*ssrcState
	users  *lru.Cache[uint32, uint64]

	// Events, when set, is fired with KindRtpPacket on every accepted
	// inbound datagram and KindVoiceTick for every VoiceTick Step returns (§4.7
	// "Core: ... RtpPacket, VoiceTick"). Left nil, firing is skipped.
	Events *events.Store
}

// NewRouter builds a Router sharing one Sealer (the call's SessionKeys).
func NewRouter(cfg Config, sealer *seal.Sealer) (*Router, error) {
	size := cfg.SsrcUserCacheSize
	if size < 1 {
		size = 256
	}
	cache, err := lru.New[uint32, uint64](size)
	if err != nil {
		return nil, fmt.Errorf("receive: new ssrc->user cache: %w", err)
	}
	return &Router{cfg: cfg, sealer: sealer, states: make(map[uint32]*ssrcState), users: cache}, nil
}

// BindUser associates an SSRC with the speaking user, learned from a
// SpeakingStateUpdate event on the WS task.
func (r *Router) BindUser(ssrc uint32, userID uint64) {
	r.users.Add(ssrc, userID)
}

// HandlePacket parses, opens, and enqueues one inbound UDP datagram
// (§4.6 steps 1-3).
func (r *Router) HandlePacket(buf []byte) error {
	header, n, err := vrtp.ParseHeader(buf)
	if err != nil {
		return fmt.Errorf("receive: parse header: %w", err)
	}
	if !vrtp.IsVoicePayload(header.PayloadType) {
		return nil // §4.6 step 1: "ignore unknown payload types"
	}

	headerBytes := buf[:n]
	opened, err := r.sealer.Open(headerBytes, buf[n:])
	if err != nil {
		return fmt.Errorf("receive: open: %w", err)
	}

	r.mu.Lock()
	state, ok := r.states[header.SSRC]
	if !ok {
		state = &ssrcState{buffer: jitter.New(r.cfg.PlayoutBufferLength, r.cfg.PlayoutSpikeLength)}
		if r.cfg.DecodeEnabled {
			dec, derr := codec.NewDecoder()
			if derr == nil {
				state.decoder = dec
			}
		}
		r.states[header.SSRC] = state
	}
	r.mu.Unlock()

	state.buffer.Insert(jitter.Packet{Sequence: header.Sequence, Timestamp: header.Timestamp, Payload: opened})
	if r.Events != nil {
		r.Events.Fire(events.KindRtpPacket, RtpPacketEvent{SSRC: header.SSRC, Sequence: header.Sequence, Timestamp: header.Timestamp})
	}
	return nil
}

// Step runs one playout step for every tracked SSRC (§4.6 step 4,
// triggered by the Mixer's tick) and prunes any that have gone silent
// long enough (§4.6 step 5).
func (r *Router) Step() []VoiceTick {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticks := make([]VoiceTick, 0, len(r.states))
	for ssrc, state := range r.states {
		step := state.buffer.Step()
		switch step.Kind {
		case jitter.StepPacket:
			userID, _ := r.users.Get(ssrc)
			tick := VoiceTick{SSRC: ssrc, UserID: userID, Sequence: step.PerSeq, Timestamp: step.Packet.Timestamp}
			if state.decoder != nil {
				if pcm, err := state.decoder.Decode(step.Packet.Payload); err == nil {
					tick.PCM = pcm
				}
			}
			ticks = append(ticks, tick)
		case jitter.StepMissing:
			tick := VoiceTick{SSRC: ssrc, Sequence: step.PerSeq, Missed: true}
			if state.decoder != nil {
				if pcm, err := state.decoder.Decode(nil); err == nil {
					tick.PCM = pcm // PLC concealment
				}
			}
			ticks = append(ticks, tick)
		}

		if state.buffer.Idle(r.cfg.SilenceTimeoutTicks) {
			delete(r.states, ssrc)
		}
	}

	if r.Events != nil {
		for _, tick := range ticks {
			r.Events.Fire(events.KindVoiceTick, tick)
		}
	}
	return ticks
}

// Len reports how many SSRCs are currently tracked, for tests/metrics.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}
