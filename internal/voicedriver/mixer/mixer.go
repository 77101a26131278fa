// Package mixer implements the per-call Mixer pipeline of §3-§5: one 20ms
// tick sums every live track's PCM (or passes a lone Opus track straight
// through), soft-clips, encodes, seals, and hands the wire packet to the
// transport. A Mixer is owned by exactly one Worker Thread at a time
// (§5 "Mixer instances are never shared across threads").
package mixer

import (
	"fmt"

	"github.com/Raikerian/voxd/internal/voicedriver/codec"
	"github.com/Raikerian/voxd/internal/voicedriver/seal"
	"github.com/Raikerian/voxd/internal/voicedriver/vrtp"
)

// Source is the minimal view a Mixer needs of one active track per tick.
// voicedriver's trackSource (call.go) adapts a track.Track to this; Mixer never reaches back
// into Track internals directly, matching the teacher's "mixer only talks
// to a narrow stream view" shape (internal/voice/audio_mixer.go's
// userStream).
type Source interface {
	// NextPCM returns one tick's interleaved stereo samples
	// (codec.FrameSamples*codec.Channels of them) and whether the track
	// produced audio this tick. ok=false means silence/exhausted for now.
	NextPCM() (samples []int16, ok bool)
	// OpusPassthrough returns a pre-encoded Opus frame for this tick when
	// the track's source is already Opus at the matching frame size
	// (§3 "passthrough"), skipping decode+re-encode entirely.
	OpusPassthrough() (frame []byte, ok bool)
}

// Encoder is the Opus encoding step the mix stage needs. codec.Encoder
// satisfies this; tests substitute a fake to avoid depending on the real
// Opus codec for pure pipeline-logic assertions.
type Encoder interface {
	Encode(pcm []int16) ([]byte, error)
}

// Config carries the subset of config.VoiceConfig a Mixer's tick needs.
type Config struct {
	Softclip                   bool
	MixAndReencodeWhenOneTrack bool
	Bitrate                    int
}

// Result is what one Tick produces.
type Result struct {
	// Packet is the full wire payload: RTP header + sealed Opus payload.
	// Nil when the tick produced silence and the 5-silence-frame budget
	// (§3 "silence-frame policy") has already been spent.
	Packet []byte
	// Silence reports whether this tick had no active audio.
	Silence bool
}

// Mixer advances one call's RTP/Opus/seal state by one 20ms tick.
type Mixer struct {
	cfg     Config
	enc     Encoder
	sealer  *seal.Sealer
	ssrc    uint32
	seq     uint16
	ts      uint32
	marker  bool // set on the first packet after a silence gap, per RTP convention
	silentN int  // consecutive silent ticks already emitted as real silence frames
}

// silenceFrameBudget is how many consecutive silence frames are sent
// before the Mixer stops sending anything at all for this call, matching
// Discord's expectation of an explicit end to a talk spurt.
const silenceFrameBudget = 5

// New builds a Mixer for one call. ssrc is this driver's own outbound
// SSRC, negotiated during Ready (§4.5).
func New(cfg Config, enc Encoder, sealer *seal.Sealer, ssrc uint32) *Mixer {
	return &Mixer{cfg: cfg, enc: enc, sealer: sealer, ssrc: ssrc, marker: true}
}

// Tick runs one pipeline pass over the currently live sources.
func (m *Mixer) Tick(sources []Source) (Result, error) {
	payload, silence, err := m.buildPayload(sources)
	if err != nil {
		return Result{}, err
	}

	if silence {
		m.silentN++
		if m.silentN > silenceFrameBudget {
			m.marker = true // next real packet re-sets the marker bit
			return Result{Silence: true}, nil
		}
		payload = codec.SilenceFrame
	} else {
		m.silentN = 0
	}

	header := vrtp.Header{Marker: m.marker, Sequence: m.seq, Timestamp: m.ts, SSRC: m.ssrc}
	m.marker = false
	headerBytes, err := header.Marshal()
	if err != nil {
		return Result{}, fmt.Errorf("mixer: marshal header: %w", err)
	}

	sealed, err := m.sealer.Seal(headerBytes, payload)
	if err != nil {
		return Result{}, fmt.Errorf("mixer: seal: %w", err)
	}

	m.seq++
	m.ts += codec.FrameSamples

	return Result{Packet: append(headerBytes, sealed...), Silence: silence}, nil
}

// buildPayload runs the source->sum->soft-clip->encode stage,
// or the passthrough shortcut when exactly one track qualifies (§3).
func (m *Mixer) buildPayload(sources []Source) (payload []byte, silence bool, err error) {
	if len(sources) == 0 {
		return nil, true, nil
	}

	if len(sources) == 1 && !m.cfg.MixAndReencodeWhenOneTrack {
		if frame, ok := sources[0].OpusPassthrough(); ok {
			return frame, false, nil
		}
	}

	const frameLen = codec.FrameSamples * codec.Channels
	sum := make([]float32, frameLen)
	active := false
	for _, src := range sources {
		samples, ok := src.NextPCM()
		if !ok {
			continue
		}
		active = true
		floats := codec.PCMInt16ToFloat32(samples)
		n := len(floats)
		if n > frameLen {
			n = frameLen
		}
		for i := 0; i < n; i++ {
			sum[i] += floats[i]
		}
	}
	if !active {
		return nil, true, nil
	}

	if m.cfg.Softclip {
		sum = SoftClip(sum)
	}

	pcm := codec.Float32ToPCMInt16(sum)
	encoded, err := m.enc.Encode(pcm)
	if err != nil {
		return nil, false, fmt.Errorf("mixer: encode: %w", err)
	}
	return encoded, false, nil
}
