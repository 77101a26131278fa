// Package codec wraps Opus encode/decode for the mixer's hot path, adapted
// from the teacher's pkg/audio.AudioProcessor but fixed to the driver's own
// format: 48kHz stereo float32 PCM in, Opus frames out, one 20ms frame at a
// time (§4.1's "48 kHz stereo" invariant).
package codec

import (
	"fmt"
	"sync"

	"layeh.com/gopus"
)

const (
	// SampleRate is the fixed Discord voice clock (§6 "RTP").
	SampleRate = 48_000
	// Channels is always stereo on the wire.
	Channels = 2
	// FrameSamples is 20ms of audio at SampleRate, per channel.
	FrameSamples = 960
	// FrameDurationMS documents the fixed tick length (§3, §4.3).
	FrameDurationMS = 20

	// MaxFrameBytes bounds a single compressed Opus frame; gopus requires a
	// destination buffer sized up front.
	MaxFrameBytes = 4000
)

// SilenceFrame is the Opus frame payload (§8 boundary property) sent as the
// five-frame silence tail after a call stops speaking.
var SilenceFrame = []byte{0xF8, 0xFF, 0xFE}

// Encoder turns one 20ms stereo PCM frame into an Opus frame.
type Encoder struct {
	mu  sync.Mutex
	enc *gopus.Encoder
}

// NewEncoder creates an Opus encoder tuned for voice at the given bitrate.
func NewEncoder(bitrate int) (*Encoder, error) {
	enc, err := gopus.NewEncoder(SampleRate, Channels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("codec: new opus encoder: %w", err)
	}
	if bitrate > 0 {
		enc.SetBitrate(bitrate)
	}
	return &Encoder{enc: enc}, nil
}

// Encode compresses exactly one 960-sample-per-channel interleaved stereo
// frame. len(pcm) must be FrameSamples*Channels.
func (e *Encoder) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != FrameSamples*Channels {
		return nil, fmt.Errorf("codec: encode expects %d samples, got %d", FrameSamples*Channels, len(pcm))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out, err := e.enc.Encode(pcm, FrameSamples, MaxFrameBytes)
	if err != nil {
		return nil, fmt.Errorf("codec: opus encode: %w", err)
	}
	return out, nil
}

// Decoder turns Opus frames back into stereo PCM, maintaining per-stream
// state (packet-loss concealment history) across calls — one Decoder per
// SsrcState (§3).
type Decoder struct {
	mu  sync.Mutex
	dec *gopus.Decoder
}

// NewDecoder creates a per-SSRC Opus decoder.
func NewDecoder() (*Decoder, error) {
	dec, err := gopus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("codec: new opus decoder: %w", err)
	}
	return &Decoder{dec: dec}, nil
}

// Decode expands one Opus frame to interleaved stereo int16 PCM. A nil opus
// slice asks the decoder for packet-loss concealment (PLC) — used when the
// jitter buffer reports a missed sequence (§4.6 step 4).
func (d *Decoder) Decode(opus []byte) ([]int16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	plc := opus == nil
	pcm, err := d.dec.Decode(opus, FrameSamples, plc)
	if err != nil {
		return nil, fmt.Errorf("codec: opus decode: %w", err)
	}
	return pcm, nil
}

// PCMInt16ToFloat32 converts interleaved int16 PCM to normalized float32,
// the format the Mixer's scratch buffer sums in.
func PCMInt16ToFloat32(src []int16) []float32 {
	dst := make([]float32, len(src))
	for i, s := range src {
		dst[i] = float32(s) / 32768.0
	}
	return dst
}

// Float32ToPCMInt16 converts normalized float32 back to interleaved int16
// PCM, clamping to the valid range (called after soft-clip already bounded
// the signal to [-1, 1], so clamping here is a safety net, not the limiter).
func Float32ToPCMInt16(src []float32) []int16 {
	dst := make([]int16, len(src))
	for i, s := range src {
		scaled := s * 32767
		switch {
		case scaled > 32767:
			scaled = 32767
		case scaled < -32768:
			scaled = -32768
		}
		dst[i] = int16(scaled)
	}
	return dst
}
