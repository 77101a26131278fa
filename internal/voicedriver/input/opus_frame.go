package input

import (
	"fmt"

	"github.com/Raikerian/voxd/internal/voicedriver/codec"
)

// ErrUnsupportedFrameDuration is returned by NewOpusFrameInput when a
// frame's sample count does not correspond to the fixed 20ms tick the
// Mixer advances RTP timestamps by (§9 Open Question: "passthrough
// increments the RTP timestamp by the standard 960 regardless of the
// source frame's actual duration ... SHOULD validate frame duration at
// Input construction and reject mismatches"). voxd resolves this by
// rejecting any non-20ms source up front instead of silently misaligning
// the receiver's clock.
var ErrUnsupportedFrameDuration = fmt.Errorf("input: opus frames must be %dms (%d samples) to match the Mixer tick", codec.FrameDurationMS, codec.FrameSamples)

// PreEncodedFrame is one Opus-encoded frame with its declared sample
// count, as produced by an upstream decoder/demuxer.
type PreEncodedFrame struct {
	Data    []byte
	Samples int
}

// OpusFrameInput is an Opus Input backed by a pre-built list of frames
// (e.g. from a file already demuxed off the deadline path by the
// workerpool). It implements passthrough-eligibility by construction:
// every frame is validated to be exactly one Mixer tick long.
type OpusFrameInput struct {
	frames []PreEncodedFrame
	pos    int
}

// NewOpusFrameInput validates every frame declares codec.FrameSamples
// samples (20ms at 48kHz) before accepting the source, resolving the Open
// Question above at construction time rather than per-tick.
func NewOpusFrameInput(frames []PreEncodedFrame) (*OpusFrameInput, error) {
	for i, f := range frames {
		if f.Samples != codec.FrameSamples {
			return nil, fmt.Errorf("input: frame %d has %d samples: %w", i, f.Samples, ErrUnsupportedFrameDuration)
		}
	}
	return &OpusFrameInput{frames: frames}, nil
}

// NextOpusFrame returns the next frame, advancing the cursor.
func (o *OpusFrameInput) NextOpusFrame() ([]byte, int, Status) {
	if o.pos >= len(o.frames) {
		return nil, 0, StatusEOF
	}
	f := o.frames[o.pos]
	o.pos++
	return f.Data, f.Samples, StatusFrame
}

// IsSeekable reports true: seeking just repositions the frame cursor.
func (o *OpusFrameInput) IsSeekable() bool { return true }

// Seek repositions by tick count (targetSamples / codec.FrameSamples),
// matching the whole-frame granularity of this source.
func (o *OpusFrameInput) Seek(targetSamples int64) error {
	idx := targetSamples / int64(codec.FrameSamples)
	if idx < 0 {
		idx = 0
	}
	if idx > int64(len(o.frames)) {
		idx = int64(len(o.frames))
	}
	o.pos = int(idx)
	return nil
}

// RemainingFrameCount reports how many frames are left before Eof; only
// the package's tests call it.
func (o *OpusFrameInput) RemainingFrameCount() int { return len(o.frames) - o.pos }
