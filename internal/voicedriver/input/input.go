// Package input implements the Audio Input contract of §4.1: a source
// delivers 48kHz stereo float PCM or whole Opus frames on demand, never
// blocking on the Mixer's deadline path. Anything that can block (opening
// a file, parsing headers) happens either before the track joins the
// Mixer or through the Thread Pool (workerpool package), with the Mixer
// treating the track as silent (WouldBlock) until it completes.
package input

import (
	"errors"
	"io"
)

// Status is the outcome of one read attempt (§4.1).
type Status int

const (
	StatusFrame Status = iota
	StatusEOF
	StatusWouldBlock
	StatusError
)

// ErrUnseekable is returned by Seek on an Input whose IsSeekable is false
// (§4.1 "unseekable inputs MUST refuse seeks").
var ErrUnseekable = errors.New("input: source does not support seeking")

// PCM is the Input variant that yields raw stereo float32 samples, one
// Mixer tick (960 stereo samples at 48kHz) per ReadPCM call.
type PCM interface {
	// ReadPCM fills dst (len == codec.FrameSamples*codec.Channels) and
	// reports how the read went. On StatusFrame, dst is fully populated.
	ReadPCM(dst []float32) Status
	Seeker
}

// Opus is the Input variant that yields whole Opus frames, enabling the
// Mixer's passthrough optimization (§4.3 step 3a) when it is the sole
// active Play track at volume 1.0.
type Opus interface {
	// NextOpusFrame returns one encoded frame and its sample count, or a
	// Status other than StatusFrame.
	NextOpusFrame() ([]byte, int, Status)
	Seeker
}

// Seeker is implemented by every Input, seekable or not (§4.1
// "is_seekable(): static property").
type Seeker interface {
	IsSeekable() bool
	// Seek repositions to targetSamples. Returns ErrUnseekable if
	// IsSeekable() is false.
	Seek(targetSamples int64) error
}

// Lazy describes an Input that must be created off the audio deadline path
// (§4.1 "create() -> Live Input for Lazy inputs; may block and must be
// called off the audio deadline path"), e.g. opening a file or starting a
// decode pipeline. Driver.prepareTrack runs Create on the Thread Pool
// (workerpool package) before marking the track Playable; the returned
// Live value is not handed to the Mixer, which keeps reading the track's
// original source.
type Lazy interface {
	Create() (Live, error)
}

// Live is whatever a Lazy Input produces once created: either a PCM or an
// Opus source.
type Live interface{}

// statusFromReadErr adapts an io.Reader-backed PCM/Opus source's terminal error
// into a Status without discarding the underlying error for logging.
func statusFromReadErr(err error) (Status, error) {
	if err == nil {
		return StatusFrame, nil
	}
	if errors.Is(err, io.EOF) {
		return StatusEOF, nil
	}
	return StatusError, err
}
