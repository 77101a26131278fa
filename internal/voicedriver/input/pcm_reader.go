package input

import (
	"io"

	"github.com/Raikerian/voxd/internal/voicedriver/codec"
	"github.com/Raikerian/voxd/pkg/audio"
)

// ReaderPCM is a PCM Input backed by a raw little-endian stereo float32
// stream, decoded with pkg/audio.DecodeFloat32LE — the generalization of
// the teacher's PCMInt16ToLE/LEToPCMInt16 helpers to the 32-bit float
// samples the Mixer's scratch buffer works in (§4.3 step 3b).
type ReaderPCM struct {
	r        io.Reader
	seekable bool
	seeker   io.Seeker
}

// NewReaderPCM wraps r. If r also implements io.Seeker, Seek targets its
// underlying stream; otherwise IsSeekable reports false and Seek always
// fails (§4.1 "unseekable inputs MUST refuse seeks").
func NewReaderPCM(r io.Reader) *ReaderPCM {
	seeker, ok := r.(io.Seeker)
	return &ReaderPCM{r: r, seekable: ok, seeker: seeker}
}

// ReadPCM reads one tick's worth of stereo float32 samples (§4.1).
func (p *ReaderPCM) ReadPCM(dst []float32) Status {
	buf := make([]byte, len(dst)*4)
	n, err := io.ReadFull(p.r, buf)
	switch {
	case err == nil:
		audio.DecodeFloat32LE(buf, dst)
		return StatusFrame
	case err == io.ErrUnexpectedEOF && n > 0:
		// Partial final frame: zero-pad the remainder as silence and
		// still surface a full frame this tick, then EOF next call.
		audio.DecodeFloat32LE(buf[:n], dst)
		for i := n / 4; i < len(dst); i++ {
			dst[i] = 0
		}
		return StatusFrame
	case err == io.EOF:
		return StatusEOF
	default:
		status, _ := statusFromReadErr(err)
		if status == StatusFrame {
			status = StatusError
		}
		return status
	}
}

// IsSeekable reports whether the wrapped reader supports seeking.
func (p *ReaderPCM) IsSeekable() bool { return p.seekable }

// Seek repositions the underlying stream to targetSamples stereo frames
// in, i.e. targetSamples*2*4 bytes (stereo float32).
func (p *ReaderPCM) Seek(targetSamples int64) error {
	if !p.seekable {
		return ErrUnseekable
	}
	offset := targetSamples * codec.Channels * 4
	_, err := p.seeker.Seek(offset, io.SeekStart)
	return err
}
