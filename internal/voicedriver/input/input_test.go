package input_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/Raikerian/voxd/internal/voicedriver/codec"
	"github.com/Raikerian/voxd/internal/voicedriver/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpusFrameInputRejectsWrongDuration(t *testing.T) {
	_, err := input.NewOpusFrameInput([]input.PreEncodedFrame{
		{Data: []byte("x"), Samples: 480}, // 10ms, not 20ms
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, input.ErrUnsupportedFrameDuration)
}

func TestNewOpusFrameInputAcceptsCorrectDuration(t *testing.T) {
	in, err := input.NewOpusFrameInput([]input.PreEncodedFrame{
		{Data: []byte("frame-a"), Samples: codec.FrameSamples},
		{Data: []byte("frame-b"), Samples: codec.FrameSamples},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, in.RemainingFrameCount())
}

func TestOpusFrameInputYieldsInOrderThenEOF(t *testing.T) {
	in, err := input.NewOpusFrameInput([]input.PreEncodedFrame{
		{Data: []byte("a"), Samples: codec.FrameSamples},
		{Data: []byte("b"), Samples: codec.FrameSamples},
	})
	require.NoError(t, err)

	data, samples, status := in.NextOpusFrame()
	require.Equal(t, input.StatusFrame, status)
	assert.Equal(t, []byte("a"), data)
	assert.Equal(t, codec.FrameSamples, samples)

	_, _, status = in.NextOpusFrame()
	assert.Equal(t, input.StatusFrame, status)

	_, _, status = in.NextOpusFrame()
	assert.Equal(t, input.StatusEOF, status)
}

func TestOpusFrameInputSeekRepositionsCursor(t *testing.T) {
	in, err := input.NewOpusFrameInput([]input.PreEncodedFrame{
		{Data: []byte("a"), Samples: codec.FrameSamples},
		{Data: []byte("b"), Samples: codec.FrameSamples},
		{Data: []byte("c"), Samples: codec.FrameSamples},
	})
	require.NoError(t, err)

	require.NoError(t, in.Seek(2*codec.FrameSamples))
	data, _, status := in.NextOpusFrame()
	require.Equal(t, input.StatusFrame, status)
	assert.Equal(t, []byte("c"), data)
}

func floatBytes(samples []float32) []byte {
	buf := new(bytes.Buffer)
	for _, s := range samples {
		_ = binary.Write(buf, binary.LittleEndian, math.Float32bits(s))
	}
	return buf.Bytes()
}

func TestReaderPCMReadsFullFrame(t *testing.T) {
	frameLen := codec.FrameSamples * codec.Channels
	samples := make([]float32, frameLen)
	for i := range samples {
		samples[i] = 0.25
	}
	r := bytes.NewReader(floatBytes(samples))
	pcm := input.NewReaderPCM(r)

	dst := make([]float32, frameLen)
	status := pcm.ReadPCM(dst)
	assert.Equal(t, input.StatusFrame, status)
	assert.Equal(t, samples, dst)
}

func TestReaderPCMReportsEOFWhenExhausted(t *testing.T) {
	r := bytes.NewReader(nil)
	pcm := input.NewReaderPCM(r)
	dst := make([]float32, codec.FrameSamples*codec.Channels)
	assert.Equal(t, input.StatusEOF, pcm.ReadPCM(dst))
}

func TestReaderPCMSeekableOnBytesReader(t *testing.T) {
	r := bytes.NewReader(nil) // bytes.Reader does implement io.Seeker...
	pcm := input.NewReaderPCM(r)
	assert.True(t, pcm.IsSeekable(), "bytes.Reader satisfies io.Seeker so this source is seekable")
}

type nonSeekingReader struct{ r *bytes.Reader }

func (n *nonSeekingReader) Read(p []byte) (int, error) { return n.r.Read(p) }

func TestReaderPCMUnseekableWhenUnderlyingReaderIsNotASeeker(t *testing.T) {
	pcm := input.NewReaderPCM(&nonSeekingReader{r: bytes.NewReader(nil)})
	assert.False(t, pcm.IsSeekable())
	assert.ErrorIs(t, pcm.Seek(100), input.ErrUnseekable)
}
