package audio

import (
	"bytes"
	"encoding/binary"
	"math"
)

// PCMInt16ToLE converts int16 samples to raw little-endian bytes.
func PCMInt16ToLE(samples []int16) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}

// LEToPCMInt16 converts raw little-endian bytes back to int16 samples.
func LEToPCMInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	_ = binary.Read(bytes.NewReader(b), binary.LittleEndian, &out)
	return out
}

// DecodeFloat32LE fills dst from a raw little-endian float32 byte stream,
// the Mixer scratch-buffer sibling of LEToPCMInt16 used by
// voicedriver/input.ReaderPCM to decode stereo float32 PCM inputs.
// Trailing bytes too short for a full sample are treated as silence.
func DecodeFloat32LE(buf []byte, dst []float32) {
	for i := range dst {
		if (i+1)*4 > len(buf) {
			dst[i] = 0
			continue
		}
		bits := binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
		dst[i] = math.Float32frombits(bits)
	}
}

// EncodeFloat32LE is the inverse of DecodeFloat32LE.
func EncodeFloat32LE(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return buf
}
