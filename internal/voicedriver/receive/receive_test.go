package receive_test

import (
	"testing"

	"github.com/Raikerian/voxd/internal/voicedriver/receive"
	"github.com/Raikerian/voxd/internal/voicedriver/seal"
	"github.com/Raikerian/voxd/internal/voicedriver/vrtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSealer(t *testing.T) *seal.Sealer {
	t.Helper()
	key := make([]byte, 32)
	s, err := seal.NewSealer(seal.ModeXChaCha20Poly1305RTPSize, key)
	require.NoError(t, err)
	return s
}

func sealedPacket(t *testing.T, sealer *seal.Sealer, seq uint16, ssrc uint32, payload []byte) []byte {
	t.Helper()
	header := vrtp.Header{PayloadType: vrtp.PayloadType, Sequence: seq, Timestamp: uint32(seq) * 960, SSRC: ssrc}
	headerBytes, err := header.Marshal()
	require.NoError(t, err)
	sealed, err := sealer.Seal(headerBytes, payload)
	require.NoError(t, err)
	return append(headerBytes, sealed...)
}

func TestRouterStepEmitsPacketOnceBufferWarms(t *testing.T) {
	sealer := testSealer(t)
	r, err := receive.NewRouter(receive.Config{PlayoutBufferLength: 1, PlayoutSpikeLength: 1}, sealer)
	require.NoError(t, err)

	require.NoError(t, r.HandlePacket(sealedPacket(t, sealer, 1, 555, []byte("opus"))))

	ticks := r.Step()
	require.Len(t, ticks, 1)
	assert.Equal(t, uint32(555), ticks[0].SSRC)
	assert.Equal(t, uint16(1), ticks[0].Sequence)
	assert.False(t, ticks[0].Missed)
}

func TestRouterBindUserAttachesUserIDToTick(t *testing.T) {
	sealer := testSealer(t)
	r, err := receive.NewRouter(receive.Config{PlayoutBufferLength: 1, PlayoutSpikeLength: 1}, sealer)
	require.NoError(t, err)

	r.BindUser(555, 9001)
	require.NoError(t, r.HandlePacket(sealedPacket(t, sealer, 1, 555, []byte("opus"))))

	ticks := r.Step()
	require.Len(t, ticks, 1)
	assert.Equal(t, uint64(9001), ticks[0].UserID)
}

func TestRouterDropsPacketWithBadSeal(t *testing.T) {
	sealer := testSealer(t)
	r, err := receive.NewRouter(receive.Config{PlayoutBufferLength: 1, PlayoutSpikeLength: 1}, sealer)
	require.NoError(t, err)

	packet := sealedPacket(t, sealer, 1, 555, []byte("opus"))
	packet[len(packet)-1] ^= 0xFF // corrupt the sealed payload
	assert.Error(t, r.HandlePacket(packet))
}

func TestRouterPrunesAfterSilenceTimeout(t *testing.T) {
	sealer := testSealer(t)
	r, err := receive.NewRouter(receive.Config{PlayoutBufferLength: 1, PlayoutSpikeLength: 1, SilenceTimeoutTicks: 2}, sealer)
	require.NoError(t, err)

	require.NoError(t, r.HandlePacket(sealedPacket(t, sealer, 1, 555, []byte("opus"))))
	r.Step() // consumes the one packet
	assert.Equal(t, 1, r.Len())

	r.Step() // silence tick 1
	r.Step() // silence tick 2, now idle -> pruned
	assert.Equal(t, 0, r.Len())
}

func TestRouterTracksMultipleSsrcsIndependently(t *testing.T) {
	sealer := testSealer(t)
	r, err := receive.NewRouter(receive.Config{PlayoutBufferLength: 1, PlayoutSpikeLength: 1}, sealer)
	require.NoError(t, err)

	require.NoError(t, r.HandlePacket(sealedPacket(t, sealer, 1, 100, []byte("a"))))
	require.NoError(t, r.HandlePacket(sealedPacket(t, sealer, 1, 200, []byte("b"))))
	assert.Equal(t, 2, r.Len())

	ticks := r.Step()
	assert.Len(t, ticks, 2)
}
