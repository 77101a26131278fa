package seal_test

import (
	"crypto/rand"
	"testing"

	"github.com/Raikerian/voxd/internal/voicedriver/seal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestSealRoundTrip(t *testing.T) {
	header := []byte{0x80, 0x78, 0x00, 0x01, 0, 0, 0, 0, 0, 0, 0, 42}

	for _, mode := range []seal.Mode{
		seal.ModeXChaCha20Poly1305RTPSize,
		seal.ModeXSalsa20Poly1305Lite,
		seal.ModeXSalsa20Poly1305Suffix,
	} {
		t.Run(mode.String(), func(t *testing.T) {
			key := testKey(t)
			sealer, err := seal.NewSealer(mode, key)
			require.NoError(t, err)
			opener, err := seal.NewSealer(mode, key)
			require.NoError(t, err)

			payload := []byte("opus frame payload bytes")
			sealed, err := sealer.Seal(header, payload)
			require.NoError(t, err)

			opened, err := opener.Open(header, sealed)
			require.NoError(t, err)
			assert.Equal(t, payload, opened)
		})
	}
}

func TestSealNonceUniquenessAssertsPerSessionKeys(t *testing.T) {
	key := testKey(t)
	sealer, err := seal.NewSealer(seal.ModeXSalsa20Poly1305Lite, key)
	require.NoError(t, err)
	sealer.EnableNonceTracking()

	header := []byte{0x80, 0x78, 0x00, 0x01, 0, 0, 0, 0, 0, 0, 0, 42}
	for i := 0; i < 1000; i++ {
		_, err := sealer.Seal(header, []byte("x"))
		require.NoError(t, err, "nonce must stay unique across %d packets", i)
	}
}

func TestOpenRejectsCorruptedCiphertext(t *testing.T) {
	key := testKey(t)
	sealer, err := seal.NewSealer(seal.ModeXChaCha20Poly1305RTPSize, key)
	require.NoError(t, err)

	header := []byte{0x80, 0x78, 0x00, 0x01, 0, 0, 0, 0, 0, 0, 0, 42}
	sealed, err := sealer.Seal(header, []byte("opus"))
	require.NoError(t, err)
	sealed[0] ^= 0xFF

	_, err = sealer.Open(header, sealed)
	assert.Error(t, err)
}
