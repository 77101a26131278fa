// Package seal implements the three Discord voice encryption modes named in
// spec §6 ("Encryption modes"): the two legacy xsalsa20-poly1305 schemes
// (via golang.org/x/crypto/nacl/secretbox) and the current
// xchacha20_poly1305_rtpsize scheme (via golang.org/x/crypto/chacha20poly1305).
// Nothing here is SRTP in the RFC 3711 sense — Discord's "SRTP" is simply an
// AEAD seal of the RTP payload with a mode-specific nonce derivation — so
// this package does not depend on pion/srtp.
package seal

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/secretbox"
)

// Mode identifies a nonce-derivation + AEAD scheme.
type Mode int

const (
	// ModeXChaCha20Poly1305RTPSize derives its 24-byte nonce from the
	// 12-byte RTP header, zero-padded, and reuses it verbatim — no bytes
	// are appended to the wire payload.
	ModeXChaCha20Poly1305RTPSize Mode = iota
	// ModeXSalsa20Poly1305Lite derives its nonce from a 4-byte counter
	// incremented once per packet, zero-padded to 24 bytes, and appends
	// the 4-byte counter (not the full nonce) to the payload.
	ModeXSalsa20Poly1305Lite
	// ModeXSalsa20Poly1305Suffix uses a fresh random 24-byte nonce per
	// packet and appends the full nonce to the payload.
	ModeXSalsa20Poly1305Suffix
)

func (m Mode) String() string {
	switch m {
	case ModeXChaCha20Poly1305RTPSize:
		return "xchacha20_poly1305_rtpsize"
	case ModeXSalsa20Poly1305Lite:
		return "xsalsa20_poly1305_lite"
	case ModeXSalsa20Poly1305Suffix:
		return "xsalsa20_poly1305_suffix"
	default:
		return "unknown"
	}
}

const keySize = 32
const nonceSize = 24

// Sealer seals and opens packets for one SessionKeys. The Driver shares one
// Sealer between a call's Mixer (Seal) and its receive Router (Open). Seal
// advances the nonce counter and is not safe for concurrent use; Open reads
// only the mode and key.
type Sealer struct {
	mode    Mode
	key     [keySize]byte
	counter uint32 // incrementing-nonce scheme only

	// seen guards the §8 testable property ("for every Nonce, it is
	// unique per SessionKeys") — populated only when trackNonces is set,
	// since recording every nonce forever is a test-only concern.
	trackNonces bool
	seen        map[[nonceSize]byte]struct{}
	seenMu      sync.Mutex
}

// NewSealer builds a Sealer from the 32-byte secret key negotiated in
// SessionDescription (§4.5 "Ready").
func NewSealer(mode Mode, secretKey []byte) (*Sealer, error) {
	if len(secretKey) != keySize {
		return nil, fmt.Errorf("seal: secret key must be %d bytes, got %d", keySize, len(secretKey))
	}
	s := &Sealer{mode: mode}
	copy(s.key[:], secretKey)
	return s, nil
}

// EnableNonceTracking turns on the bookkeeping needed to assert nonce
// uniqueness in tests. Never enabled in production — it grows without
// bound for the life of a call.
func (s *Sealer) EnableNonceTracking() {
	s.trackNonces = true
	s.seen = make(map[[nonceSize]byte]struct{})
}

func (s *Sealer) recordNonce(nonce [nonceSize]byte) error {
	if !s.trackNonces {
		return nil
	}
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	if _, dup := s.seen[nonce]; dup {
		return fmt.Errorf("seal: nonce reuse detected for mode %s", s.mode)
	}
	s.seen[nonce] = struct{}{}
	return nil
}

// Seal encrypts payload (the Opus frame) and returns the bytes to append
// after the RTP header on the wire: ciphertext, plus any nonce suffix the
// mode requires.
func (s *Sealer) Seal(rtpHeader, payload []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	var suffix []byte

	switch s.mode {
	case ModeXChaCha20Poly1305RTPSize:
		copy(nonce[:], rtpHeader) // header is 12 bytes; remaining 12 stay zero
	case ModeXSalsa20Poly1305Lite:
		s.counter++
		binary.BigEndian.PutUint32(nonce[:4], s.counter)
		suffix = make([]byte, 4)
		binary.BigEndian.PutUint32(suffix, s.counter)
	case ModeXSalsa20Poly1305Suffix:
		if _, err := rand.Read(nonce[:]); err != nil {
			return nil, fmt.Errorf("seal: random nonce: %w", err)
		}
		suffix = append([]byte(nil), nonce[:]...)
	default:
		return nil, fmt.Errorf("seal: unknown mode %d", s.mode)
	}

	if err := s.recordNonce(nonce); err != nil {
		return nil, err
	}

	ciphertext, err := s.encrypt(nonce, payload)
	if err != nil {
		return nil, err
	}
	return append(ciphertext, suffix...), nil
}

func (s *Sealer) encrypt(nonce [nonceSize]byte, payload []byte) ([]byte, error) {
	switch s.mode {
	case ModeXChaCha20Poly1305RTPSize:
		aead, err := chacha20poly1305.NewX(s.key[:])
		if err != nil {
			return nil, fmt.Errorf("seal: chacha20poly1305: %w", err)
		}
		return aead.Seal(nil, nonce[:], payload, nil), nil
	case ModeXSalsa20Poly1305Lite, ModeXSalsa20Poly1305Suffix:
		return secretbox.Seal(nil, payload, &nonce, &s.key), nil
	default:
		return nil, fmt.Errorf("seal: unknown mode %d", s.mode)
	}
}

// Open reverses Seal: rtpHeader is the 12-byte RTP header already parsed
// from the packet, sealed is everything after it (ciphertext + any nonce
// suffix the mode appends).
func (s *Sealer) Open(rtpHeader, sealed []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	var ciphertext []byte

	switch s.mode {
	case ModeXChaCha20Poly1305RTPSize:
		copy(nonce[:], rtpHeader)
		ciphertext = sealed
	case ModeXSalsa20Poly1305Lite:
		if len(sealed) < 4 {
			return nil, fmt.Errorf("seal: truncated lite packet")
		}
		split := len(sealed) - 4
		copy(nonce[:4], sealed[split:])
		ciphertext = sealed[:split]
	case ModeXSalsa20Poly1305Suffix:
		if len(sealed) < nonceSize {
			return nil, fmt.Errorf("seal: truncated suffix packet")
		}
		split := len(sealed) - nonceSize
		copy(nonce[:], sealed[split:])
		ciphertext = sealed[:split]
	default:
		return nil, fmt.Errorf("seal: unknown mode %d", s.mode)
	}

	switch s.mode {
	case ModeXChaCha20Poly1305RTPSize:
		aead, err := chacha20poly1305.NewX(s.key[:])
		if err != nil {
			return nil, fmt.Errorf("seal: chacha20poly1305: %w", err)
		}
		plain, err := aead.Open(nil, nonce[:], ciphertext, nil)
		if err != nil {
			return nil, fmt.Errorf("seal: open failed: %w", err)
		}
		return plain, nil
	default:
		plain, ok := secretbox.Open(nil, ciphertext, &nonce, &s.key)
		if !ok {
			return nil, fmt.Errorf("seal: open failed")
		}
		return plain, nil
	}
}
