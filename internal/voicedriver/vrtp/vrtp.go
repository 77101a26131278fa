// Package vrtp builds and parses the fixed-shape RTP header Discord voice
// uses (§6 "RTP"): version 2, payload type 120, 12-byte header, no
// extensions or CSRCs. It is a thin wrapper over github.com/pion/rtp so the
// Mixer and receive path don't hand-pack header bytes.
package vrtp

import (
	"fmt"

	"github.com/pion/rtp"
)

// PayloadType is Discord voice's fixed RTP payload type (§6).
const PayloadType = 120

// HeaderSize is the marshaled size of the fixed 12-byte header (no CSRCs,
// no extension) used as the AEAD associated nonce material in seal.Mode
// ModeXChaCha20Poly1305RTPSize.
const HeaderSize = 12

// Header is the subset of RTP header fields the Mixer advances every tick
// (§3 "Mixer": "RTP sequence number, RTP timestamp").
type Header struct {
	Marker      bool
	PayloadType uint8
	Sequence    uint16
	Timestamp   uint32
	SSRC        uint32
}

// Marshal packs h into the fixed 12-byte Discord RTP header. PayloadType
// defaults to the standard voice payload type (120) when left zero.
func (h Header) Marshal() ([]byte, error) {
	pt := h.PayloadType
	if pt == 0 {
		pt = PayloadType
	}
	pkt := rtp.Header{
		Version:        2,
		Marker:         h.Marker,
		PayloadType:    pt,
		SequenceNumber: h.Sequence,
		Timestamp:      h.Timestamp,
		SSRC:           h.SSRC,
	}
	buf, err := pkt.Marshal()
	if err != nil {
		return nil, fmt.Errorf("vrtp: marshal header: %w", err)
	}
	if len(buf) != HeaderSize {
		// No extensions/CSRCs are set above, so this should be unreachable;
		// guard it anyway since the nonce schemes depend on exactly 12 bytes.
		return nil, fmt.Errorf("vrtp: unexpected header size %d", len(buf))
	}
	return buf, nil
}

// ParseHeader extracts sequence/timestamp/SSRC/payload-type from a raw
// packet's leading bytes, returning the header byte count consumed.
func ParseHeader(buf []byte) (Header, int, error) {
	var pkt rtp.Header
	n, err := pkt.Unmarshal(buf)
	if err != nil {
		return Header{}, 0, fmt.Errorf("vrtp: unmarshal header: %w", err)
	}
	if pkt.Version != 2 {
		return Header{}, 0, fmt.Errorf("vrtp: unsupported version %d", pkt.Version)
	}
	return Header{
		Marker:      pkt.Marker,
		PayloadType: pkt.PayloadType,
		Sequence:    pkt.SequenceNumber,
		Timestamp:   pkt.Timestamp,
		SSRC:        pkt.SSRC,
	}, n, nil
}

// IsVoicePayload reports whether pt is the payload type this driver
// understands (§4.6 step 1: "ignore unknown payload types").
func IsVoicePayload(pt uint8) bool {
	return pt == PayloadType
}
