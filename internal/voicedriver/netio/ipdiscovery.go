package netio

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// ipDiscoveryPacketLen is the fixed 74-byte IP Discovery packet Discord's
// voice UDP protocol uses (§6 "IP Discovery").
const ipDiscoveryPacketLen = 74

const ipDiscoveryRequestType = 0x1
const ipDiscoveryResponseType = 0x2

// buildIPDiscoveryRequest packs the outbound 74-byte discovery packet.
func buildIPDiscoveryRequest(ssrc uint32) []byte {
	buf := make([]byte, ipDiscoveryPacketLen)
	binary.BigEndian.PutUint16(buf[0:2], ipDiscoveryRequestType)
	binary.BigEndian.PutUint16(buf[2:4], 70) // length field excludes the 4-byte header
	binary.BigEndian.PutUint32(buf[4:8], ssrc)
	return buf
}

// ParseIPDiscoveryResponse extracts the externally observed address:port
// from a 74-byte discovery response (§6).
func ParseIPDiscoveryResponse(buf []byte) (addr string, port uint16, err error) {
	if len(buf) != ipDiscoveryPacketLen {
		return "", 0, fmt.Errorf("netio: ip discovery response must be %d bytes, got %d", ipDiscoveryPacketLen, len(buf))
	}
	msgType := binary.BigEndian.Uint16(buf[0:2])
	if msgType != ipDiscoveryResponseType {
		return "", 0, fmt.Errorf("netio: unexpected ip discovery message type %d", msgType)
	}
	ipBytes := buf[8:72]
	nul := len(ipBytes)
	for i, b := range ipBytes {
		if b == 0 {
			nul = i
			break
		}
	}
	addr = string(ipBytes[:nul])
	port = binary.BigEndian.Uint16(buf[72:74])
	return addr, port, nil
}

// VoiceUDP wraps the UDP socket used for both RTP traffic and IP
// discovery against one voice server endpoint.
type VoiceUDP struct {
	conn *net.UDPConn
}

// DialVoiceUDP opens a UDP socket to ip:port (§4.5 "Discovering: UDP
// IP-discovery ping").
func DialVoiceUDP(ip string, port uint16) (*VoiceUDP, error) {
	raddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return nil, fmt.Errorf("netio: resolve voice udp addr: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("netio: dial voice udp: %w", err)
	}
	return &VoiceUDP{conn: conn}, nil
}

// Discover sends the IP discovery request and reads back this driver's
// externally observed address:port, with a bounded timeout so a dropped
// discovery packet surfaces as a FatalError rather than hanging forever.
func (u *VoiceUDP) Discover(ssrc uint32, timeout time.Duration) (addr string, port uint16, err error) {
	if err := u.conn.SetDeadline(timeNow().Add(timeout)); err != nil {
		return "", 0, fmt.Errorf("netio: set discovery deadline: %w", err)
	}
	defer u.conn.SetDeadline(time.Time{})

	if _, err := u.conn.Write(buildIPDiscoveryRequest(ssrc)); err != nil {
		return "", 0, fmt.Errorf("netio: send ip discovery: %w", err)
	}
	resp := make([]byte, ipDiscoveryPacketLen)
	n, err := u.conn.Read(resp)
	if err != nil {
		return "", 0, fmt.Errorf("netio: read ip discovery response: %w", err)
	}
	return ParseIPDiscoveryResponse(resp[:n])
}

// Send writes one RTP/sealed packet.
func (u *VoiceUDP) Send(packet []byte) error {
	_, err := u.conn.Write(packet)
	return err
}

// Read blocks for the next inbound UDP packet (receive path, §4.6).
func (u *VoiceUDP) Read(buf []byte) (int, error) {
	return u.conn.Read(buf)
}

// Close releases the socket.
func (u *VoiceUDP) Close() error { return u.conn.Close() }

var timeNow = time.Now
