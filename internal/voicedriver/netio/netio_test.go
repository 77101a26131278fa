package netio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAndParseIPDiscoveryRoundTrip(t *testing.T) {
	req := buildIPDiscoveryRequest(0xABCD1234)
	require.Len(t, req, ipDiscoveryPacketLen)

	// Synthesize a server response in the same wire shape, echoing an
	// address into the same IP field the real server would populate.
	resp := make([]byte, ipDiscoveryPacketLen)
	resp[0] = 0x00
	resp[1] = ipDiscoveryResponseType
	copy(resp[8:], "203.0.113.42")
	resp[72] = 0x1F
	resp[73] = 0x90 // 8080

	addr, port, err := ParseIPDiscoveryResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.42", addr)
	assert.Equal(t, uint16(8080), port)
}

func TestParseIPDiscoveryResponseRejectsWrongLength(t *testing.T) {
	_, _, err := ParseIPDiscoveryResponse(make([]byte, 10))
	assert.Error(t, err)
}

func TestParseIPDiscoveryResponseRejectsWrongMessageType(t *testing.T) {
	buf := make([]byte, ipDiscoveryPacketLen)
	buf[1] = ipDiscoveryRequestType // a request, not a response
	_, _, err := ParseIPDiscoveryResponse(buf)
	assert.Error(t, err)
}

func TestDiscoverTimesOutWithoutAResponder(t *testing.T) {
	u, err := DialVoiceUDP("127.0.0.1", 1) // nothing listens on port 1
	require.NoError(t, err)
	defer u.Close()

	_, _, err = u.Discover(1234, 50*time.Millisecond)
	assert.Error(t, err)
}
