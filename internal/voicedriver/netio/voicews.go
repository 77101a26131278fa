package netio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// VoiceWS wraps the gorilla/websocket connection to a voice endpoint,
// speaking Payload frames only (§6 "Voice WebSocket").
type VoiceWS struct {
	conn *websocket.Conn
}

// DialVoiceWS opens the WS connection to a voice endpoint (§4.5
// "Handshaking: open WS to voice endpoint").
func DialVoiceWS(ctx context.Context, endpoint string) (*VoiceWS, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("netio: dial voice ws: %w", err)
	}
	return &VoiceWS{conn: conn}, nil
}

// Send writes one opcode payload.
func (v *VoiceWS) Send(op Opcode, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("netio: marshal payload: %w", err)
	}
	frame := Payload{Op: op, Data: raw}
	return v.conn.WriteJSON(frame)
}

// Receive blocks for the next frame.
func (v *VoiceWS) Receive() (Payload, error) {
	var p Payload
	if err := v.conn.ReadJSON(&p); err != nil {
		return Payload{}, fmt.Errorf("netio: read voice ws: %w", err)
	}
	return p, nil
}

// Close closes the underlying connection.
func (v *VoiceWS) Close() error {
	return v.conn.Close()
}

// CloseCode extracts the close code from a gorilla/websocket close error,
// used by connfsm to decide resumable vs non-resumable (§4.5, §6).
func CloseCode(err error) (int, bool) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, true
	}
	return 0, false
}
