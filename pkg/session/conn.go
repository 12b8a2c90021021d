package session

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn carries the session protocol over one websocket connection. Writes
// are serialized; gorilla allows at most one concurrent writer.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// NewConn wraps an established websocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// SendOutput sends one output chunk on the given stream.
func (c *Conn) SendOutput(stream Stream, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, EncodeOutput(stream, data)); err != nil {
		return fmt.Errorf("writing %s frame: %w", stream, err)
	}
	return nil
}

// SendControl sends one control message.
func (c *Conn) SendControl(ctl Control) error {
	payload, err := EncodeControl(ctl)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("writing %s control: %w", ctl.Type, err)
	}
	return nil
}

// Next blocks for the next frame. Binary frames decode by stream byte, text
// frames by the control parse with raw fallback. Ping/pong never surface
// here; gorilla handles them inside ReadMessage.
func (c *Conn) Next() (Frame, error) {
	for {
		msgType, payload, err := c.ws.ReadMessage()
		if err != nil {
			return Frame{}, fmt.Errorf("reading session frame: %w", err)
		}
		switch msgType {
		case websocket.BinaryMessage:
			return DecodeBinary(payload), nil
		case websocket.TextMessage:
			return DecodeText(payload), nil
		default:
			continue
		}
	}
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	if err := c.ws.Close(); err != nil {
		return fmt.Errorf("closing session connection: %w", err)
	}
	return nil
}
