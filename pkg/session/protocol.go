// Package session implements the session-control wire protocol used between
// the coordinator and interactive sandbox sessions. Output travels in binary
// frames tagged with one leading stream byte; control messages (resize,
// signal, exit, error, eof) travel as JSON text frames on the same
// connection. Frame type tells the two apart; content sniffing is limited to
// one JSON parse attempt with a raw-bytes fallback.
package session

import (
	"encoding/json"
	"fmt"
)

// Stream identifies the logical output stream of a binary frame.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Leading stream bytes on binary frames.
const (
	streamByteStdout byte = 0x01
	streamByteStderr byte = 0x02
)

// ControlType enumerates the JSON control messages.
type ControlType string

const (
	ControlResize ControlType = "resize"
	ControlSignal ControlType = "signal"
	ControlExit   ControlType = "exit"
	ControlError  ControlType = "error"
	ControlEOF    ControlType = "eof"
)

// Control is one control message. Only the fields for its Type are set.
type Control struct {
	Type ControlType `json:"type"`

	// resize
	Cols int `json:"cols,omitempty"`
	Rows int `json:"rows,omitempty"`

	// signal
	Signal string `json:"signal,omitempty"`

	// exit
	ExitCode int `json:"exit_code,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// Frame is one decoded inbound frame: either an output chunk or a control
// message, never both.
type Frame struct {
	Stream  Stream
	Data    []byte
	Control *Control
}

// EncodeOutput builds the binary frame payload for an output chunk.
func EncodeOutput(stream Stream, data []byte) []byte {
	prefix := streamByteStdout
	if stream == StreamStderr {
		prefix = streamByteStderr
	}
	out := make([]byte, 0, len(data)+1)
	out = append(out, prefix)
	return append(out, data...)
}

// DecodeBinary decodes a binary frame payload. A recognized leading stream
// byte tags the rest; anything else is raw stdout output in full.
func DecodeBinary(payload []byte) Frame {
	if len(payload) > 0 {
		switch payload[0] {
		case streamByteStdout:
			return Frame{Stream: StreamStdout, Data: payload[1:]}
		case streamByteStderr:
			return Frame{Stream: StreamStderr, Data: payload[1:]}
		}
	}
	return Frame{Stream: StreamStdout, Data: payload}
}

// EncodeControl builds the text frame payload for a control message.
func EncodeControl(ctl Control) ([]byte, error) {
	if ctl.Type == "" {
		return nil, fmt.Errorf("control message has no type")
	}
	data, err := json.Marshal(ctl)
	if err != nil {
		return nil, fmt.Errorf("encoding %s control: %w", ctl.Type, err)
	}
	return data, nil
}

// DecodeText decodes a text frame payload: one JSON parse attempt, raw
// stdout bytes on failure or on a JSON value that is not a control message.
func DecodeText(payload []byte) Frame {
	var ctl Control
	if err := json.Unmarshal(payload, &ctl); err == nil && ctl.Type != "" {
		return Frame{Control: &ctl}
	}
	return Frame{Stream: StreamStdout, Data: payload}
}
