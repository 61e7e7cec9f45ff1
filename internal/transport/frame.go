package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Engine.IO v4 packet types.
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
	engineNoop    = '6'
)

// Socket.IO v5 packet types, carried inside an engine message.
const (
	socketConnect      = '0'
	socketDisconnect   = '1'
	socketEvent        = '2'
	socketConnectError = '4'
)

type frameKind int

const (
	frameOpen frameKind = iota
	frameClose
	framePing
	framePong
	frameNoop
	frameConnect
	frameDisconnect
	frameEvent
	frameConnectError
)

// frame is a decoded text frame.
type frame struct {
	kind    frameKind
	event   string          // frameEvent only
	payload json.RawMessage // event payload, open handshake or error body
}

// openPayload is the Engine.IO handshake body.
type openPayload struct {
	SID          string `json:"sid"`
	PingInterval int64  `json:"pingInterval"` // ms
	PingTimeout  int64  `json:"pingTimeout"`  // ms
}

// connectErrorPayload is the body of a rejected namespace connect.
type connectErrorPayload struct {
	Message string `json:"message"`
}

var (
	pongFrame       = []byte{enginePong}
	connectFrame    = []byte{engineMessage, socketConnect}
	disconnectFrame = []byte{engineMessage, socketDisconnect}
)

// encodeEvent renders `42["name",payload]`.
func encodeEvent(event string, payload any) ([]byte, error) {
	args := []any{event}
	if payload != nil {
		args = append(args, payload)
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", event, err)
	}
	out := make([]byte, 0, len(body)+2)
	out = append(out, engineMessage, socketEvent)
	return append(out, body...), nil
}

// decodeFrame parses one text frame.
func decodeFrame(msg []byte) (frame, error) {
	if len(msg) == 0 {
		return frame{}, fmt.Errorf("empty frame")
	}

	switch msg[0] {
	case engineOpen:
		return frame{kind: frameOpen, payload: json.RawMessage(msg[1:])}, nil
	case engineClose:
		return frame{kind: frameClose}, nil
	case enginePing:
		return frame{kind: framePing}, nil
	case enginePong:
		return frame{kind: framePong}, nil
	case engineNoop:
		return frame{kind: frameNoop}, nil
	case engineMessage:
		return decodeSocketPacket(msg[1:])
	default:
		return frame{}, fmt.Errorf("unknown engine packet type %q", msg[0])
	}
}

func decodeSocketPacket(msg []byte) (frame, error) {
	if len(msg) == 0 {
		return frame{}, fmt.Errorf("empty socket packet")
	}

	kind := msg[0]
	body := skipNamespace(msg[1:])

	switch kind {
	case socketConnect:
		return frame{kind: frameConnect, payload: json.RawMessage(body)}, nil
	case socketDisconnect:
		return frame{kind: frameDisconnect}, nil
	case socketConnectError:
		return frame{kind: frameConnectError, payload: json.RawMessage(body)}, nil
	case socketEvent:
		body = skipAckID(body)
		var args []json.RawMessage
		if err := json.Unmarshal(body, &args); err != nil {
			return frame{}, fmt.Errorf("unmarshal event args: %w", err)
		}
		if len(args) == 0 {
			return frame{}, fmt.Errorf("event packet without name")
		}
		var name string
		if err := json.Unmarshal(args[0], &name); err != nil {
			return frame{}, fmt.Errorf("unmarshal event name: %w", err)
		}
		f := frame{kind: frameEvent, event: name}
		if len(args) > 1 {
			f.payload = args[1]
		}
		return f, nil
	default:
		return frame{}, fmt.Errorf("unsupported socket packet type %q", kind)
	}
}

// skipNamespace drops a leading "/nsp," prefix.
func skipNamespace(b []byte) []byte {
	if len(b) == 0 || b[0] != '/' {
		return b
	}
	if i := bytes.IndexByte(b, ','); i >= 0 {
		return b[i+1:]
	}
	return b[len(b):]
}

// skipAckID drops the numeric ack id preceding event arguments.
func skipAckID(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}
	return b[i:]
}
