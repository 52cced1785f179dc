package server

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// websocketMagic is the GUID appended to the client key when computing
// the handshake accept value (RFC 6455 §1.3).
const websocketMagic = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// WebSocket opcodes.
const (
	opcodeContinuation = 0x0
	opcodeText         = 0x1
	opcodeBinary       = 0x2
	opcodeClose        = 0x8
	opcodePing         = 0x9
	opcodePong         = 0xA
)

var errFrameTooLarge = errors.New("websocket frame too large")

// maxInboundPayload bounds client frames; the reload channel only ever
// carries short text messages in either direction.
const maxInboundPayload = 1 << 20

// ComputeAcceptKey derives the Sec-WebSocket-Accept value from the
// client's Sec-WebSocket-Key.
func ComputeAcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + websocketMagic))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// HandshakeResponse builds the 101 Switching Protocols response for an
// upgrade request. It returns ("", false) when the request carries no
// Sec-WebSocket-Key, which means "not a WebSocket request", not an error.
func HandshakeResponse(req *Request) (string, bool) {
	key := req.Header("sec-websocket-key")
	if key == "" {
		return "", false
	}
	return fmt.Sprintf(
		"HTTP/1.1 101 Switching Protocols\r\n"+
			"Upgrade: websocket\r\n"+
			"Connection: Upgrade\r\n"+
			"Sec-WebSocket-Accept: %s\r\n\r\n",
		ComputeAcceptKey(key)), true
}

// BuildTextFrame builds a single unmasked FIN text frame, the only kind
// the server sends. Payload length uses the 7/16/64-bit scheme.
func BuildTextFrame(message string) []byte {
	payload := []byte(message)
	length := len(payload)

	frame := make([]byte, 0, length+10)
	frame = append(frame, 0x80|opcodeText) // FIN + text

	switch {
	case length <= 125:
		frame = append(frame, byte(length))
	case length <= 65535:
		frame = append(frame, 126)
		frame = binary.BigEndian.AppendUint16(frame, uint16(length))
	default:
		frame = append(frame, 127)
		frame = binary.BigEndian.AppendUint64(frame, uint64(length))
	}

	return append(frame, payload...)
}

// Frame is one parsed inbound WebSocket frame.
type Frame struct {
	Fin     bool
	Opcode  byte
	Payload []byte
}

// ReadFrame parses one client frame from the reader, unmasking the
// payload. Malformed length encodings and mid-frame EOF are returned as
// errors; the caller treats them as end of connection.
func ReadFrame(r *bufio.Reader) (Frame, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}

	fin := header[0]&0x80 != 0
	opcode := header[0] & 0x0F
	masked := header[1]&0x80 != 0
	length := uint64(header[1] & 0x7F)

	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, err
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, err
		}
		length = binary.BigEndian.Uint64(ext[:])
	}

	if length > maxInboundPayload {
		return Frame{}, errFrameTooLarge
	}

	var mask [4]byte
	if masked {
		if _, err := io.ReadFull(r, mask[:]); err != nil {
			return Frame{}, err
		}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, err
	}

	if masked {
		for i := range payload {
			payload[i] ^= mask[i%4]
		}
	}

	return Frame{Fin: fin, Opcode: opcode, Payload: payload}, nil
}

// BuildPongFrame builds a pong carrying the ping's payload back.
func BuildPongFrame(payload []byte) []byte {
	if len(payload) > 125 {
		payload = payload[:125] // control frame payloads are capped
	}
	frame := make([]byte, 0, len(payload)+2)
	frame = append(frame, 0x80|opcodePong, byte(len(payload)))
	return append(frame, payload...)
}

// BuildCloseFrame builds an empty close frame.
func BuildCloseFrame() []byte {
	return []byte{0x80 | opcodeClose, 0}
}
