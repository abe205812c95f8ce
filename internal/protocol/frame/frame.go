package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/danmuck/superclient/internal/protocol"
)

// Wire layout, big-endian:
//
//	session_id  [8]byte   zero padded
//	ack         bool      1 byte
//	eom         bool      1 byte
//	remaining   uint16
//	length      uint16
//	content     [128]byte zero padded, utf-8
const (
	SessionIDLen = 8
	ContentLen   = 128
	Size         = SessionIDLen + 1 + 1 + 2 + 2 + ContentLen

	offAck       = SessionIDLen
	offEOM       = offAck + 1
	offRemaining = offEOM + 1
	offLength    = offRemaining + 2
	offContent   = offLength + 2
)

// Frame is one datagram on the unreliable channel.
//
// Length counts characters of Content, not bytes: a parity-coded character may
// need two utf-8 bytes, so a full 64 character fragment can occupy all 128
// content bytes.
type Frame struct {
	SessionID     string
	Ack           bool
	EndOfExchange bool
	Remaining     uint16
	Length        uint16
	Content       string
}

// Encode writes f into a fixed Size buffer. SessionID is truncated to at most
// SessionIDLen bytes on a character boundary; Content longer than ContentLen
// bytes is rejected.
func Encode(f Frame) ([]byte, error) {
	if len(f.Content) > ContentLen {
		return nil, fmt.Errorf("%w: content %d bytes, limit %d", protocol.ErrPayloadTooLarge, len(f.Content), ContentLen)
	}
	buf := make([]byte, Size)
	copy(buf[0:SessionIDLen], truncateBytes(f.SessionID, SessionIDLen))
	buf[offAck] = boolByte(f.Ack)
	buf[offEOM] = boolByte(f.EndOfExchange)
	binary.BigEndian.PutUint16(buf[offRemaining:offLength], f.Remaining)
	binary.BigEndian.PutUint16(buf[offLength:offContent], f.Length)
	copy(buf[offContent:], f.Content)
	return buf, nil
}

// Decode parses one datagram. Content is truncated to Length characters and
// the session id loses its zero padding.
//
// Content bytes that are not valid utf-8 decode as U+FFFD, one per bad byte.
// A bit flipped in transit is then left for the parity check to catch instead
// of failing the whole frame.
func Decode(b []byte) (Frame, error) {
	if len(b) != Size {
		return Frame{}, fmt.Errorf("%w: got %d bytes, want %d", protocol.ErrMalformedFrame, len(b), Size)
	}
	length := binary.BigEndian.Uint16(b[offLength:offContent])
	if length > ContentLen {
		return Frame{}, fmt.Errorf("%w: length %d exceeds content capacity", protocol.ErrMalformedFrame, length)
	}
	sid := b[0:SessionIDLen]
	if !utf8.Valid(sid) {
		return Frame{}, fmt.Errorf("%w: session id is not utf-8", protocol.ErrMalformedFrame)
	}
	content := b[offContent:]
	return Frame{
		SessionID:     string(bytes.TrimRight(sid, "\x00")),
		Ack:           b[offAck] != 0,
		EndOfExchange: b[offEOM] != 0,
		Remaining:     binary.BigEndian.Uint16(b[offRemaining:offLength]),
		Length:        length,
		Content:       truncateRunes(content, int(length)),
	}, nil
}

// truncateRunes decodes the first n characters of b. Zero bytes inside the
// first n characters are content (an XOR of equal characters is zero) and are
// kept.
func truncateRunes(b []byte, n int) string {
	out := make([]rune, 0, n)
	for i := 0; len(out) < n && i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		out = append(out, r)
		i += size
	}
	return string(out)
}

// truncateBytes cuts s to at most n bytes without splitting a character.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
