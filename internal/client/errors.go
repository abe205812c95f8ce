package client

import (
	"context"
	"errors"

	"github.com/danmuck/superclient/internal/protocol"
)

var (
	ErrInvalidArgs = errors.New("client: invalid arguments")
	ErrDatagram    = errors.New("client: datagram session failed")
)

// Usage is the positional argument synopsis.
const Usage = "superclient <server address> <server port> [options] [ansi]"

// Describe turns a run error into the one line shown to the user.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "Interrupted, connections closed."
	case errors.Is(err, context.DeadlineExceeded):
		return "Timed out waiting for the server."
	case errors.Is(err, ErrInvalidArgs):
		return "Invalid arguments! usage: " + Usage
	case errors.Is(err, protocol.ErrPayloadTooLarge):
		return "Message does not fit in a single frame. Enable multipart."
	case errors.Is(err, ErrDatagram):
		return "Invalid response from UDP."
	case errors.Is(err, protocol.ErrChannelUnavailable):
		return "TCP connection refused. Please check your address and port."
	case errors.Is(err, protocol.ErrInvalidHandshakeResponse):
		return "Invalid response from TCP."
	case errors.Is(err, protocol.ErrMalformedFrame):
		return "Invalid response from UDP."
	default:
		return "Unknown error: " + err.Error()
	}
}
