package protocol

import "errors"

var (
	ErrChannelUnavailable       = errors.New("protocol: channel unavailable")
	ErrInvalidHandshakeResponse = errors.New("protocol: invalid handshake response")
	ErrMalformedFrame           = errors.New("protocol: malformed frame")
	ErrPayloadTooLarge          = errors.New("protocol: payload too large")
	ErrCorruptFragment          = errors.New("protocol: corrupt fragment")
)
