package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/superclient/internal/protocol"
	"github.com/danmuck/superclient/internal/protocol/cipher"
)

const (
	// MessageDelimiter separates messages on the control channel.
	MessageDelimiter = "\r\n"
	// HelloKeyword opens both the request and the response line.
	HelloKeyword = "HELLO"
	// KeyTerminator ends a keyset listing.
	KeyTerminator = "."

	controlReadSize = 4096
)

// Handshake is the outcome of a successful control exchange.
type Handshake struct {
	SessionID   string
	Port        int
	EncryptKeys []string
	DecryptKeys []string
}

// ControlClient performs the one-shot control handshake.
type ControlClient struct {
	cfg    Config
	events EventSink
}

func NewControlClient(cfg Config, events EventSink) *ControlClient {
	return &ControlClient{cfg: cfg.WithDefaults(), events: eventsOrNop(events)}
}

// Negotiate generates a fresh encryption keyset (when encryption is enabled)
// and runs the handshake against address.
func (c *ControlClient) Negotiate(ctx context.Context, address string) (Handshake, error) {
	var keys []string
	if c.cfg.Features.Encryption {
		generated, err := cipher.GenerateKeySet(c.cfg.KeySetSize)
		if err != nil {
			return Handshake{}, err
		}
		keys = generated
	}
	return c.NegotiateWithKeys(ctx, address, keys)
}

// NegotiateWithKeys runs the handshake offering keys as the encryption
// keyset. keys is ignored when encryption is disabled.
func (c *ControlClient) NegotiateWithKeys(ctx context.Context, address string, keys []string) (Handshake, error) {
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return Handshake{}, fmt.Errorf("%w: %s: %v", protocol.ErrChannelUnavailable, address, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()
	if c.cfg.HandshakeTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	}

	features := c.cfg.Features
	if !features.Encryption {
		keys = nil
	}
	request := BuildHello(features, keys)
	if err := WriteMessages(conn, request); err != nil {
		return Handshake{}, c.ioError(ctx, "write hello", err)
	}
	c.events.Sent(SentFrame{
		Channel: ChannelControl,
		Ack:     true,
		Length:  len(request),
		Content: strings.Join(request, MessageDelimiter),
	})

	var response []string
	for {
		batch, err := ReadMessages(conn)
		if err != nil {
			return Handshake{}, c.ioError(ctx, "read response", err)
		}
		c.events.ControlReceived(batch)
		response = append(response, batch...)
		if !features.Encryption || containsTerminator(response) {
			break
		}
	}

	hs, err := ParseHelloResponse(response, features.Encryption, c.cfg.KeySetSize)
	if err != nil {
		return Handshake{}, err
	}
	hs.EncryptKeys = append([]string(nil), keys...)
	return hs, nil
}

func (c *ControlClient) ioError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %s: %v", protocol.ErrInvalidHandshakeResponse, op, err)
}

// BuildHello returns the request messages: the HELLO line with feature
// tokens, then the keyset and its terminator when keys is non-empty.
func BuildHello(features Features, keys []string) []string {
	line := strings.Join(append([]string{HelloKeyword}, features.Tokens()...), " ")
	out := []string{line}
	if len(keys) > 0 {
		out = append(out, keys...)
		out = append(out, KeyTerminator)
	}
	return out
}

// ParseHelloResponse validates "HELLO <session id> <port>" followed, when
// encrypted is set, by exactly keySetSize keys and the terminator.
func ParseHelloResponse(messages []string, encrypted bool, keySetSize int) (Handshake, error) {
	if len(messages) == 0 {
		return Handshake{}, fmt.Errorf("%w: empty response", protocol.ErrInvalidHandshakeResponse)
	}
	parts := strings.Split(messages[0], " ")
	if len(parts) < 3 {
		return Handshake{}, fmt.Errorf("%w: %q", protocol.ErrInvalidHandshakeResponse, messages[0])
	}
	if parts[0] != HelloKeyword {
		return Handshake{}, fmt.Errorf("%w: unexpected keyword %q", protocol.ErrInvalidHandshakeResponse, parts[0])
	}
	if parts[1] == "" {
		return Handshake{}, fmt.Errorf("%w: missing session id", protocol.ErrInvalidHandshakeResponse)
	}
	port, err := strconv.ParseUint(parts[2], 10, 16)
	if err != nil || port == 0 {
		return Handshake{}, fmt.Errorf("%w: invalid port %q", protocol.ErrInvalidHandshakeResponse, parts[2])
	}
	hs := Handshake{SessionID: parts[1], Port: int(port)}
	if !encrypted {
		return hs, nil
	}

	keys := make([]string, 0, keySetSize)
	for _, m := range messages[1:] {
		if m == KeyTerminator {
			break
		}
		// A delimiter at a read boundary leaves an empty message behind.
		if m == "" {
			continue
		}
		keys = append(keys, m)
	}
	if len(keys) != keySetSize {
		return Handshake{}, fmt.Errorf("%w: got %d keys, want %d", protocol.ErrInvalidHandshakeResponse, len(keys), keySetSize)
	}
	for i, k := range keys {
		if err := cipher.ValidateKey(k); err != nil {
			return Handshake{}, fmt.Errorf("%w: key[%d]: %v", protocol.ErrInvalidHandshakeResponse, i, err)
		}
	}
	hs.DecryptKeys = keys
	return hs, nil
}

// WriteMessages joins messages with MessageDelimiter and writes them in one
// call. No trailing delimiter is added.
func WriteMessages(w io.Writer, messages []string) error {
	_, err := io.WriteString(w, strings.Join(messages, MessageDelimiter))
	return err
}

// ReadMessages performs one read of up to 4096 bytes and splits the result
// on MessageDelimiter.
func ReadMessages(r io.Reader) ([]string, error) {
	buf := make([]byte, controlReadSize)
	n, err := r.Read(buf)
	if n == 0 {
		if err == nil {
			err = io.ErrNoProgress
		}
		return nil, err
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return strings.Split(string(buf[:n]), MessageDelimiter), nil
}

func containsTerminator(messages []string) bool {
	for _, m := range messages {
		if m == KeyTerminator {
			return true
		}
	}
	return false
}
