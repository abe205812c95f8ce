package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"github.com/danmuck/superclient/internal/protocol"
	"github.com/danmuck/superclient/internal/protocol/cipher"
	"github.com/danmuck/superclient/internal/protocol/fragment"
	"github.com/danmuck/superclient/internal/protocol/frame"
	"github.com/danmuck/superclient/internal/protocol/parity"
)

// RetransmitRequest is the content of an ack=false frame asking the peer to
// send its previous logical message again.
const RetransmitRequest = "Send again"

const datagramReadSize = 4096

// Params seeds a DatagramSession from the control handshake.
type Params struct {
	SessionID   string
	Options     Options
	EncryptKeys []string
	DecryptKeys []string
}

// ParamsFromHandshake derives datagram parameters from a completed handshake.
func ParamsFromHandshake(hs Handshake, cfg Config) Params {
	return Params{
		SessionID:   hs.SessionID,
		Options:     cfg.Options(),
		EncryptKeys: hs.EncryptKeys,
		DecryptKeys: hs.DecryptKeys,
	}
}

// Message is one reassembled logical message.
type Message struct {
	Text          string
	EndOfExchange bool
	// Ack is false when the peer sent the message as a retransmission request.
	Ack bool
}

type receiveState int

const (
	stateCollecting receiveState = iota
	stateDiscarding
)

// DatagramSession applies the negotiated transforms to logical messages on a
// connected datagram socket. It is owned by a single caller.
type DatagramSession struct {
	conn      net.Conn
	sessionID string
	opts      Options
	encKeys   *cipher.KeySet
	decKeys   *cipher.KeySet
	events    EventSink
	buf       []byte
}

// DialDatagram opens a connected UDP socket to address.
func DialDatagram(ctx context.Context, address string, p Params, events EventSink) (*DatagramSession, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", protocol.ErrChannelUnavailable, address, err)
	}
	return NewDatagramSession(conn, p, events), nil
}

// NewDatagramSession wraps conn. Each Write on conn must send one datagram and
// each Read must return one.
func NewDatagramSession(conn net.Conn, p Params, events EventSink) *DatagramSession {
	s := &DatagramSession{
		conn:      conn,
		sessionID: p.SessionID,
		opts:      p.Options,
		events:    eventsOrNop(events),
		buf:       make([]byte, datagramReadSize),
	}
	if p.Options.Features.Encryption {
		s.encKeys = cipher.NewKeySet(p.EncryptKeys)
		s.decKeys = cipher.NewKeySet(p.DecryptKeys)
	}
	return s
}

func (s *DatagramSession) SessionID() string {
	return s.sessionID
}

// RemainingKeys reports unused encryption and decryption keys.
func (s *DatagramSession) RemainingKeys() (encrypt, decrypt int) {
	return s.encKeys.Len(), s.decKeys.Len()
}

func (s *DatagramSession) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Send transmits message as one or more ack=true frames.
func (s *DatagramSession) Send(ctx context.Context, message string) error {
	return s.send(ctx, message, true)
}

// RequestRetransmission sends the ack=false retransmission request.
func (s *DatagramSession) RequestRetransmission(ctx context.Context) error {
	return s.send(ctx, RetransmitRequest, false)
}

// SendEndOfExchange sends the final frame of a session. Its content is never
// encrypted, parity coded or fragmented.
func (s *DatagramSession) SendEndOfExchange(ctx context.Context, message string) error {
	n := len([]rune(message))
	f := frame.Frame{
		SessionID:     s.sessionID,
		Ack:           true,
		EndOfExchange: true,
		Length:        uint16(min(n, math.MaxUint16)),
		Content:       message,
	}
	b, err := frame.Encode(f)
	if err != nil {
		return err
	}
	if err := s.write(ctx, b); err != nil {
		return err
	}
	s.events.Sent(SentFrame{Channel: ChannelDatagram, Ack: true, Length: n, Content: message})
	return nil
}

func (s *DatagramSession) send(ctx context.Context, message string, ack bool) error {
	pieces := fragment.Split(message, s.opts.fragmentBound())
	remaining := fragment.Total(pieces)
	if remaining > math.MaxUint16 {
		return fmt.Errorf("%w: message of %d characters", protocol.ErrPayloadTooLarge, remaining)
	}

	// Encode every fragment before the first write so an oversized fragment
	// never leaves a partial message on the wire.
	frames := make([]frame.Frame, 0, len(pieces))
	wire := make([][]byte, 0, len(pieces))
	for _, p := range pieces {
		content := p.Text
		if s.opts.Features.Encryption {
			out, ok := cipher.Apply(s.encKeys, content)
			if ok {
				content = out
			} else {
				s.events.NoEncryptionKeys()
			}
		}
		if s.opts.Features.Parity {
			content = parity.Add(content)
		}
		remaining -= p.Len
		f := frame.Frame{
			SessionID: s.sessionID,
			Ack:       ack,
			Remaining: uint16(remaining),
			Length:    uint16(p.Len),
			Content:   content,
		}
		b, err := frame.Encode(f)
		if err != nil {
			return err
		}
		frames = append(frames, f)
		wire = append(wire, b)
	}

	for i, b := range wire {
		if err := s.write(ctx, b); err != nil {
			return err
		}
		f := frames[i]
		s.events.Sent(SentFrame{
			Channel:   ChannelDatagram,
			Ack:       f.Ack,
			Remaining: int(f.Remaining),
			Length:    int(f.Length),
			Content:   f.Content,
		})
	}
	return nil
}

// Receive returns the next logical message and whether it ended the exchange.
func (s *DatagramSession) Receive(ctx context.Context) (string, bool, error) {
	msg, err := s.ReceiveMessage(ctx)
	if err != nil {
		return "", false, err
	}
	return msg.Text, msg.EndOfExchange, nil
}

// ReceiveMessage reads frames until a logical message is complete.
//
// A fragment that fails its parity check moves the session into the
// discarding state: the remaining fragments of that message are still read
// (and still consume decryption keys, keeping both keysets aligned with the
// peer), then a retransmission request is sent and collection restarts. A
// corrupt message is never returned.
func (s *DatagramSession) ReceiveMessage(ctx context.Context) (Message, error) {
	var text strings.Builder
	state := stateCollecting
	for {
		f, err := s.readFrame(ctx)
		if err != nil {
			return Message{}, err
		}

		if f.EndOfExchange {
			s.events.DatagramReceived(f.Content)
			return Message{Text: f.Content, EndOfExchange: true, Ack: f.Ack}, nil
		}

		content := f.Content
		if s.opts.Features.Parity {
			stripped, valid := parity.Check(content)
			content = stripped
			if !valid {
				state = stateDiscarding
			}
		}
		s.events.DatagramReceived(content)
		if s.opts.Features.Encryption {
			out, ok := cipher.Apply(s.decKeys, content)
			if ok {
				content = out
			} else {
				s.events.NoDecryptionKeys()
			}
		}

		if state == stateDiscarding {
			if f.Remaining > 0 {
				continue
			}
			s.events.InvalidMessage()
			if err := s.RequestRetransmission(ctx); err != nil {
				return Message{}, err
			}
			text.Reset()
			state = stateCollecting
			continue
		}

		text.WriteString(content)
		if f.Remaining == 0 {
			return Message{Text: text.String(), Ack: f.Ack}, nil
		}
	}
}

func (s *DatagramSession) readFrame(ctx context.Context) (frame.Frame, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()
	n, err := s.conn.Read(s.buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return frame.Frame{}, ctxErr
		}
		return frame.Frame{}, err
	}
	return frame.Decode(s.buf[:n])
}

func (s *DatagramSession) write(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.conn.Write(b)
	if err != nil && errors.Is(err, net.ErrClosed) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}
