// Package challengeserver is an in-process peer for end-to-end tests: it
// answers the control handshake, then challenges the client over UDP using
// the same session layer the client runs.
package challengeserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/danmuck/superclient/internal/protocol/cipher"
	"github.com/danmuck/superclient/internal/protocol/frame"
	"github.com/danmuck/superclient/internal/protocol/session"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var ErrBadRequest = errors.New("challengeserver: bad hello request")

type Config struct {
	Challenges  []string
	Final       string
	FragmentLen int
	// Keyword replaces HELLO in the handshake reply.
	Keyword string
	// CorruptWrite flips one parity bit in the nth datagram the server
	// writes (1-based). Zero disables corruption.
	CorruptWrite int
	// CorruptRawByte makes CorruptWrite flip the top bit of the first content
	// byte on the wire instead, which usually breaks its utf-8 encoding.
	CorruptRawByte bool
}

func (c Config) withDefaults() Config {
	if c.Final == "" {
		c.Final = "Bye."
	}
	if c.FragmentLen == 0 {
		c.FragmentLen = session.DefaultFragmentLen
	}
	if c.Keyword == "" {
		c.Keyword = session.HelloKeyword
	}
	return c
}

// Server runs one session: one control connection, then one datagram peer.
type Server struct {
	cfg  Config
	tcp  net.Listener
	udp  net.PacketConn
	g    *errgroup.Group
	stop context.CancelFunc

	mu        sync.Mutex
	sessionID string
	request   []string
	greeting  string
	responses []string
	retries   int
	received  []frame.Frame
}

// Start listens on loopback and serves in the background until the session
// ends or ctx is cancelled.
func Start(ctx context.Context, cfg Config) (*Server, error) {
	tcp, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	udp, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		_ = tcp.Close()
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	s := &Server{cfg: cfg.withDefaults(), tcp: tcp, udp: udp, g: g, stop: cancel}
	g.Go(func() error {
		<-gctx.Done()
		_ = tcp.Close()
		_ = udp.Close()
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return s.serve(gctx)
	})
	return s, nil
}

func (s *Server) ControlAddr() string {
	return s.tcp.Addr().String()
}

// Wait blocks until the session finished and returns the first failure.
func (s *Server) Wait() error {
	return s.g.Wait()
}

func (s *Server) Close() error {
	s.stop()
	return s.Wait()
}

func (s *Server) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Request is the raw handshake request as split on the delimiter.
func (s *Server) Request() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.request...)
}

func (s *Server) Greeting() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.greeting
}

func (s *Server) Responses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.responses...)
}

// RetransmitRequests counts ack=false messages received from the client.
func (s *Server) RetransmitRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}

// ReceivedFrames are the raw frames read from the client, before any
// transform was undone.
func (s *Server) ReceivedFrames() []frame.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]frame.Frame(nil), s.received...)
}

func (s *Server) serve(ctx context.Context) error {
	features, clientKeys, serverKeys, err := s.handshake(ctx)
	if err != nil {
		return err
	}

	conn := &wireConn{
		Conn:    session.NewPeerConn(s.udp, nil),
		corrupt: s.cfg.CorruptWrite,
		raw:     s.cfg.CorruptRawByte,
		onRead:  s.recordFrame,
	}
	ds := session.NewDatagramSession(conn, session.Params{
		SessionID: s.SessionID(),
		Options: session.Options{
			Features:    features,
			FragmentLen: s.cfg.FragmentLen,
		},
		EncryptKeys: serverKeys,
		DecryptKeys: clientKeys,
	}, nil)

	hello, err := ds.ReceiveMessage(ctx)
	if err != nil {
		return fmt.Errorf("challengeserver: greeting: %w", err)
	}
	s.mu.Lock()
	s.greeting = hello.Text
	s.mu.Unlock()

	for _, challenge := range s.cfg.Challenges {
		if err := ds.Send(ctx, challenge); err != nil {
			return err
		}
		for {
			msg, err := ds.ReceiveMessage(ctx)
			if err != nil {
				return fmt.Errorf("challengeserver: response: %w", err)
			}
			if !msg.Ack {
				s.mu.Lock()
				s.retries++
				s.mu.Unlock()
				if err := ds.Send(ctx, challenge); err != nil {
					return err
				}
				continue
			}
			s.mu.Lock()
			s.responses = append(s.responses, msg.Text)
			s.mu.Unlock()
			break
		}
	}
	return ds.SendEndOfExchange(ctx, s.cfg.Final)
}

// handshake serves one control connection and returns the negotiated
// features with the client's keys and the keys generated for it.
func (s *Server) handshake(ctx context.Context) (session.Features, []string, []string, error) {
	conn, err := s.tcp.Accept()
	if err != nil {
		return session.Features{}, nil, nil, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var request []string
	for {
		batch, err := session.ReadMessages(conn)
		if err != nil {
			return session.Features{}, nil, nil, fmt.Errorf("challengeserver: read hello: %w", err)
		}
		request = append(request, batch...)
		if !strings.Contains(request[0], session.TokenEncryption) || hasTerminator(request) {
			break
		}
	}

	fields := strings.Fields(request[0])
	if len(fields) == 0 || fields[0] != session.HelloKeyword {
		return session.Features{}, nil, nil, fmt.Errorf("%w: %q", ErrBadRequest, request[0])
	}
	var features session.Features
	for _, tok := range fields[1:] {
		switch tok {
		case session.TokenEncryption:
			features.Encryption = true
		case session.TokenMultipart:
			features.Multipart = true
		case session.TokenParity:
			features.Parity = true
		}
	}

	var clientKeys, serverKeys []string
	if features.Encryption {
		for _, m := range request[1:] {
			if m == session.KeyTerminator {
				break
			}
			if m != "" {
				clientKeys = append(clientKeys, m)
			}
		}
		serverKeys, err = cipher.GenerateKeySet(len(clientKeys))
		if err != nil {
			return session.Features{}, nil, nil, err
		}
	}

	sid := uuid.NewString()[:frame.SessionIDLen]
	s.mu.Lock()
	s.sessionID = sid
	s.request = request
	s.mu.Unlock()

	port := s.udp.LocalAddr().(*net.UDPAddr).Port
	reply := []string{s.cfg.Keyword + " " + sid + " " + strconv.Itoa(port)}
	if features.Encryption {
		reply = append(reply, serverKeys...)
		reply = append(reply, session.KeyTerminator)
	}
	if err := session.WriteMessages(conn, reply); err != nil {
		return session.Features{}, nil, nil, err
	}
	return features, clientKeys, serverKeys, nil
}

func (s *Server) recordFrame(f frame.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, f)
}

func hasTerminator(messages []string) bool {
	for _, m := range messages {
		if m == session.KeyTerminator {
			return true
		}
	}
	return false
}

// wireConn records decoded inbound frames and optionally corrupts one
// outbound frame.
type wireConn struct {
	net.Conn
	corrupt int
	raw     bool
	onRead  func(frame.Frame)

	mu     sync.Mutex
	writes int
}

func (c *wireConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if err == nil && c.onRead != nil {
		if f, decErr := frame.Decode(b[:n]); decErr == nil {
			c.onRead(f)
		}
	}
	return n, err
}

func (c *wireConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	c.writes++
	hit := c.corrupt > 0 && c.writes == c.corrupt
	c.mu.Unlock()
	if hit && c.raw {
		b = append([]byte(nil), b...)
		b[frame.Size-frame.ContentLen] ^= 0x80
	} else if hit {
		if f, err := frame.Decode(b); err == nil && f.Content != "" {
			r := []rune(f.Content)
			r[0] ^= 1
			f.Content = string(r)
			if out, err := frame.Encode(f); err == nil {
				b = out
			}
		}
	}
	return c.Conn.Write(b)
}
