package session

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/superclient/internal/protocol/frame"
)

// testContext stands in for testing.T.Context (Go 1.24+): a context that is
// canceled when the test finishes.
func testContext(t testing.TB) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

type recordEvents struct {
	mu        sync.Mutex
	control   [][]string
	datagrams []string
	sent      []SentFrame
	noEnc     int
	noDec     int
	invalid   int
}

func (r *recordEvents) ControlReceived(m []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.control = append(r.control, m)
}

func (r *recordEvents) DatagramReceived(c string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.datagrams = append(r.datagrams, c)
}

func (r *recordEvents) Sent(ev SentFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, ev)
}

func (r *recordEvents) NoEncryptionKeys() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noEnc++
}

func (r *recordEvents) NoDecryptionKeys() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noDec++
}

func (r *recordEvents) InvalidMessage() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalid++
}

func (r *recordEvents) sentRetransmitRequests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.sent {
		if ev.Channel == ChannelDatagram && !ev.Ack {
			n++
		}
	}
	return n
}

func testKeys(prefix string, n int) []string {
	keys := make([]string, n)
	for i := range keys {
		c := string(rune('a' + i%6))
		keys[i] = prefix + strings.Repeat(c, 64-len(prefix))
	}
	return keys
}

// datagramPair returns a client session dialed at a serving session bound to
// loopback. Both use the same options; the server encrypts with decKeys and
// decrypts with encKeys.
func datagramPair(t *testing.T, opts Options, encKeys, decKeys []string) (client, server *DatagramSession, clientEvents *recordEvents) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	clientEvents = &recordEvents{}
	client, err = DialDatagram(testContext(t), pc.LocalAddr().String(), Params{
		SessionID:   "sid00001",
		Options:     opts,
		EncryptKeys: encKeys,
		DecryptKeys: decKeys,
	}, clientEvents)
	if err != nil {
		t.Fatalf("dial datagram: %v", err)
	}
	server = NewDatagramSession(NewPeerConn(pc, client.conn.LocalAddr()), Params{
		SessionID:   "sid00001",
		Options:     opts,
		EncryptKeys: decKeys,
		DecryptKeys: encKeys,
	}, nil)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server, clientEvents
}

// tamperConn flips the low bit of the first content character of the nth
// datagram written (1-based).
type tamperConn struct {
	net.Conn
	mu     sync.Mutex
	writes int
	nth    int
}

func (c *tamperConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	c.writes++
	hit := c.writes == c.nth
	c.mu.Unlock()
	if hit {
		f, err := frame.Decode(b)
		if err == nil && f.Content != "" {
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

func readDatagram(t *testing.T, pc net.PacketConn) frame.Frame {
	t.Helper()
	buf := make([]byte, 4096)
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read datagram: %v", err)
	}
	f, err := frame.Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode datagram: %v", err)
	}
	return f
}

// byteFlipConn XORs mask into the byte at offset of the nth datagram written
// (1-based), below the frame codec.
type byteFlipConn struct {
	net.Conn
	mu     sync.Mutex
	writes int
	nth    int
	offset int
	mask   byte
}

func (c *byteFlipConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	c.writes++
	hit := c.writes == c.nth
	c.mu.Unlock()
	if hit && c.offset < len(b) {
		b = append([]byte(nil), b...)
		b[c.offset] ^= c.mask
	}
	return c.Conn.Write(b)
}
