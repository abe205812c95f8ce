package session

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/superclient/internal/protocol"
	"github.com/danmuck/superclient/internal/protocol/frame"
	"github.com/danmuck/superclient/internal/protocol/parity"
	"github.com/danmuck/superclient/internal/testutil/testlog"
)

func allOptions(fragmentLen int) Options {
	return Options{Features: AllFeatures(), FragmentLen: fragmentLen}
}

func TestDatagramRoundTripAllFeatures(t *testing.T) {
	testlog.Start(t)
	client, server, _ := datagramPair(t, allOptions(64), testKeys("c", 20), testKeys("s", 20))
	ctx := testContext(t)

	if err := client.Send(ctx, "the quick brown fox"); err != nil {
		t.Fatalf("client send: %v", err)
	}
	msg, err := server.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("server receive: %v", err)
	}
	if msg.Text != "the quick brown fox" || msg.EndOfExchange || !msg.Ack {
		t.Fatalf("unexpected message: %+v", msg)
	}

	long := strings.Repeat("lorem ipsum ", 15)
	if err := server.Send(ctx, long); err != nil {
		t.Fatalf("server send: %v", err)
	}
	got, eom, err := client.Receive(ctx)
	if err != nil {
		t.Fatalf("client receive: %v", err)
	}
	if got != long || eom {
		t.Fatalf("unexpected reassembly: eom=%v got=%q", eom, got)
	}

	enc, dec := client.RemainingKeys()
	if enc != 19 || dec != 17 {
		t.Fatalf("unexpected key usage: enc=%d dec=%d", enc, dec)
	}
}

func TestDatagramFragmentsCountDown(t *testing.T) {
	testlog.Start(t)
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()
	client, err := DialDatagram(testContext(t), pc.LocalAddr().String(), Params{
		SessionID: "sid00001",
		Options:   Options{Features: Features{Multipart: true}, FragmentLen: 8},
	}, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if err := client.Send(testContext(t), "abcdefghijklmnopqrst"); err != nil {
		t.Fatalf("send: %v", err)
	}
	wantRemaining := []uint16{12, 4, 0}
	wantLen := []uint16{8, 8, 4}
	wantText := []string{"abcdefgh", "ijklmnop", "qrst"}
	for i := range wantRemaining {
		f := readDatagram(t, pc)
		if f.SessionID != "sid00001" || !f.Ack || f.EndOfExchange {
			t.Fatalf("frame %d header: %+v", i, f)
		}
		if f.Remaining != wantRemaining[i] || f.Length != wantLen[i] || f.Content != wantText[i] {
			t.Fatalf("frame %d: %+v", i, f)
		}
	}
}

func TestDatagramWholeMessageWithoutMultipart(t *testing.T) {
	testlog.Start(t)
	client, server, _ := datagramPair(t, Options{Features: Features{Parity: true}, FragmentLen: 8}, nil, nil)
	msg := strings.Repeat("x", 60)
	if err := client.Send(testContext(t), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := server.ReceiveMessage(testContext(t))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if got.Text != msg {
		t.Fatalf("unexpected text: %q", got.Text)
	}
}

func TestDatagramOversizeWithoutMultipart(t *testing.T) {
	testlog.Start(t)
	client, _, events := datagramPair(t, Options{}, nil, nil)
	err := client.Send(testContext(t), strings.Repeat("x", 200))
	if !errors.Is(err, protocol.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if len(events.sent) != 0 {
		t.Fatalf("partial message sent: %+v", events.sent)
	}
}

func TestDatagramEmptyMessage(t *testing.T) {
	testlog.Start(t)
	client, server, _ := datagramPair(t, allOptions(64), testKeys("c", 2), testKeys("s", 2))
	if err := client.Send(testContext(t), ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := server.ReceiveMessage(testContext(t))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if got.Text != "" || got.EndOfExchange {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestDatagramEndOfExchangeIsUntransformed(t *testing.T) {
	testlog.Start(t)
	client, server, events := datagramPair(t, allOptions(64), testKeys("c", 2), testKeys("s", 2))
	if err := server.SendEndOfExchange(testContext(t), "Bye"); err != nil {
		t.Fatalf("send eom: %v", err)
	}
	got, eom, err := client.Receive(testContext(t))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if got != "Bye" || !eom {
		t.Fatalf("unexpected final message: eom=%v got=%q", eom, got)
	}
	if _, dec := client.RemainingKeys(); dec != 2 {
		t.Fatalf("end of exchange consumed a key: remaining=%d", dec)
	}
	if len(events.datagrams) != 1 || events.datagrams[0] != "Bye" {
		t.Fatalf("unexpected datagram events: %q", events.datagrams)
	}
}

func TestDatagramCorruptFragmentRequestsRetransmission(t *testing.T) {
	testlog.Start(t)
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	clientKeys, serverKeys := testKeys("c", 20), testKeys("s", 20)
	events := &recordEvents{}
	client, err := DialDatagram(testContext(t), pc.LocalAddr().String(), Params{
		SessionID: "sid00001", Options: allOptions(64), EncryptKeys: clientKeys, DecryptKeys: serverKeys,
	}, events)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	serverConn := &tamperConn{Conn: NewPeerConn(pc, client.conn.LocalAddr()), nth: 1}
	server := NewDatagramSession(serverConn, Params{
		SessionID: "sid00001", Options: allOptions(64), EncryptKeys: serverKeys, DecryptKeys: clientKeys,
	}, nil)
	defer server.Close()

	challenge := strings.Repeat("word ", 20)
	type result struct {
		text string
		eom  bool
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, eom, err := client.Receive(testContext(t))
		done <- result{text, eom, err}
	}()

	if err := server.Send(testContext(t), challenge); err != nil {
		t.Fatalf("server send: %v", err)
	}
	req, err := server.ReceiveMessage(testContext(t))
	if err != nil {
		t.Fatalf("server receive: %v", err)
	}
	if req.Ack || req.Text != RetransmitRequest {
		t.Fatalf("expected retransmission request, got %+v", req)
	}
	select {
	case r := <-done:
		t.Fatalf("corrupt message delivered: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	if err := server.Send(testContext(t), challenge); err != nil {
		t.Fatalf("server resend: %v", err)
	}
	r := <-done
	if r.err != nil || r.eom || r.text != challenge {
		t.Fatalf("unexpected delivery: %+v", r)
	}
	if n := events.sentRetransmitRequests(); n != 1 {
		t.Fatalf("expected exactly one retransmission frame, got %d", n)
	}
	if events.invalid != 1 {
		t.Fatalf("expected one invalid message event, got %d", events.invalid)
	}
}

func TestDatagramKeyExhaustionFallsBackToCleartext(t *testing.T) {
	testlog.Start(t)
	client, server, events := datagramPair(t, allOptions(64), testKeys("c", 1), testKeys("s", 1))
	for _, msg := range []string{"first message", "second message"} {
		if err := client.Send(testContext(t), msg); err != nil {
			t.Fatalf("send: %v", err)
		}
		got, err := server.ReceiveMessage(testContext(t))
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if got.Text != msg {
			t.Fatalf("got %q want %q", got.Text, msg)
		}
	}
	if events.noEnc != 1 {
		t.Fatalf("expected one noEncryptionKeys event, got %d", events.noEnc)
	}
	last := events.sent[len(events.sent)-1]
	if text, ok := parity.Check(last.Content); !ok || text != "second message" {
		t.Fatalf("fallback frame not cleartext: %q", text)
	}
}

func TestDatagramMalformedFrame(t *testing.T) {
	testlog.Start(t)
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()
	client, err := DialDatagram(testContext(t), pc.LocalAddr().String(), Params{SessionID: "sid"}, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	if _, err := pc.WriteTo([]byte("short"), client.conn.LocalAddr()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := client.Receive(testContext(t)); !errors.Is(err, protocol.ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}
}

func TestDatagramReceiveHonorsContext(t *testing.T) {
	testlog.Start(t)
	client, _, _ := datagramPair(t, Options{}, nil, nil)
	ctx, cancel := context.WithTimeout(testContext(t), 30*time.Millisecond)
	defer cancel()
	if _, _, err := client.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
}

func TestDatagramInvalidUTF8OnWireRequestsRetransmission(t *testing.T) {
	testlog.Start(t)
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	opts := Options{Features: Features{Parity: true}, FragmentLen: DefaultFragmentLen}
	events := &recordEvents{}
	client, err := DialDatagram(testContext(t), pc.LocalAddr().String(), Params{SessionID: "sid00001", Options: opts}, events)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	// The first content byte of "1 2" coded is 0x63; flipping its top bit
	// leaves a utf-8 lead byte with no continuation.
	serverConn := &byteFlipConn{
		Conn:   NewPeerConn(pc, client.conn.LocalAddr()),
		nth:    1,
		offset: frame.Size - frame.ContentLen,
		mask:   0x80,
	}
	server := NewDatagramSession(serverConn, Params{SessionID: "sid00001", Options: opts}, nil)
	defer server.Close()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, _, err := client.Receive(testContext(t))
		done <- result{text, err}
	}()

	if err := server.Send(testContext(t), "1 2"); err != nil {
		t.Fatalf("server send: %v", err)
	}
	req, err := server.ReceiveMessage(testContext(t))
	if err != nil {
		t.Fatalf("server receive: %v", err)
	}
	if req.Ack || req.Text != RetransmitRequest {
		t.Fatalf("expected retransmission request, got %+v", req)
	}
	if err := server.Send(testContext(t), "1 2"); err != nil {
		t.Fatalf("server resend: %v", err)
	}
	r := <-done
	if r.err != nil || r.text != "1 2" {
		t.Fatalf("unexpected delivery: %+v", r)
	}
	if n := events.sentRetransmitRequests(); n != 1 {
		t.Fatalf("expected exactly one retransmission frame, got %d", n)
	}
}

func TestDatagramParityFragmentsFitAtMaxLength(t *testing.T) {
	testlog.Start(t)
	client, server, _ := datagramPair(t, allOptions(MaxParityFragmentLen), testKeys("c", 20), testKeys("s", 20))
	// a coded ascii character takes at most two utf-8 bytes
	msg := strings.Repeat("hello world ", 10)
	if err := client.Send(testContext(t), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := server.ReceiveMessage(testContext(t))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if got.Text != msg {
		t.Fatalf("unexpected text: %q", got.Text)
	}
}
