package session

import (
	"errors"
	"net"
	"sync"
)

var ErrNoPeer = errors.New("session: peer address unknown")

// PeerConn adapts an unconnected PacketConn to the net.Conn a DatagramSession
// expects, for the serving side of a session. With Peer unset, the first
// datagram read fixes the peer; datagrams from other addresses are dropped.
type PeerConn struct {
	net.PacketConn

	mu   sync.Mutex
	peer net.Addr
}

func NewPeerConn(pc net.PacketConn, peer net.Addr) *PeerConn {
	return &PeerConn{PacketConn: pc, peer: peer}
}

func (c *PeerConn) Read(b []byte) (int, error) {
	for {
		n, addr, err := c.ReadFrom(b)
		if err != nil {
			return n, err
		}
		c.mu.Lock()
		if c.peer == nil {
			c.peer = addr
		}
		match := c.peer.String() == addr.String()
		c.mu.Unlock()
		if match {
			return n, nil
		}
	}
}

func (c *PeerConn) Write(b []byte) (int, error) {
	peer := c.RemoteAddr()
	if peer == nil {
		return 0, ErrNoPeer
	}
	return c.WriteTo(b, peer)
}

func (c *PeerConn) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}
