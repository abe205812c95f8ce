// Package session owns the superclient transport session.
//
// Ownership boundary:
// - control handshake over the reliable channel (HELLO, feature tokens, keysets)
// - datagram session over the unreliable channel (fragmentation, cipher,
//   parity, retransmission requests)
// - the event contract used by logging and metrics collaborators
//
// Known limitations:
// - control responses are split per socket read; a response spanning several
//   reads can break message framing
// - datagram reads block until a frame arrives unless the caller's context
//   is cancelled; a silent peer stalls the session
// - fragments are reassembled in arrival order, reordered datagrams corrupt
//   the logical message
package session
