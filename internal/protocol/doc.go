// Package protocol owns the superclient wire contract.
//
// Ownership boundary:
// - error taxonomy shared by every wire layer
// - frame codec (frame)
// - stream cipher and keysets (cipher)
// - per-character parity coding (parity)
// - fragmentation (fragment)
// - control handshake and datagram session (session)
package protocol
