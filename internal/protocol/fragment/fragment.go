// Package fragment splits logical messages into frame sized pieces.
package fragment

// Piece is one fragment of a logical message. Len is its length in
// characters, measured before any cipher or parity transform.
type Piece struct {
	Text string
	Len  int
}

// Split cuts message left to right into pieces of at most maxLen characters.
// An empty message yields a single empty piece. maxLen <= 0 keeps the whole
// message in one piece.
func Split(message string, maxLen int) []Piece {
	runes := []rune(message)
	if len(runes) == 0 {
		return []Piece{{Text: "", Len: 0}}
	}
	if maxLen <= 0 || maxLen >= len(runes) {
		return []Piece{{Text: message, Len: len(runes)}}
	}
	pieces := make([]Piece, 0, (len(runes)+maxLen-1)/maxLen)
	for i := 0; i < len(runes); i += maxLen {
		end := i + maxLen
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, Piece{Text: string(runes[i:end]), Len: end - i})
	}
	return pieces
}

// Total returns the character count covered by pieces.
func Total(pieces []Piece) int {
	n := 0
	for _, p := range pieces {
		n += p.Len
	}
	return n
}
