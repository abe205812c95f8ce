// Package parity adds and checks one even-parity bit per character.
//
// Each character code c is sent as c<<1 | parity(c). The scheme is lossless
// only while c<<1|1 is still a valid code point: for ASCII the coded value
// stays below 0x100. A character whose coded value is above unicode.MaxRune or
// lands in the surrogate range cannot be represented and becomes U+FFFD in the
// coded string; this is an accepted limitation.
package parity

import "math/bits"

// Bit returns the XOR fold of every bit of n.
func Bit(n rune) rune {
	return rune(bits.OnesCount32(uint32(n)) & 1)
}

// Add returns text with a parity bit appended below every character.
func Add(text string) string {
	in := []rune(text)
	out := make([]rune, len(in))
	for i, r := range in {
		shifted := r << 1
		out[i] = shifted | Bit(shifted)
	}
	return string(out)
}

// Check strips the parity bit from every character of coded and reports
// whether all of them matched. One bad character invalidates the whole
// string; the stripped text is returned either way.
func Check(coded string) (text string, valid bool) {
	in := []rune(coded)
	out := make([]rune, len(in))
	valid = true
	for i, r := range in {
		received := r & 1
		orig := r >> 1
		if Bit(orig) != received {
			valid = false
		}
		out[i] = orig
	}
	return string(out), valid
}
