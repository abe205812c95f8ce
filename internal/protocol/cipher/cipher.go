// Package cipher implements the keystream XOR cipher used on the datagram
// channel and the single-use keysets that feed it.
//
// The keystream is not adversarially secure: keys are short, travel in the
// clear over the control channel, and XOR is applied per character.
package cipher

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// KeyLen is the number of characters in one key.
	KeyLen = 64
	// DefaultKeySetSize is the number of keys each side contributes.
	DefaultKeySetSize = 20
)

var ErrInvalidKey = errors.New("cipher: invalid key")

// KeySet is a FIFO of single-use keys. Keys are consumed in the order the
// peer sent them. A KeySet is owned by one session and is not safe for
// concurrent use.
type KeySet struct {
	keys []string
}

func NewKeySet(keys []string) *KeySet {
	cp := make([]string, len(keys))
	copy(cp, keys)
	return &KeySet{keys: cp}
}

// PopFront removes and returns the oldest unused key. ok is false when the
// set is exhausted.
func (k *KeySet) PopFront() (key string, ok bool) {
	if k == nil || len(k.keys) == 0 {
		return "", false
	}
	key = k.keys[0]
	k.keys[0] = ""
	k.keys = k.keys[1:]
	return key, true
}

func (k *KeySet) Len() int {
	if k == nil {
		return 0
	}
	return len(k.keys)
}

// XOR applies key to text character by character:
// out[i] = text[i] ^ key[i mod len(key)]. The transform is its own inverse.
func XOR(text, key string) string {
	kr := []rune(key)
	if len(kr) == 0 {
		return text
	}
	in := []rune(text)
	out := make([]rune, len(in))
	for i, r := range in {
		out[i] = r ^ kr[i%len(kr)]
	}
	return string(out)
}

// Apply pops the next key from keys and XORs text with it. ok is false when
// no key was available; text is then returned unchanged and the caller falls
// back to cleartext.
func Apply(keys *KeySet, text string) (out string, ok bool) {
	key, ok := keys.PopFront()
	if !ok {
		return text, false
	}
	return XOR(text, key), true
}

// GenerateKeySet returns n fresh keys of KeyLen lowercase hex characters.
func GenerateKeySet(n int) ([]string, error) {
	keys := make([]string, 0, n)
	raw := make([]byte, KeyLen/2)
	for i := 0; i < n; i++ {
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("cipher: generate key: %w", err)
		}
		keys = append(keys, hex.EncodeToString(raw))
	}
	return keys, nil
}

// ValidateKey checks the shape of a key received from a peer.
func ValidateKey(key string) error {
	if len(key) != KeyLen {
		return fmt.Errorf("%w: length %d, want %d", ErrInvalidKey, len(key), KeyLen)
	}
	if strings.TrimSpace(key) != key || key == "." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
