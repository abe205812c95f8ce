package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/superclient/internal/protocol/cipher"
	"github.com/danmuck/superclient/internal/protocol/frame"
)

var ErrInvalidConfig = errors.New("session: invalid config")

// Feature tokens sent in the HELLO line, in canonical order.
const (
	TokenEncryption = "ENC"
	TokenMultipart  = "MUL"
	TokenParity     = "PAR"
)

// MaxParityFragmentLen is the longest fragment whose parity coded form always
// fits a frame: a coded ASCII character takes up to two utf-8 bytes.
const MaxParityFragmentLen = frame.ContentLen / 2

// DefaultFragmentLen keeps a parity coded ASCII fragment inside one frame.
const DefaultFragmentLen = MaxParityFragmentLen

// Features is the set of optional protocol behaviors.
type Features struct {
	Encryption bool
	Multipart  bool
	Parity     bool
}

func AllFeatures() Features {
	return Features{Encryption: true, Multipart: true, Parity: true}
}

// ParseFeatures reads a flag string such as "emp". Any 'n' disables every
// feature; otherwise each of e, m, p (either case) enables one.
func ParseFeatures(flags string) Features {
	lower := strings.ToLower(flags)
	if strings.Contains(lower, "n") {
		return Features{}
	}
	return Features{
		Encryption: strings.Contains(lower, "e"),
		Multipart:  strings.Contains(lower, "m"),
		Parity:     strings.Contains(lower, "p"),
	}
}

// Tokens returns the HELLO suffix tokens in canonical order.
func (f Features) Tokens() []string {
	out := make([]string, 0, 3)
	if f.Encryption {
		out = append(out, TokenEncryption)
	}
	if f.Multipart {
		out = append(out, TokenMultipart)
	}
	if f.Parity {
		out = append(out, TokenParity)
	}
	return out
}

// Flags is the inverse of ParseFeatures.
func (f Features) Flags() string {
	var b strings.Builder
	if f.Encryption {
		b.WriteByte('e')
	}
	if f.Multipart {
		b.WriteByte('m')
	}
	if f.Parity {
		b.WriteByte('p')
	}
	if b.Len() == 0 {
		return "n"
	}
	return b.String()
}

func (f Features) String() string {
	tokens := f.Tokens()
	if len(tokens) == 0 {
		return "none"
	}
	return strings.Join(tokens, "+")
}

// Config is the negotiated-protocol configuration. It is built once at
// startup and passed by value; nothing mutates it afterwards.
type Config struct {
	Features         Features
	KeySetSize       int
	FragmentLen      int
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
}

// DefaultConfig enables every feature with a 20 key keyset and 64 character
// fragments. HandshakeTimeout 0 waits for the server indefinitely.
func DefaultConfig() Config {
	return Config{
		Features:         AllFeatures(),
		KeySetSize:       cipher.DefaultKeySetSize,
		FragmentLen:      DefaultFragmentLen,
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 0,
	}
}

// WithDefaults fills zero sizes from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.KeySetSize == 0 {
		c.KeySetSize = def.KeySetSize
	}
	if c.FragmentLen == 0 {
		c.FragmentLen = def.FragmentLen
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	return c
}

func (c Config) Validate() error {
	if c.KeySetSize < 1 {
		return fmt.Errorf("%w: keyset_size must be >= 1, got %d", ErrInvalidConfig, c.KeySetSize)
	}
	if c.FragmentLen < 1 || c.FragmentLen > frame.ContentLen {
		return fmt.Errorf("%w: fragment_len must be in 1..%d, got %d", ErrInvalidConfig, frame.ContentLen, c.FragmentLen)
	}
	if c.Features.Parity && c.Features.Multipart && c.FragmentLen > MaxParityFragmentLen {
		return fmt.Errorf("%w: fragment_len must be <= %d with parity, got %d", ErrInvalidConfig, MaxParityFragmentLen, c.FragmentLen)
	}
	if c.ConnectTimeout < 0 || c.HandshakeTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	return nil
}

// Options are the datagram-side settings derived from Config.
func (c Config) Options() Options {
	return Options{Features: c.Features, FragmentLen: c.FragmentLen}
}

// Options controls how a DatagramSession transforms logical messages.
type Options struct {
	Features    Features
	FragmentLen int
}

// fragmentBound is the split length for outgoing messages; 0 keeps the
// message whole.
func (o Options) fragmentBound() int {
	if !o.Features.Multipart {
		return 0
	}
	return o.FragmentLen
}
