package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/superclient/internal/protocol/session"
	"github.com/pelletier/go-toml/v2"
)

// ClientConfig is the on-disk shape of a superclient config file.
// Durations are Go duration strings ("5s", "250ms"); empty means default.
type ClientConfig struct {
	Address          string `toml:"address"`
	ControlPort      int    `toml:"control_port"`
	Features         string `toml:"features"`
	ANSI             bool   `toml:"ansi"`
	Verbose          bool   `toml:"verbose"`
	KeySetSize       int    `toml:"keyset_size"`
	FragmentLen      int    `toml:"fragment_len"`
	ConnectTimeout   string `toml:"connect_timeout"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	MetricsAddr      string `toml:"metrics_addr"`
}

func DefaultClientConfig() ClientConfig {
	def := session.DefaultConfig()
	return ClientConfig{
		Features:         def.Features.Flags(),
		ANSI:             true,
		KeySetSize:       def.KeySetSize,
		FragmentLen:      def.FragmentLen,
		ConnectTimeout:   def.ConnectTimeout.String(),
		HandshakeTimeout: def.HandshakeTimeout.String(),
	}
}

// LoadClientConfig reads path on top of DefaultClientConfig and validates
// the result.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := loadToml(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.Address) == "" {
		return fmt.Errorf("client config missing address")
	}
	if cfg.ControlPort < 1 || cfg.ControlPort > 65535 {
		return fmt.Errorf("client config control_port out of range: %d", cfg.ControlPort)
	}
	if _, err := cfg.Session(); err != nil {
		return err
	}
	return nil
}

// Session converts the file settings into the immutable protocol config.
func (c ClientConfig) Session() (session.Config, error) {
	connect, err := parseDuration("connect_timeout", c.ConnectTimeout)
	if err != nil {
		return session.Config{}, err
	}
	handshake, err := parseDuration("handshake_timeout", c.HandshakeTimeout)
	if err != nil {
		return session.Config{}, err
	}
	out := session.Config{
		Features:         session.ParseFeatures(c.Features),
		KeySetSize:       c.KeySetSize,
		FragmentLen:      c.FragmentLen,
		ConnectTimeout:   connect,
		HandshakeTimeout: handshake,
	}
	if err := out.Validate(); err != nil {
		return session.Config{}, err
	}
	return out, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// ControlAddress is the host:port of the handshake listener.
func (c ClientConfig) ControlAddress() string {
	return fmt.Sprintf("%s:%d", c.Address, c.ControlPort)
}
