package client

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/danmuck/superclient/internal/protocol/session"
)

// Config is everything a run needs. It is resolved once from file and
// arguments and not changed afterwards.
type Config struct {
	Address     string
	ControlPort int
	Session     session.Config
	ANSI        bool
	Verbose     bool
	// MetricsAddr, when set, serves /metrics for the lifetime of the run.
	MetricsAddr string
}

func DefaultConfig() Config {
	return Config{
		Session: session.DefaultConfig(),
		ANSI:    true,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return fmt.Errorf("%w: missing server address", ErrInvalidArgs)
	}
	if c.ControlPort < 1 || c.ControlPort > 65535 {
		return fmt.Errorf("%w: server port out of range: %d", ErrInvalidArgs, c.ControlPort)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgs, err)
	}
	return nil
}

func (c Config) ControlAddress() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.ControlPort))
}

func (c Config) datagramAddress(port int) string {
	return net.JoinHostPort(c.Address, strconv.Itoa(port))
}
