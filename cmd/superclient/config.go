package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/superclient/internal/client"
	"github.com/danmuck/superclient/internal/protocol/session"
)

type fileConfig struct {
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

// loadFileConfig applies only the keys present in path on top of cfg.
func loadFileConfig(path string, cfg client.Config) (client.Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return client.Config{}, fmt.Errorf("%w: load config: %v", client.ErrInvalidArgs, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return client.Config{}, fmt.Errorf("%w: unknown config key %q", client.ErrInvalidArgs, undecoded[0].String())
	}

	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("control_port") {
		cfg.ControlPort = raw.ControlPort
	}
	if meta.IsDefined("features") {
		cfg.Session.Features = session.ParseFeatures(raw.Features)
	}
	if meta.IsDefined("ansi") {
		cfg.ANSI = raw.ANSI
	}
	if meta.IsDefined("verbose") {
		cfg.Verbose = raw.Verbose
	}
	if meta.IsDefined("keyset_size") {
		cfg.Session.KeySetSize = raw.KeySetSize
	}
	if meta.IsDefined("fragment_len") {
		cfg.Session.FragmentLen = raw.FragmentLen
	}
	if meta.IsDefined("connect_timeout") {
		d, err := parseDuration("connect_timeout", raw.ConnectTimeout)
		if err != nil {
			return client.Config{}, err
		}
		cfg.Session.ConnectTimeout = d
	}
	if meta.IsDefined("handshake_timeout") {
		d, err := parseDuration("handshake_timeout", raw.HandshakeTimeout)
		if err != nil {
			return client.Config{}, err
		}
		cfg.Session.HandshakeTimeout = d
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %v", client.ErrInvalidArgs, key, err)
	}
	return d, nil
}
