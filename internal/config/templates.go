package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "client", "superclient":
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const clientTemplate = `address = "localhost"
control_port = 10000
# any of e (encryption), m (multipart), p (parity); n disables all
features = "emp"
ansi = true
verbose = false
keyset_size = 20
# characters per fragment, 1..128; at most 64 when parity and multipart are on
fragment_len = 64
connect_timeout = "5s"
# 0s waits for the server indefinitely
handshake_timeout = "0s"
# serve prometheus metrics while running, e.g. "127.0.0.1:9464"
metrics_addr = ""
`
