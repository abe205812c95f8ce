package client

import (
	"sync"

	"github.com/danmuck/superclient/internal/console"
	"github.com/danmuck/superclient/internal/protocol/session"
)

// consoleEvents surfaces the session events a user should see in the
// transcript. Keyset exhaustion is reported once per direction.
type consoleEvents struct {
	session.NopEvents
	console *console.Console

	encOnce sync.Once
	decOnce sync.Once
}

func newConsoleEvents(c *console.Console) *consoleEvents {
	return &consoleEvents{console: c}
}

func (e *consoleEvents) NoEncryptionKeys() {
	e.encOnce.Do(func() {
		e.console.Warn("Out of encryption keys, sending in plain text.")
	})
}

func (e *consoleEvents) NoDecryptionKeys() {
	e.decOnce.Do(func() {
		e.console.Warn("Out of decryption keys, receiving in plain text.")
	})
}

func (e *consoleEvents) InvalidMessage() {
	e.console.Warn("Corrupt message received, asking the server to send again.")
}
