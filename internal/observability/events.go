package observability

import (
	"github.com/danmuck/superclient/internal/protocol"
	"github.com/danmuck/superclient/internal/protocol/session"
	"github.com/rs/zerolog"
)

// EventLog renders session events for verbose mode. With verbose off every
// method returns immediately.
type EventLog struct {
	logger  zerolog.Logger
	verbose bool
}

var _ session.EventSink = (*EventLog)(nil)

func NewEventLog(logger zerolog.Logger, verbose bool) *EventLog {
	return &EventLog{logger: logger.With().Str("component", "session").Logger(), verbose: verbose}
}

func (l *EventLog) ControlReceived(messages []string) {
	if !l.verbose {
		return
	}
	l.logger.Debug().Strs("messages", messages).Msg("tcp message received")
}

func (l *EventLog) DatagramReceived(content string) {
	if !l.verbose {
		return
	}
	l.logger.Debug().Str("content", content).Msg("udp message received")
}

func (l *EventLog) Sent(ev session.SentFrame) {
	if !l.verbose {
		return
	}
	l.logger.Debug().
		Str("channel", string(ev.Channel)).
		Bool("ack", ev.Ack).
		Int("remaining", ev.Remaining).
		Int("len", ev.Length).
		Str("content", ev.Content).
		Msg("message sent")
}

func (l *EventLog) NoEncryptionKeys() {
	if !l.verbose {
		return
	}
	l.logger.Warn().Str("event", "noEncryptionKeys").Msg("no encryption keys, sending as plain text")
}

func (l *EventLog) NoDecryptionKeys() {
	if !l.verbose {
		return
	}
	l.logger.Warn().Str("event", "noDecryptionKeys").Msg("no decryption keys, received as plain text")
}

func (l *EventLog) InvalidMessage() {
	if !l.verbose {
		return
	}
	l.logger.Warn().Str("event", "invalidMessage").Err(protocol.ErrCorruptFragment).Msg("invalid message, asking for retransmission")
}
