package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/danmuck/superclient/internal/logging"
	"github.com/danmuck/superclient/internal/protocol/session"
	"github.com/rs/zerolog"
)

func TestEventLogVerboseGate(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, logging.Config{Level: zerolog.DebugLevel, Bypass: true})

	quiet := NewEventLog(logger, false)
	quiet.Sent(session.SentFrame{Channel: session.ChannelDatagram, Ack: true, Content: "x"})
	quiet.InvalidMessage()
	if buf.Len() != 0 {
		t.Fatalf("quiet event log wrote output: %q", buf.String())
	}

	loud := NewEventLog(logger, true)
	loud.Sent(session.SentFrame{Channel: session.ChannelDatagram, Ack: false, Remaining: 3, Length: 10, Content: "Send again"})
	loud.NoEncryptionKeys()
	loud.InvalidMessage()
	out := buf.String()
	if !strings.Contains(out, `"channel":"UDP"`) || !strings.Contains(out, `"remaining":3`) {
		t.Fatalf("missing send metadata: %q", out)
	}
	if !strings.Contains(out, "noEncryptionKeys") {
		t.Fatalf("missing warning event: %q", out)
	}
	if !strings.Contains(out, "corrupt fragment") {
		t.Fatalf("invalid message should carry the corrupt fragment error: %q", out)
	}
}
