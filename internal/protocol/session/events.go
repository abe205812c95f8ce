package session

// Channel names the transport a frame or message travelled on.
type Channel string

const (
	ChannelControl  Channel = "TCP"
	ChannelDatagram Channel = "UDP"
)

// SentFrame describes one transmitted unit. Content is the wire content after
// any cipher or parity transform.
type SentFrame struct {
	Channel   Channel
	Ack       bool
	Remaining int
	Length    int
	Content   string
}

// EventSink observes protocol activity. Implementations must not influence
// protocol behavior: a session runs the same with NopEvents.
type EventSink interface {
	ControlReceived(messages []string)
	DatagramReceived(content string)
	Sent(ev SentFrame)
	NoEncryptionKeys()
	NoDecryptionKeys()
	InvalidMessage()
}

// NopEvents discards every event.
type NopEvents struct{}

func (NopEvents) ControlReceived([]string) {}
func (NopEvents) DatagramReceived(string)  {}
func (NopEvents) Sent(SentFrame)           {}
func (NopEvents) NoEncryptionKeys()        {}
func (NopEvents) NoDecryptionKeys()        {}
func (NopEvents) InvalidMessage()          {}

// MultiEvents fans every event out to each sink in order.
type MultiEvents []EventSink

func (m MultiEvents) ControlReceived(messages []string) {
	for _, s := range m {
		s.ControlReceived(messages)
	}
}

func (m MultiEvents) DatagramReceived(content string) {
	for _, s := range m {
		s.DatagramReceived(content)
	}
}

func (m MultiEvents) Sent(ev SentFrame) {
	for _, s := range m {
		s.Sent(ev)
	}
}

func (m MultiEvents) NoEncryptionKeys() {
	for _, s := range m {
		s.NoEncryptionKeys()
	}
}

func (m MultiEvents) NoDecryptionKeys() {
	for _, s := range m {
		s.NoDecryptionKeys()
	}
}

func (m MultiEvents) InvalidMessage() {
	for _, s := range m {
		s.InvalidMessage()
	}
}

func eventsOrNop(events EventSink) EventSink {
	if events == nil {
		return NopEvents{}
	}
	return events
}
