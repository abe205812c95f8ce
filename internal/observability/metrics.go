package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/superclient/internal/protocol/session"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "superclient",
			Subsystem: "session",
			Name:      "frames_sent_total",
			Help:      "Frames or control requests sent, by channel and ack flag.",
		},
		[]string{"channel", "ack"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "superclient",
			Subsystem: "session",
			Name:      "frames_received_total",
			Help:      "Control messages and datagram frames received, by channel.",
		},
		[]string{"channel"},
	)
	retransmitRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "superclient",
			Subsystem: "session",
			Name:      "retransmit_requests_total",
			Help:      "Logical messages discarded for failing parity and requested again.",
		},
	)
	keysetExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "superclient",
			Subsystem: "session",
			Name:      "keyset_exhausted_total",
			Help:      "Fragments sent or received in cleartext because a keyset ran out.",
		},
		[]string{"direction"},
	)
	challengesAnswered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "superclient",
			Subsystem: "challenge",
			Name:      "answered_total",
			Help:      "Challenges solved and answered.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "superclient",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "superclient",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesSent,
			framesReceived,
			retransmitRequests,
			keysetExhausted,
			challengesAnswered,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordChallengeAnswered() {
	RegisterMetrics()
	challengesAnswered.Inc()
}

// SessionMetrics counts session events. It is stateless; every instance
// feeds the same process-wide collectors.
type SessionMetrics struct{}

var _ session.EventSink = SessionMetrics{}

func NewSessionMetrics() SessionMetrics {
	RegisterMetrics()
	return SessionMetrics{}
}

func (SessionMetrics) ControlReceived(messages []string) {
	framesReceived.WithLabelValues(string(session.ChannelControl)).Add(float64(len(messages)))
}

func (SessionMetrics) DatagramReceived(string) {
	framesReceived.WithLabelValues(string(session.ChannelDatagram)).Inc()
}

func (SessionMetrics) Sent(ev session.SentFrame) {
	framesSent.WithLabelValues(string(ev.Channel), strconv.FormatBool(ev.Ack)).Inc()
}

func (SessionMetrics) NoEncryptionKeys() {
	keysetExhausted.WithLabelValues("encrypt").Inc()
}

func (SessionMetrics) NoDecryptionKeys() {
	keysetExhausted.WithLabelValues("decrypt").Inc()
}

func (SessionMetrics) InvalidMessage() {
	retransmitRequests.Inc()
}
