package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "votectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total control-surface HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "votectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Control-surface HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	framesDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "votectl",
			Subsystem: "protocol",
			Name:      "frames_decoded_total",
			Help:      "Inbound frames decoded, by message kind.",
		},
		[]string{"kind"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "votectl",
			Subsystem: "protocol",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped, by reason.",
		},
		[]string{"reason"},
	)
	votesAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "votectl",
			Subsystem: "session",
			Name:      "votes_accepted_total",
			Help:      "Votes recorded in the ledger.",
		},
	)
	promptRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "votectl",
			Subsystem: "session",
			Name:      "prompt_retries_total",
			Help:      "Ballot prompt retransmissions.",
		},
	)
	controllersExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "votectl",
			Subsystem: "session",
			Name:      "controllers_expired_total",
			Help:      "Controllers dropped from a round after exhausting the retry budget.",
		},
	)
	roundsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "votectl",
			Subsystem: "session",
			Name:      "rounds_closed_total",
			Help:      "Rounds closed, by trigger.",
		},
		[]string{"trigger"},
	)
	roundDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "votectl",
			Subsystem: "session",
			Name:      "round_duration_seconds",
			Help:      "Open-to-closed round duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			framesDecoded, framesDropped,
			votesAccepted, promptRetries, controllersExpired,
			roundsClosed, roundDuration,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordFrameDecoded(kind string) {
	RegisterMetrics()
	framesDecoded.WithLabelValues(kind).Inc()
}

func RecordFrameDropped(reason string) {
	RegisterMetrics()
	framesDropped.WithLabelValues(reason).Inc()
}

func RecordVoteAccepted() {
	RegisterMetrics()
	votesAccepted.Inc()
}

func RecordPromptRetry() {
	RegisterMetrics()
	promptRetries.Inc()
}

func RecordControllerExpired() {
	RegisterMetrics()
	controllersExpired.Inc()
}

func RecordRoundClosed(trigger string, duration time.Duration) {
	RegisterMetrics()
	roundsClosed.WithLabelValues(trigger).Inc()
	roundDuration.Observe(duration.Seconds())
}
