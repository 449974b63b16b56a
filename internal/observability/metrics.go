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
			Namespace: "nwcctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"component", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nwcctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"component", "method", "path", "status"},
	)
	exchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nwcctl",
			Subsystem: "exchange",
			Name:      "total",
			Help:      "Wallet connect exchanges by method and outcome.",
		},
		[]string{"method", "outcome"},
	)
	exchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nwcctl",
			Subsystem: "exchange",
			Name:      "duration_seconds",
			Help:      "Wallet connect exchange duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "outcome"},
	)
	exchangeReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nwcctl",
			Subsystem: "exchange",
			Name:      "replies_total",
			Help:      "Reply events accepted into exchanges.",
		},
		[]string{"method"},
	)
	lateReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nwcctl",
			Subsystem: "exchange",
			Name:      "dropped_replies_total",
			Help:      "Reply events dropped because they did not match a live exchange.",
		},
		[]string{"method", "reason"},
	)
	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nwcctl",
			Subsystem: "notification",
			Name:      "received_total",
			Help:      "Wallet notifications delivered to handlers.",
		},
		[]string{"type"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, exchanges, exchangeDuration, exchangeReplies, lateReplies, notifications)
	})
}

func RecordHTTPRequest(component, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(component, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(component, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordExchange counts one finished exchange. outcome is "ok" or an error kind label.
func RecordExchange(method, outcome string, replies int, duration time.Duration) {
	RegisterMetrics()
	exchanges.WithLabelValues(method, outcome).Inc()
	exchangeDuration.WithLabelValues(method, outcome).Observe(duration.Seconds())
	if replies > 0 {
		exchangeReplies.WithLabelValues(method).Add(float64(replies))
	}
}

func RecordDroppedReply(method, reason string) {
	RegisterMetrics()
	lateReplies.WithLabelValues(method, reason).Inc()
}

func RecordNotification(kind string) {
	RegisterMetrics()
	notifications.WithLabelValues(kind).Inc()
}
