package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		webhookRequestsTotal,
		pollRequestsTotal,
		providerRequestDuration,
	)
}

var (
	// result: applied|noop|ignored|bad_request|unauthorized|error
	webhookRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_requests_total",
			Help: "Inbound deposit callbacks by result.",
		},
		[]string{"result"},
	)

	// result: applied|unchanged|terminal|provider_error|not_found|rate_limited|error
	pollRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_poll_requests_total",
			Help: "Deposit status polls by result.",
		},
		[]string{"result"},
	)

	providerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Latency of payment provider calls by operation and result.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"op", "result"},
	)
)

func IncWebhook(result string) {
	webhookRequestsTotal.WithLabelValues(norm(result)).Inc()
}

func IncPoll(result string) {
	pollRequestsTotal.WithLabelValues(norm(result)).Inc()
}

func ObserveProvider(op string, ok bool, elapsed time.Duration) {
	result := "ok"
	if !ok {
		result = "error"
	}
	providerRequestDuration.WithLabelValues(norm(op), result).Observe(elapsed.Seconds())
}
