package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionsExpiredTotal,
		subscriptionsExtendedTotal,
	)
}

var (
	subscriptionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Total number of users downgraded by the expiry worker.",
		},
	)

	subscriptionsExtendedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_extended_total",
			Help: "Subscription end dates advanced by completed payments.",
		},
		[]string{"kind"}, // 'new', 'extension'
	)
)

func IncSubscriptionsExpired(count int) {
	subscriptionsExpiredTotal.Add(float64(count))
}

func IncSubscriptionExtended(isExtension bool) {
	kind := "new"
	if isExtension {
		kind = "extension"
	}
	subscriptionsExtendedTotal.WithLabelValues(kind).Inc()
}
