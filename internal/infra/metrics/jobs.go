package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(reconcilerRunsTotal, reconciledPaymentsTotal) }

var (
	reconcilerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_runs_total",
			Help: "Payment reconciler sweeps, labeled by result.",
		},
		[]string{"result"}, // 'ok', 'error', 'skipped'
	)

	reconciledPaymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciled_payments_total",
			Help: "Stale payments re-checked by the reconciler, labeled by result.",
		},
		[]string{"result"}, // 'checked', 'error', 'dropped'
	)
)

func IncReconcilerRun(result string) {
	reconcilerRunsTotal.WithLabelValues(norm(result)).Inc()
}

func IncReconciled(result string) {
	reconciledPaymentsTotal.WithLabelValues(norm(result)).Inc()
}
