package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		depositInitiationsTotal,
		paymentTransitionsTotal,
		transactionRecordsTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments reaching a status (pending/processing/completed/failed).",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of completed payments, labeled by currency.",
		},
		[]string{"currency"},
	)

	// result: accepted|rejected|provider_error|validation_error|db_error
	depositInitiationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deposit_initiations_total",
			Help: "Deposit initiation attempts by result.",
		},
		[]string{"result"},
	)

	// source: webhook|poll|initiate|reconciler
	paymentTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transitions_total",
			Help: "Applied payment status transitions by source and edge.",
		},
		[]string{"source", "from", "to"},
	)

	// result: inserted|failed
	transactionRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transaction_records_total",
			Help: "Expense transactions mirroring completed payments, by result.",
		},
		[]string{"result"},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func IncDepositInitiation(result string) {
	depositInitiationsTotal.WithLabelValues(norm(result)).Inc()
}

func IncTransition(source, from, to string) {
	paymentTransitionsTotal.WithLabelValues(norm(source), norm(from), norm(to)).Inc()
}

func IncTransactionRecord(result string) {
	transactionRecordsTotal.WithLabelValues(norm(result)).Inc()
}
