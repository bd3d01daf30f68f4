package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		paymentsTotal,
		renewalAttemptsTotal,
		renewalOutcomesTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Gateway payments by status (pending/succeeded/canceled).",
		},
		[]string{"status"},
	)

	renewalAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "renewal_attempts_total",
			Help: "Recurrent charges attempted by the renewal scheduler.",
		},
	)

	renewalOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renewal_outcomes_total",
			Help: "Renewal attempt outcomes (succeeded/pending/failed/capped).",
		},
		[]string{"outcome"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func IncRenewalAttempt() { renewalAttemptsTotal.Inc() }

func IncRenewalOutcome(outcome string) {
	renewalOutcomesTotal.WithLabelValues(norm(outcome)).Inc()
}
