package metrics

import (
	"nutrition-assistant-bot/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionsTotal,
		subscriptionsActivated,
	)
}

var (
	subscriptionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_total",
			Help: "Current number of subscription rows by status.",
		},
		[]string{"status"}, // 'pending', 'succeeded', 'canceled'
	)

	subscriptionsActivated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_activated_total",
			Help: "Activations by kind (initial purchase vs renewal).",
		},
		[]string{"kind"},
	)
)

func SetSubscriptionsTotal(counts map[model.SubscriptionStatus]int) {
	statuses := []model.SubscriptionStatus{
		model.SubscriptionStatusPending,
		model.SubscriptionStatusSucceeded,
		model.SubscriptionStatusCanceled,
	}
	for _, status := range statuses {
		if count, ok := counts[status]; ok {
			subscriptionsTotal.WithLabelValues(string(status)).Set(float64(count))
		}
	}
}

func IncSubscriptionActivated(renewal bool) {
	kind := "initial"
	if renewal {
		kind = "renewal"
	}
	subscriptionsActivated.WithLabelValues(kind).Inc()
}
