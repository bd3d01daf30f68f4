package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		meteredActionsTotal,
		gateDenialsTotal,
	)
}

var (
	meteredActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metered_actions_total",
			Help: "Metered actions performed, by kind and tier.",
		},
		[]string{"kind", "tier"}, // kind: photo|question, tier: free|subscriber
	)

	gateDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_denials_total",
			Help: "Actions blocked by the entitlement gate, by kind.",
		},
		[]string{"kind"},
	)
)

func IncMeteredAction(kind string, subscriber bool) {
	tier := "free"
	if subscriber {
		tier = "subscriber"
	}
	meteredActionsTotal.WithLabelValues(norm(kind), tier).Inc()
}

func IncGateDenial(kind string) {
	gateDenialsTotal.WithLabelValues(norm(kind)).Inc()
}
