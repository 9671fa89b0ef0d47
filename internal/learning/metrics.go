package learning

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "expmem",
			Subsystem: "learning",
			Name:      "decisions_total",
			Help:      "Decisions evaluated by outcome",
		},
		[]string{"outcome"},
	)

	ruleUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "expmem",
			Subsystem: "learning",
			Name:      "rule_updates_total",
			Help:      "Rule score adjustments by direction",
		},
		[]string{"direction"},
	)

	rollingAccuracy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "expmem",
		Subsystem: "learning",
		Name:      "rolling_accuracy",
		Help:      "Successful decisions over total decisions",
	})
)

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
