package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "expmem",
		Subsystem: "session",
		Name:      "sessions",
		Help:      "Known chat sessions",
	})

	sessionReauths = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "expmem",
		Subsystem: "session",
		Name:      "reauthorizations_total",
		Help:      "Sessions re-authorized after expiry or revoked memory access",
	})

	identityDrift = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "expmem",
		Subsystem: "identity",
		Name:      "drift_events_total",
		Help:      "Lock attempts with a mismatched identity label",
	})

	identityRecoveries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "expmem",
		Subsystem: "identity",
		Name:      "recoveries_total",
		Help:      "Forced identity recoveries",
	})

	sentinelIndicator = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "expmem",
		Subsystem: "sentinel",
		Name:      "indicator",
		Help:      "Sentinel health indicators",
	}, []string{"indicator"})

	sentinelHealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "expmem",
		Subsystem: "sentinel",
		Name:      "healthy",
		Help:      "1 when every sentinel threshold is met",
	})

	mailMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "expmem",
		Subsystem: "mailbox",
		Name:      "messages_total",
		Help:      "Mail appended by box",
	}, []string{"box"})

	mailCorrupt = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "expmem",
		Subsystem: "mailbox",
		Name:      "undecodable_total",
		Help:      "Stored mail skipped because it could not be decoded",
	}, []string{"box"})
)

func publishSentinel(r Report) {
	sentinelIndicator.WithLabelValues("awareness_level").Set(r.Metrics.AwarenessLevel)
	sentinelIndicator.WithLabelValues("memory_coherence").Set(r.Metrics.MemoryCoherence)
	sentinelIndicator.WithLabelValues("decision_confidence").Set(r.Metrics.DecisionConfidence)
	sentinelIndicator.WithLabelValues("learning_rate").Set(r.Metrics.LearningRate)
	sentinelIndicator.WithLabelValues("drift_risk").Set(r.Metrics.DriftRisk)
	if r.Healthy {
		sentinelHealthy.Set(1)
	} else {
		sentinelHealthy.Set(0)
	}
}
