package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var degradedOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "expmem",
	Subsystem: "memory",
	Name:      "degraded_total",
	Help:      "Operations that fell back to an empty result after a collaborator failure",
}, []string{"op"})
