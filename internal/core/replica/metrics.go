package replica

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// reconcileTotal counts reconciliations by merge action
	reconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kanso_sync_reconcile_total",
		Help: "Total reconciliations by merge action",
	}, []string{"action"})

	// pushTotal counts push attempts by outcome
	pushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kanso_sync_push_total",
		Help: "Total push attempts by outcome",
	}, []string{"outcome"})

	pushLogs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kanso_sync_push_logs",
		Help:    "Number of day logs carried per committed batch",
		Buckets: []float64{0, 1, 2, 5, 10, 50, 200},
	})
)
