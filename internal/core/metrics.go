package core

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	batches       *prometheus.CounterVec
	records       *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	commits       *prometheus.CounterVec
	activeRuns    prometheus.Gauge
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		batches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "staffimport",
			Name:      "batches_total",
			Help:      "Total number of import runs by mode and result.",
		}, []string{"mode", "result"}),
		records: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "staffimport",
			Name:      "records_total",
			Help:      "Total number of processed rows by mode and outcome.",
		}, []string{"mode", "outcome"}),
		batchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "staffimport",
			Name:      "batch_duration_seconds",
			Help:      "Duration of import runs.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"mode"}),
		commits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "staffimport",
			Name:      "session_commits_total",
			Help:      "Total number of commit attempts by result.",
		}, []string{"result"}),
		activeRuns: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "staffimport",
			Name:      "active_runs",
			Help:      "Number of import runs currently holding a slot.",
		}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
