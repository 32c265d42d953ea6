// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Refresh metrics
	PartitionsProcessed *prometheus.CounterVec
	BarsAggregated      prometheus.Counter
	EmaPointsComputed   *prometheus.CounterVec
	RegimeRecordsStored prometheus.Counter
	RegimeFlipsDetected prometheus.Counter
	ComovementStats     prometheus.Counter
	PositionsOpened     prometheus.Counter
	PositionsClosed     prometheus.Counter

	// Latency metrics
	PartitionDuration *prometheus.HistogramVec
	RefreshDuration   prometheus.Histogram

	// Database metrics
	DBQueryErrors *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRefresh prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "regimelab"
	}

	return &Metrics{
		PartitionsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "partitions_processed_total",
			Help:      "Total number of asset partitions processed by status",
		}, []string{"status"}),
		BarsAggregated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "bars_aggregated_total",
			Help:      "Total number of derived timeframe bars built",
		}),
		EmaPointsComputed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "ema_points_computed_total",
			Help:      "Total number of EMA observations computed by alignment source",
		}, []string{"alignment_source"}),
		RegimeRecordsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "regime_records_stored_total",
			Help:      "Total number of regime records stored",
		}),
		RegimeFlipsDetected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "regime_flips_detected_total",
			Help:      "Total number of regime flips detected",
		}),
		ComovementStats: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "comovement_stats_total",
			Help:      "Total number of comovement stat rows computed",
		}),
		PositionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "positions_opened_total",
			Help:      "Total number of signal positions opened",
		}),
		PositionsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "positions_closed_total",
			Help:      "Total number of signal positions closed",
		}),

		PartitionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "partition_duration_seconds",
			Help:      "Per-asset partition processing duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tf"}),
		RefreshDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "duration_seconds",
			Help:      "Full refresh run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),

		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors by store",
		}, []string{"store"}),

		LastSuccessfulRefresh: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last successful refresh",
		}),
	}
}

// Handler returns an HTTP handler exposing the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
