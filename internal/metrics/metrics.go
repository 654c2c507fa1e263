package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const job = "sensorcube"

type RunMetrics struct {
	TablesLoaded     prometheus.Counter
	RowsLoaded       prometheus.Counter
	OutliersFlagged  *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	RunErrors        *prometheus.CounterVec
	ArrayCells       prometheus.Gauge
	LastSuccessEpoch prometheus.Gauge
}

func NewRunMetrics(reg prometheus.Registerer) *RunMetrics {
	factory := promauto.With(reg)

	return &RunMetrics{
		TablesLoaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "sensorcube_tables_loaded_total",
			Help: "Total number of feature tables loaded from the source",
		}),
		RowsLoaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "sensorcube_rows_loaded_total",
			Help: "Total number of rows loaded from feature tables",
		}),
		OutliersFlagged: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorcube_outliers_flagged_total",
			Help: "Total number of values replaced by NaN as outliers",
		}, []string{"table"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sensorcube_run_duration_seconds",
			Help:    "Duration of a reshape run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		RunErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorcube_run_errors_total",
			Help: "Total number of failed reshape runs",
		}, []string{"stage"}),
		ArrayCells: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sensorcube_array_cells",
			Help: "Number of cells in the last assembled array",
		}),
		LastSuccessEpoch: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sensorcube_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		}),
	}
}

// Push sends everything gathered by g to a Prometheus Pushgateway.
func Push(url string, g prometheus.Gatherer) error {
	if err := push.New(url, job).Gatherer(g).Push(); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
