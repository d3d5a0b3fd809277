package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	schemaDiscoveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionscan_schema_discoveries_total",
			Help: "Total number of schema discovery round-trips to the store.",
		},
		[]string{"status"},
	)
	partitionListingsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "regionscan_partition_listings_total",
			Help: "Total number of partition listing calls issued to the store.",
		},
	)
	partitionsPlanned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "regionscan_partitions_planned",
			Help:    "Number of partitions planned per scan request.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		},
	)
	partitionScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionscan_partition_scans_total",
			Help: "Total number of finished partition scans by outcome.",
		},
		[]string{"status"},
	)
	rowsScannedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "regionscan_rows_scanned_total",
			Help: "Total number of rows produced by partition scans.",
		},
	)
	openPartitionScans = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "regionscan_open_partition_scans",
			Help: "Partition scans currently holding a store connection.",
		},
	)
	partitionScanDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "regionscan_partition_scan_duration_seconds",
			Help:    "Wall time between opening and releasing a partition scan.",
			Buckets: prometheus.DefBuckets,
		},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionscan_http_requests_total",
			Help: "Total number of HTTP requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "regionscan_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		schemaDiscoveriesTotal,
		partitionListingsTotal,
		partitionsPlanned,
		partitionScansTotal,
		rowsScannedTotal,
		openPartitionScans,
		partitionScanDurationSeconds,
		httpRequestsTotal,
		httpRequestDurationSeconds,
	)
}

func ObserveSchemaDiscovery(err error) {
	schemaDiscoveriesTotal.WithLabelValues(status(err)).Inc()
}

func ObservePartitionListing(partitions int) {
	partitionListingsTotal.Inc()
	partitionsPlanned.Observe(float64(partitions))
}

func PartitionScanOpened() {
	openPartitionScans.Inc()
}

// ObservePartitionScanClosed records a released partition scan. err is the scan's
// terminal error, nil for exhausted or abandoned scans.
func ObservePartitionScanClosed(rows int64, elapsed time.Duration, err error) {
	openPartitionScans.Dec()
	partitionScansTotal.WithLabelValues(status(err)).Inc()
	if rows > 0 {
		rowsScannedTotal.Add(float64(rows))
	}
	partitionScanDurationSeconds.Observe(elapsed.Seconds())
}

func ObservePartitionScanFailedToOpen() {
	partitionScansTotal.WithLabelValues("error").Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
