package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	retentionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionscan_retention_runs_total",
			Help: "Total number of export retention runs by status.",
		},
		[]string{"status"},
	)
	retentionExportsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "regionscan_retention_exports_deleted_total",
			Help: "Total number of exports removed by retention runs.",
		},
	)
	retentionObjectsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "regionscan_retention_objects_deleted_total",
			Help: "Total number of partition objects removed by retention runs.",
		},
	)
	integrityRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionscan_integrity_runs_total",
			Help: "Total number of export integrity check runs by status.",
		},
		[]string{"status"},
	)
	integrityObjectsCheckedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "regionscan_integrity_objects_checked_total",
			Help: "Total number of partition objects opened by integrity checks.",
		},
	)
	integrityCorruptObjectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "regionscan_integrity_corrupt_objects_total",
			Help: "Total number of partition objects that failed to open as parquet.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		retentionRunsTotal,
		retentionExportsDeletedTotal,
		retentionObjectsDeletedTotal,
		integrityRunsTotal,
		integrityObjectsCheckedTotal,
		integrityCorruptObjectsTotal,
	)
}
