package metrics

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "meterdist_"

	resultSuccess = "success"
	resultError   = "error"

	outcomeRouted         = "routed"
	outcomeUnmatched      = "unmatched"
	outcomeQualityFlagged = "quality_flagged"
)

var (
	registerOnce sync.Once

	runTotal   *prometheus.CounterVec
	runLatency *prometheus.HistogramVec

	documentTotal *prometheus.CounterVec
	seriesTotal   *prometheus.CounterVec

	workbookTotal *prometheus.CounterVec

	registryLoadTotal *prometheus.CounterVec
)

// Init registers pipeline metrics and, when db is set, a gauge counting the
// rows of registryTable.
func Init(db *sql.DB, registryTable string, logger *log.Logger) {
	registerOnce.Do(func() {
		runTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "runs_total",
				Help: "Total distribution runs by result",
			},
			[]string{"result"},
		)
		runLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "run_latency_seconds",
				Help:    "Distribution run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		documentTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "documents_total",
				Help: "Processed input documents by format and result",
			},
			[]string{"format", "result"},
		)
		seriesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "series_total",
				Help: "Extracted time series by routing outcome",
			},
			[]string{"outcome"},
		)
		workbookTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "workbooks_total",
				Help: "Workbook writes by category and result",
			},
			[]string{"category", "result"},
		)
		registryLoadTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "registry_loads_total",
				Help: "Registry loads by source and result",
			},
			[]string{"source", "result"},
		)

		prometheus.MustRegister(
			runTotal,
			runLatency,
			documentTotal,
			seriesTotal,
			workbookTotal,
			registryLoadTotal,
		)

		if db != nil && registryTable != "" {
			registerDBMetrics(db, registryTable, logger)
		}
	})
}

func registerDBMetrics(db *sql.DB, registryTable string, logger *log.Logger) {
	query := countQuery(registryTable)
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "registry_points",
			Help: "Metering points stored in the registry table",
		},
		func() float64 {
			return queryCount(db, logger, query)
		},
	))
}

func countQuery(table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}

// ObserveRun records run duration and result.
func ObserveRun(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if runTotal != nil {
		runTotal.WithLabelValues(result).Inc()
	}
	if runLatency != nil {
		runLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddDocuments increments the document counter.
func AddDocuments(format, result string, count int) {
	if count <= 0 {
		return
	}
	if format == "" {
		format = "unknown"
	}
	if documentTotal != nil {
		documentTotal.WithLabelValues(format, result).Add(float64(count))
	}
}

// AddSeries increments the series counter for an outcome.
func AddSeries(outcome string, count int) {
	if count <= 0 {
		return
	}
	if seriesTotal != nil {
		seriesTotal.WithLabelValues(outcome).Add(float64(count))
	}
}

// IncWorkbook increments workbook writes.
func IncWorkbook(category, result string) {
	if category == "" {
		category = "unknown"
	}
	if workbookTotal != nil {
		workbookTotal.WithLabelValues(category, result).Inc()
	}
}

// IncRegistryLoad increments registry loads.
func IncRegistryLoad(source, result string) {
	if source == "" {
		source = "unknown"
	}
	if registryLoadTotal != nil {
		registryLoadTotal.WithLabelValues(source, result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	OutcomeRouted         = outcomeRouted
	OutcomeUnmatched      = outcomeUnmatched
	OutcomeQualityFlagged = outcomeQualityFlagged
)
