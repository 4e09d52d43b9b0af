package metrics

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "platform_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	pipelineRunsTotal    *prometheus.CounterVec
	pipelineRunLatency   *prometheus.HistogramVec
	pipelineRowsTotal    prometheus.Counter
	pipelineGroupsTotal  prometheus.Counter
	invalidDeltasTotal   *prometheus.CounterVec
	skippedRowsTotal     prometheus.Counter
	irregularIntervals   prometheus.Counter
	unmatchedReferences  *prometheus.CounterVec
	featureExportTotal   *prometheus.CounterVec
	featureExportLatency *prometheus.HistogramVec
	featureSinkRowsTotal prometheus.Counter
	metricsLogger        *slog.Logger
)

// Init registers pipeline metrics with the default registry.
func Init(logger *slog.Logger) {
	registerOnce.Do(func() {
		pipelineRunsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "turnstile_pipeline_runs_total",
				Help: "Total feature pipeline runs by result",
			},
			[]string{"result"},
		)
		pipelineRunLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "turnstile_pipeline_latency_seconds",
				Help:    "Feature pipeline run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		pipelineRowsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "turnstile_rows_processed_total",
				Help: "Total audit rows enriched",
			},
		)
		pipelineGroupsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "turnstile_device_groups_total",
				Help: "Total device groups reconciled",
			},
		)
		invalidDeltasTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "turnstile_invalid_deltas_total",
				Help: "Total counter deltas nulled by counter and reason",
			},
			[]string{"counter", "reason"},
		)
		skippedRowsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "turnstile_skipped_rows_total",
				Help: "Total rows left out of sequencing after a timestamp parse failure",
			},
		)
		irregularIntervals = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "turnstile_irregular_intervals_total",
				Help: "Total audit intervals longer than the configured gap",
			},
		)
		unmatchedReferences = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "turnstile_unmatched_reference_rows_total",
				Help: "Total audit rows without a reference match by role",
			},
			[]string{"role"},
		)
		featureExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "turnstile_export_total",
				Help: "Total feature exports by format and result",
			},
			[]string{"format", "result"},
		)
		featureExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "turnstile_export_latency_seconds",
				Help:    "Feature export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)
		featureSinkRowsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "turnstile_sink_rows_total",
				Help: "Total enriched rows written to the database sink",
			},
		)

		prometheus.MustRegister(
			pipelineRunsTotal,
			pipelineRunLatency,
			pipelineRowsTotal,
			pipelineGroupsTotal,
			invalidDeltasTotal,
			skippedRowsTotal,
			irregularIntervals,
			unmatchedReferences,
			featureExportTotal,
			featureExportLatency,
			featureSinkRowsTotal,
		)
		metricsLogger = logger
	})
}

// ObservePipelineRun records run latency and result.
func ObservePipelineRun(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if pipelineRunsTotal != nil {
		pipelineRunsTotal.WithLabelValues(result).Inc()
	}
	if pipelineRunLatency != nil {
		pipelineRunLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddRows increments processed rows and groups.
func AddRows(rows, groups int) {
	if rows > 0 && pipelineRowsTotal != nil {
		pipelineRowsTotal.Add(float64(rows))
	}
	if groups > 0 && pipelineGroupsTotal != nil {
		pipelineGroupsTotal.Add(float64(groups))
	}
}

// AddInvalidDeltas increments the nulled delta counter.
func AddInvalidDeltas(counter, reason string, count int) {
	if count <= 0 {
		return
	}
	if counter == "" {
		counter = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	if invalidDeltasTotal != nil {
		invalidDeltasTotal.WithLabelValues(counter, reason).Add(float64(count))
	}
}

// AddSkippedRows increments skipped row counter.
func AddSkippedRows(count int) {
	if count > 0 && skippedRowsTotal != nil {
		skippedRowsTotal.Add(float64(count))
	}
}

// AddIrregularIntervals increments irregular interval counter.
func AddIrregularIntervals(count int) {
	if count > 0 && irregularIntervals != nil {
		irregularIntervals.Add(float64(count))
	}
}

// AddUnmatchedReferences increments unmatched reference rows for a role.
func AddUnmatchedReferences(role string, count int) {
	if count <= 0 {
		return
	}
	if role == "" {
		role = "unknown"
	}
	if unmatchedReferences != nil {
		unmatchedReferences.WithLabelValues(role).Add(float64(count))
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = ResultSuccess
	}
	if featureExportTotal != nil {
		featureExportTotal.WithLabelValues(format, result).Inc()
	}
	if featureExportLatency != nil {
		featureExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// AddSinkRows increments rows written to the database sink.
func AddSinkRows(count int) {
	if count > 0 && featureSinkRowsTotal != nil {
		featureSinkRowsTotal.Add(float64(count))
	}
}

// WriteTextfile writes the default registry in the node exporter textfile format.
func WriteTextfile(path string) error {
	if path == "" {
		return errors.New("metrics: empty textfile path")
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		if metricsLogger != nil {
			metricsLogger.Error("metrics textfile write failed", "path", path, "error", err)
		}
		return err
	}
	return nil
}

// Result returns the result label for err.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
