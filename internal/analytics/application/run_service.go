package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"turnstile-analytics/internal/analytics/domain/features"
	masterdata "turnstile-analytics/internal/masterdata/domain"
	"turnstile-analytics/internal/observability/metrics"
	telemetry "turnstile-analytics/internal/telemetry/domain"
)

const sinkFormat = "database"

// RunService runs the pipeline and records its outcome.
type RunService struct {
	pipeline *FeaturePipeline
	sink     features.FeatureSink
	ledger   features.RunLedger
	logger   *slog.Logger
}

// RunServiceOption configures the service.
type RunServiceOption func(*RunService)

// WithFeatureSink persists enriched rows after each successful run.
func WithFeatureSink(sink features.FeatureSink) RunServiceOption {
	return func(s *RunService) { s.sink = sink }
}

// WithRunLedger records every run, successful or not.
func WithRunLedger(ledger features.RunLedger) RunServiceOption {
	return func(s *RunService) { s.ledger = ledger }
}

// NewRunService constructs the service.
func NewRunService(pipeline *FeaturePipeline, logger *slog.Logger, opts ...RunServiceOption) (*RunService, error) {
	if pipeline == nil {
		return nil, errors.New("run service: nil pipeline")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &RunService{pipeline: pipeline, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Execute runs the pipeline over audits, saves the features when a sink is
// configured and writes a ledger entry. The run id is returned even on failure.
func (s *RunService) Execute(ctx context.Context, audits *telemetry.AuditTable, refs ...*masterdata.ReferenceTable) (*Result, string, error) {
	runID := features.NewRunID()
	record := features.RunRecord{
		ID:            runID,
		OptionsDigest: s.pipeline.Options().Digest(),
		StartedAt:     s.pipeline.clock.Now(),
	}
	if audits != nil {
		record.Source = audits.Name
	}

	result, err := s.pipeline.Run(ctx, audits, refs...)
	if err == nil && s.sink != nil {
		err = s.saveFeatures(ctx, runID, result.Table)
	}

	if result != nil {
		record.StartedAt = result.StartedAt
		record.Rows = result.Table.Len()
		record.Quality = result.Table.Quality
	}
	record.FinishedAt = s.pipeline.clock.Now()
	record.Status = features.RunSucceeded
	if err != nil {
		record.Status = features.RunFailed
		record.Error = err.Error()
	}

	if s.ledger != nil {
		if lerr := s.ledger.RecordRun(context.WithoutCancel(ctx), record); lerr != nil {
			s.logger.Error("run ledger write failed", "run_id", runID, "error", lerr)
			err = errors.Join(err, fmt.Errorf("run service: record run: %w", lerr))
		}
	}
	if err != nil {
		return nil, runID, err
	}
	return result, runID, nil
}

func (s *RunService) saveFeatures(ctx context.Context, runID string, table *features.EnrichedTable) error {
	started := s.pipeline.clock.Now()
	n, err := s.sink.SaveFeatures(ctx, runID, table)
	metrics.ObserveExport(sinkFormat, metrics.Result(err), s.pipeline.clock.Since(started))
	if err != nil {
		return fmt.Errorf("run service: save features: %w", err)
	}
	metrics.AddSinkRows(n)
	s.logger.Info("features saved", "run_id", runID, "rows", n)
	return nil
}
