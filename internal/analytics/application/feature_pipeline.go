package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"

	"turnstile-analytics/internal/analytics/domain/features"
	mdapp "turnstile-analytics/internal/masterdata/application"
	masterdata "turnstile-analytics/internal/masterdata/domain"
	"turnstile-analytics/internal/observability/metrics"
	"turnstile-analytics/internal/tabular"
	telemetry "turnstile-analytics/internal/telemetry/domain"
)

// Result is the outcome of one pipeline run.
type Result struct {
	Table      *features.EnrichedTable
	Join       *mdapp.JoinResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// FeaturePipeline turns an audit table into an enriched feature table.
type FeaturePipeline struct {
	opts       features.Options
	logger     *slog.Logger
	joiner     *mdapp.ReferenceJoiner
	calendar   *features.CalendarExtractor
	reconciler *features.Reconciler
	clock      clockwork.Clock

	beforeGroup func(features.Group)
}

// PipelineOption configures the pipeline.
type PipelineOption func(*FeaturePipeline)

// WithClock overrides the clock used for run timestamps.
func WithClock(clock clockwork.Clock) PipelineOption {
	return func(p *FeaturePipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// NewFeaturePipeline validates opts and constructs a pipeline.
func NewFeaturePipeline(opts features.Options, logger *slog.Logger, options ...PipelineOption) (*FeaturePipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &FeaturePipeline{
		opts:       opts,
		logger:     logger,
		joiner:     mdapp.NewReferenceJoiner(logger),
		calendar:   features.NewCalendarExtractor(opts),
		reconciler: features.NewReconciler(opts),
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// Options returns the options the pipeline was built with.
func (p *FeaturePipeline) Options() features.Options { return p.opts }

// Run enriches audits. Reference tables are joined in the order given.
// Fatal conditions are returned as errors; everything else lands in the
// quality report of the returned table.
func (p *FeaturePipeline) Run(ctx context.Context, audits *telemetry.AuditTable, refs ...*masterdata.ReferenceTable) (*Result, error) {
	started := p.clock.Now()
	table, join, err := p.run(ctx, audits, refs)
	finished := p.clock.Now()
	metrics.ObservePipelineRun(metrics.Result(err), finished.Sub(started))
	if err != nil {
		p.logger.Error("feature pipeline failed", "error", err)
		return nil, err
	}

	report := table.Quality
	metrics.AddRows(report.Rows, report.Groups)
	metrics.AddSkippedRows(report.SkippedRows)
	metrics.AddIrregularIntervals(report.IrregularIntervals)
	for _, w := range report.Warnings {
		switch w.Kind {
		case features.WarningEntriesNegative:
			metrics.AddInvalidDeltas("entries", "negative", w.Count)
		case features.WarningEntriesOversized:
			metrics.AddInvalidDeltas("entries", "oversized", w.Count)
		case features.WarningExitsNegative:
			metrics.AddInvalidDeltas("exits", "negative", w.Count)
		case features.WarningExitsOversized:
			metrics.AddInvalidDeltas("exits", "oversized", w.Count)
		case features.WarningUnknownCounter:
			metrics.AddInvalidDeltas("any", "unknown", w.Count)
		}
	}
	for _, stat := range join.Stats {
		metrics.AddUnmatchedReferences(string(stat.Role), stat.Unmatched)
	}

	p.logger.Info("feature pipeline completed",
		"table", table.Name,
		"rows", report.Rows,
		"groups", report.Groups,
		"skipped_rows", report.SkippedRows,
		"invalid_deltas", report.InvalidDeltas,
		"irregular_intervals", report.IrregularIntervals,
		"duration", finished.Sub(started),
	)
	return &Result{Table: table, Join: join, StartedAt: started, FinishedAt: finished}, nil
}

func (p *FeaturePipeline) run(ctx context.Context, audits *telemetry.AuditTable, refs []*masterdata.ReferenceTable) (*features.EnrichedTable, *mdapp.JoinResult, error) {
	if audits == nil {
		return nil, nil, features.ErrNilTable
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	join, err := p.joiner.Join(ctx, audits, refs...)
	if err != nil {
		return nil, nil, err
	}

	records := audits.Records
	n := len(records)
	warnings := features.NewWarningAggregator()
	calendars := make([]features.Calendar, n)
	timestamps := make([]time.Time, n)
	include := make([]bool, n)
	skipped := 0
	for i, record := range records {
		ts, column, err := p.calendar.Parse(record.Date, record.Time)
		if err != nil {
			value := record.Date
			if column == telemetry.ColumnTime {
				value = record.Time
			}
			if p.opts.ParseMode == features.ParseStrict {
				return nil, nil, &tabular.ParseError{
					Table:  audits.Name,
					Row:    record.Row,
					Column: column,
					Value:  value,
					Device: record.Device.String(),
					Err:    err,
				}
			}
			skipped++
			warnings.Add(features.WarningUnparsableTimestamp, record.Device.String())
			continue
		}
		timestamps[i] = ts
		calendars[i] = p.calendar.Extract(ts)
		include[i] = true
	}

	partition := features.PartitionRecords(records, timestamps, include)
	deltas := make([]features.Delta, n)
	groupWarnings, err := p.reconcile(ctx, partition, records, timestamps, deltas)
	if err != nil {
		return nil, nil, err
	}
	for _, gw := range groupWarnings {
		warnings.Merge(gw)
	}

	out := &features.EnrichedTable{
		Name:         audits.Name,
		Columns:      append([]string(nil), audits.Columns...),
		ExtraColumns: append([]string(nil), audits.ExtraColumns...),
		Rows:         make([]features.EnrichedRow, n),
	}
	for i, record := range records {
		d := deltas[i]
		out.Rows[i] = features.EnrichedRow{
			Record:       record,
			Calendar:     calendars[i],
			EntriesDelta: d.Entries,
			ExitsDelta:   d.Exits,
			Busyness:     features.Busyness(d.Entries, d.Exits),
			TimeDelta:    d.Time,
			Reference:    join.Attributes[i],
		}
	}

	out.Quality = features.QualityReport{
		Rows:        n,
		Groups:      partition.Len(),
		SkippedRows: skipped,
		InvalidDeltas: warnings.Count(features.WarningEntriesNegative) +
			warnings.Count(features.WarningEntriesOversized) +
			warnings.Count(features.WarningExitsNegative) +
			warnings.Count(features.WarningExitsOversized),
		IrregularIntervals:  warnings.Count(features.WarningIrregularInterval),
		UnmatchedReferences: join.Unmatched(),
		Warnings:            warnings.Warnings(),
	}
	warnings.LogAll(p.logger, audits.Name)
	return out, join, nil
}

// reconcile runs every device group and returns their warnings in group order.
func (p *FeaturePipeline) reconcile(ctx context.Context, partition *features.Partition, records []telemetry.AuditRecord, timestamps []time.Time, deltas []features.Delta) ([]*features.WarningAggregator, error) {
	groups := partition.Groups
	if p.opts.Workers <= 1 || len(groups) <= 1 {
		out := make([]*features.WarningAggregator, 0, len(groups))
		for _, g := range groups {
			w, err := p.reconcileGroup(ctx, g, records, timestamps, deltas)
			if err != nil {
				return nil, err
			}
			out = append(out, w)
		}
		return out, nil
	}

	pool := pond.NewResultPool[*features.WarningAggregator](p.opts.Workers)
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	for _, g := range groups {
		g := g
		group.SubmitErr(func() (*features.WarningAggregator, error) {
			return p.reconcileGroup(ctx, g, records, timestamps, deltas)
		})
	}
	out, err := group.Wait()
	if err != nil {
		var groupErr *features.GroupError
		if errors.As(err, &groupErr) {
			return nil, groupErr
		}
		return nil, fmt.Errorf("feature pipeline: reconcile: %w", err)
	}
	return out, nil
}

func (p *FeaturePipeline) reconcileGroup(ctx context.Context, g features.Group, records []telemetry.AuditRecord, timestamps []time.Time, deltas []features.Delta) (w *features.WarningAggregator, err error) {
	defer func() {
		if r := recover(); r != nil {
			w = nil
			err = &features.GroupError{Device: g.Device, Row: g.FirstRow(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, &features.GroupError{Device: g.Device, Row: g.FirstRow(), Err: err}
	}
	if p.beforeGroup != nil {
		p.beforeGroup(g)
	}
	return p.reconciler.ReconcileGroup(g, records, timestamps, deltas), nil
}
