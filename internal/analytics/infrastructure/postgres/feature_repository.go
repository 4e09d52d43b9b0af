package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"turnstile-analytics/internal/analytics/domain/features"
	"turnstile-analytics/internal/tabular"
)

const (
	defaultFeatureTable     = "turnstile_features"
	defaultFeatureBatchSize = 500
)

var featureColumns = []string{
	"run_id",
	"row_index",
	"control_area",
	"remote_unit",
	"scp",
	"audit_date",
	"audit_time",
	"audit_at",
	"description",
	"entries",
	"exits",
	"entries_diff",
	"exits_diff",
	"busyness",
	"time_diff_seconds",
	"station",
	"line_name",
	"division",
	"latitude",
	"longitude",
}

// FeatureRepository writes enriched rows to Postgres.
type FeatureRepository struct {
	db        *sql.DB
	table     string
	batchSize int
}

// FeatureOption configures the repository.
type FeatureOption func(*FeatureRepository)

// WithFeatureTable overrides the default table name.
func WithFeatureTable(table string) FeatureOption {
	return func(repo *FeatureRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// WithBatchSize sets the number of rows per INSERT statement.
func WithBatchSize(n int) FeatureOption {
	return func(repo *FeatureRepository) {
		if n > 0 {
			repo.batchSize = n
		}
	}
}

// NewFeatureRepository constructs a repository.
func NewFeatureRepository(db *sql.DB, opts ...FeatureOption) *FeatureRepository {
	repo := &FeatureRepository{db: db, table: defaultFeatureTable, batchSize: defaultFeatureBatchSize}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// SaveFeatures upserts every row of table in one transaction, keyed by device,
// raw audit date and time, and row index.
func (r *FeatureRepository) SaveFeatures(ctx context.Context, runID string, table *features.EnrichedTable) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("feature repo: nil db")
	}
	if runID == "" {
		return 0, errors.New("feature repo: empty run id")
	}
	if table == nil {
		return 0, features.ErrNilTable
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for start := 0; start < len(table.Rows); start += r.batchSize {
		end := min(start+r.batchSize, len(table.Rows))
		query, args := r.batchInsert(runID, table.Rows[start:end], start)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("feature repo: rows %d-%d: %w", start, end-1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return len(table.Rows), nil
}

func (r *FeatureRepository) batchInsert(runID string, rows []features.EnrichedRow, offset int) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "\nINSERT INTO %s (\n\t%s\n) VALUES\n", r.table, strings.Join(featureColumns, ",\n\t"))

	args := make([]any, 0, len(rows)*len(featureColumns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString("(")
		for c := range featureColumns {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", len(args)+c+1)
		}
		b.WriteString(")")
		args = append(args, featureArgs(runID, offset+i, row)...)
	}

	b.WriteString(`
ON CONFLICT (control_area, remote_unit, scp, audit_date, audit_time, row_index)
DO UPDATE SET
	run_id = EXCLUDED.run_id,
	audit_at = EXCLUDED.audit_at,
	description = EXCLUDED.description,
	entries = EXCLUDED.entries,
	exits = EXCLUDED.exits,
	entries_diff = EXCLUDED.entries_diff,
	exits_diff = EXCLUDED.exits_diff,
	busyness = EXCLUDED.busyness,
	time_diff_seconds = EXCLUDED.time_diff_seconds,
	station = EXCLUDED.station,
	line_name = EXCLUDED.line_name,
	division = EXCLUDED.division,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	updated_at = NOW()`)
	return b.String(), args
}

func featureArgs(runID string, index int, row features.EnrichedRow) []any {
	rec := row.Record
	auditAt := sql.NullTime{}
	if row.Calendar.Known {
		auditAt = sql.NullTime{Time: row.Calendar.Timestamp.UTC(), Valid: true}
	}
	timeDiff := sql.NullInt64{}
	if d, ok := row.TimeDelta.Get(); ok {
		timeDiff = sql.NullInt64{Int64: int64(d.Seconds()), Valid: true}
	}
	return []any{
		runID,
		index,
		rec.Device.ControlArea,
		rec.Device.RemoteUnit,
		rec.Device.SubunitChannelPosition,
		rec.Date,
		rec.Time,
		auditAt,
		rec.Description,
		nullCount(rec.Entries),
		nullCount(rec.Exits),
		nullCount(row.EntriesDelta),
		nullCount(row.ExitsDelta),
		nullCount(row.Busyness),
		timeDiff,
		nullString(row.Reference.Station),
		nullString(row.Reference.LineName),
		nullString(row.Reference.Division),
		nullFloat(row.Reference.Latitude),
		nullFloat(row.Reference.Longitude),
	}
}

func nullCount(c tabular.Count) sql.NullInt64 {
	v, ok := c.Get()
	return sql.NullInt64{Int64: v, Valid: ok}
}

func nullFloat(f tabular.Float) sql.NullFloat64 {
	v, ok := f.Get()
	return sql.NullFloat64{Float64: v, Valid: ok}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
