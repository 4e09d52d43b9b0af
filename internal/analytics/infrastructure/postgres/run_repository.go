package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"turnstile-analytics/internal/analytics/domain/features"
)

const defaultRunTable = "pipeline_runs"

// RunRepository writes the pipeline run ledger.
type RunRepository struct {
	db    *sql.DB
	table string
}

// NewRunRepository constructs a run repository.
func NewRunRepository(db *sql.DB, table string) *RunRepository {
	if table == "" {
		table = defaultRunTable
	}
	return &RunRepository{db: db, table: table}
}

// RecordRun upserts a run entry. The quality report is stored as JSON with
// its digest.
func (r *RunRepository) RecordRun(ctx context.Context, run features.RunRecord) error {
	if r == nil || r.db == nil {
		return errors.New("run repo: nil db")
	}
	if run.ID == "" {
		return errors.New("run repo: empty run id")
	}
	if run.StartedAt.IsZero() || run.FinishedAt.IsZero() {
		return errors.New("run repo: missing run timestamps")
	}

	quality, err := json.Marshal(run.Quality)
	if err != nil {
		return fmt.Errorf("run repo: encode quality: %w", err)
	}

	_, err = r.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	id, source, status, rows, error, quality, quality_digest, options_digest, started_at, finished_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (id)
DO UPDATE SET
	status = EXCLUDED.status,
	rows = EXCLUDED.rows,
	error = EXCLUDED.error,
	quality = EXCLUDED.quality,
	quality_digest = EXCLUDED.quality_digest,
	finished_at = EXCLUDED.finished_at`, r.table),
		run.ID, run.Source, string(run.Status), run.Rows, run.Error,
		quality, digestJSON(quality), run.OptionsDigest, run.StartedAt.UTC(), run.FinishedAt.UTC())
	return err
}

func digestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
