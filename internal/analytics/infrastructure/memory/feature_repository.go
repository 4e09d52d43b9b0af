package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"turnstile-analytics/internal/analytics/domain/features"
)

// FeatureRepository is an in-memory feature sink and run ledger for
// dry runs and tests.
type FeatureRepository struct {
	mu       sync.RWMutex
	features map[string][]features.EnrichedRow
	runs     map[string]features.RunRecord
}

// NewFeatureRepository constructs a repository.
func NewFeatureRepository() *FeatureRepository {
	return &FeatureRepository{
		features: make(map[string][]features.EnrichedRow),
		runs:     make(map[string]features.RunRecord),
	}
}

// SaveFeatures stores a copy of the enriched rows under runID.
func (r *FeatureRepository) SaveFeatures(ctx context.Context, runID string, table *features.EnrichedTable) (int, error) {
	_ = ctx
	if runID == "" {
		return 0, errors.New("feature repo: empty run id")
	}
	if table == nil {
		return 0, features.ErrNilTable
	}
	rows := make([]features.EnrichedRow, len(table.Rows))
	copy(rows, table.Rows)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.features[runID] = rows
	return len(rows), nil
}

// RecordRun stores a run record, replacing any previous record with the same id.
func (r *FeatureRepository) RecordRun(ctx context.Context, run features.RunRecord) error {
	_ = ctx
	if run.ID == "" {
		return errors.New("feature repo: empty run id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
	return nil
}

// Features returns the rows saved for runID.
func (r *FeatureRepository) Features(runID string) []features.EnrichedRow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows := r.features[runID]
	out := make([]features.EnrichedRow, len(rows))
	copy(out, rows)
	return out
}

// Run returns the record for runID.
func (r *FeatureRepository) Run(runID string) (features.RunRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[runID]
	return run, ok
}

// Runs returns every recorded run ordered by start time.
func (r *FeatureRepository) Runs() []features.RunRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]features.RunRecord, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
