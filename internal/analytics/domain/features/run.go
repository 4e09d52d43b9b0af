package features

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// RunStatus is the outcome recorded for a pipeline run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunRecord is one entry of the pipeline run ledger.
type RunRecord struct {
	ID            string
	Source        string
	Status        RunStatus
	Rows          int
	Error         string
	Quality       QualityReport
	OptionsDigest string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// FeatureSink persists enriched rows for a run.
type FeatureSink interface {
	SaveFeatures(ctx context.Context, runID string, table *EnrichedTable) (int, error)
}

// RunLedger records pipeline runs.
type RunLedger interface {
	RecordRun(ctx context.Context, run RunRecord) error
}

// NewRunID generates a random run id.
func NewRunID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "run-" + hex.EncodeToString(buf)
}

// Digest returns a stable SHA256 hex digest of the options.
func (o Options) Digest() string {
	payload := struct {
		UpperBound       int64     `json:"upper_bound"`
		ExtractDateParts bool      `json:"extract_date_parts"`
		ExtractTimeParts bool      `json:"extract_time_parts"`
		ComputeTimeDelta bool      `json:"compute_time_delta"`
		ParseMode        ParseMode `json:"parse_mode"`
		MaxAuditGap      string    `json:"max_audit_gap"`
		DateLayouts      []string  `json:"date_layouts"`
		TimeLayout       string    `json:"time_layout"`
		Location         string    `json:"location"`
	}{
		UpperBound:       o.UpperBound,
		ExtractDateParts: o.ExtractDateParts,
		ExtractTimeParts: o.ExtractTimeParts,
		ComputeTimeDelta: o.ComputeTimeDelta,
		ParseMode:        o.ParseMode,
		MaxAuditGap:      o.MaxAuditGap.String(),
		DateLayouts:      o.DateLayouts,
		TimeLayout:       o.TimeLayout,
		Location:         o.location().String(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
