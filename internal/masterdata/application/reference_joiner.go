package application

import (
	"context"
	"errors"
	"io"
	"log/slog"

	masterdata "turnstile-analytics/internal/masterdata/domain"
	"turnstile-analytics/internal/tabular"
	telemetry "turnstile-analytics/internal/telemetry/domain"
)

// JoinStats summarizes how one reference table matched the audit rows.
type JoinStats struct {
	Table     string
	Role      masterdata.Role
	Matched   int
	Unmatched int
}

// JoinResult holds reference attributes aligned with the audit rows.
type JoinResult struct {
	Attributes []masterdata.Attributes
	Stats      []JoinStats
}

// ReferenceJoiner left-joins reference tables onto audit records.
type ReferenceJoiner struct {
	logger *slog.Logger
}

// NewReferenceJoiner constructs a joiner.
func NewReferenceJoiner(logger *slog.Logger) *ReferenceJoiner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ReferenceJoiner{logger: logger}
}

// Join attaches reference attributes to every audit row. Attributes[i]
// belongs to audits.Records[i]; rows without a match keep absent attributes.
// Tables are consulted in order and the first table supplying a field wins.
func (j *ReferenceJoiner) Join(ctx context.Context, audits *telemetry.AuditTable, refs ...*masterdata.ReferenceTable) (*JoinResult, error) {
	if audits == nil {
		return nil, errors.New("reference joiner: nil audit table")
	}
	tables := make([]*masterdata.ReferenceTable, 0, len(refs))
	for _, ref := range refs {
		if ref == nil {
			continue
		}
		keys := ref.Level.KeyColumns()
		if err := tabular.RequireColumns(audits.Name, audits.Columns, keys...); err != nil {
			return nil, err
		}
		if err := tabular.RequireColumns(ref.Name, ref.Columns, keys...); err != nil {
			return nil, err
		}
		tables = append(tables, ref)
	}

	result := &JoinResult{
		Attributes: make([]masterdata.Attributes, len(audits.Records)),
		Stats:      make([]JoinStats, len(tables)),
	}
	for t, ref := range tables {
		result.Stats[t] = JoinStats{Table: ref.Name, Role: ref.Role}
	}
	if len(tables) == 0 {
		return result, nil
	}

	for i, record := range audits.Records {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for t, ref := range tables {
			match, ok := ref.Lookup(record.Device)
			if !ok {
				result.Stats[t].Unmatched++
				continue
			}
			result.Stats[t].Matched++
			result.Attributes[i].Merge(match)
		}
	}

	for _, stat := range result.Stats {
		if stat.Unmatched > 0 {
			j.logger.Warn("audit rows without reference match",
				"table", stat.Table,
				"role", string(stat.Role),
				"unmatched", stat.Unmatched,
				"matched", stat.Matched,
			)
		}
	}
	return result, nil
}

// Unmatched returns the total of unmatched rows across tables.
func (r *JoinResult) Unmatched() int {
	if r == nil {
		return 0
	}
	total := 0
	for _, stat := range r.Stats {
		total += stat.Unmatched
	}
	return total
}
