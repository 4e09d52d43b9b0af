package features

import (
	masterdata "turnstile-analytics/internal/masterdata/domain"
	"turnstile-analytics/internal/tabular"
	telemetry "turnstile-analytics/internal/telemetry/domain"
)

// Derived column names appended to the audit columns.
const (
	ColumnAuditDateTime = "AUDIT_DATE_TIME"
	ColumnAuditYear     = "AUDIT_YEAR"
	ColumnAuditMonth    = "AUDIT_MONTH"
	ColumnAuditWeek     = "AUDIT_WEEK"
	ColumnAuditDOW      = "AUDIT_DOW"
	ColumnAuditHour     = "AUDIT_HOUR"
	ColumnAuditMinute   = "AUDIT_MINUTE"
	ColumnEntriesDiff   = "ENTRIES_DIFF"
	ColumnExitsDiff     = "EXITS_DIFF"
	ColumnBusyness      = "BUSYNESS"
	ColumnTimeDiff      = "TIME_DIFF"
	ColumnStation       = "REF_STATION"
	ColumnLineName      = "REF_LINE_NAME"
	ColumnDivision      = "REF_DIVISION"
	ColumnLat           = "REF_LAT"
	ColumnLon           = "REF_LON"
)

// inputSuffix marks an input column whose name collides with an earlier one.
const inputSuffix = "_INPUT"

// DerivedColumns lists the appended columns in output order.
var DerivedColumns = []string{
	ColumnAuditDateTime,
	ColumnAuditYear,
	ColumnAuditMonth,
	ColumnAuditWeek,
	ColumnAuditDOW,
	ColumnAuditHour,
	ColumnAuditMinute,
	ColumnEntriesDiff,
	ColumnExitsDiff,
	ColumnBusyness,
	ColumnTimeDiff,
	ColumnStation,
	ColumnLineName,
	ColumnDivision,
	ColumnLat,
	ColumnLon,
}

// EnrichedRow is an audit record with every derived field attached.
type EnrichedRow struct {
	Record       telemetry.AuditRecord
	Calendar     Calendar
	EntriesDelta tabular.Count
	ExitsDelta   tabular.Count
	Busyness     tabular.Count
	TimeDelta    tabular.Duration
	Reference    masterdata.Attributes
}

// EnrichedTable is the pipeline output. Rows[i] corresponds to the i-th
// input record. ExtraColumns are the input columns outside the audit schema;
// their values travel on Record.Extra.
type EnrichedTable struct {
	Name         string
	Columns      []string
	ExtraColumns []string
	Rows         []EnrichedRow
	Quality      QualityReport
}

// Header returns the schema columns, then ExtraColumns, then DerivedColumns.
// An extra column whose name is already taken gets an _INPUT suffix.
func (t *EnrichedTable) Header() []string {
	out := make([]string, 0, len(t.Columns)+len(t.ExtraColumns)+len(DerivedColumns))
	taken := make(map[string]struct{}, cap(out))
	for _, name := range t.Columns {
		taken[name] = struct{}{}
	}
	for _, name := range DerivedColumns {
		taken[name] = struct{}{}
	}
	out = append(out, t.Columns...)
	for _, name := range t.ExtraColumns {
		for {
			if _, ok := taken[name]; !ok {
				break
			}
			name += inputSuffix
		}
		taken[name] = struct{}{}
		out = append(out, name)
	}
	return append(out, DerivedColumns...)
}

// Len returns the number of rows.
func (t *EnrichedTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}
