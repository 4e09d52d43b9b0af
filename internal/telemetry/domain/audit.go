package telemetry

import (
	"context"
	"strings"

	"turnstile-analytics/internal/tabular"
)

// Column names of the long-format audit table.
const (
	ColumnControlArea = "C/A"
	ColumnRemoteUnit  = "UNIT"
	ColumnSCP         = "SCP"
	ColumnDate        = "DATE"
	ColumnTime        = "TIME"
	ColumnDescription = "DESC"
	ColumnEntries     = "ENTRIES"
	ColumnExits       = "EXITS"
)

// AuditSchema is the named-field layout of the long-format audit table.
var AuditSchema = tabular.Schema{
	Table: "audits",
	Columns: []tabular.Column{
		{Name: ColumnControlArea, Aliases: []string{"controlArea", "Booth"}},
		{Name: ColumnRemoteUnit, Aliases: []string{"remoteUnit", "Remote"}},
		{Name: ColumnSCP, Aliases: []string{"subunitChannelPosition"}},
		{Name: ColumnDate},
		{Name: ColumnTime},
		{Name: ColumnDescription, Aliases: []string{"DESCRIPTION"}, Optional: true},
		{Name: ColumnEntries, Aliases: []string{"cumulativeEntries"}},
		{Name: ColumnExits, Aliases: []string{"EXIT", "cumulativeExits"}},
	},
}

// DeviceKey identifies one physical turnstile.
type DeviceKey struct {
	ControlArea            string
	RemoteUnit             string
	SubunitChannelPosition string
}

// String renders the key as C/A/UNIT/SCP.
func (k DeviceKey) String() string {
	return k.ControlArea + "/" + k.RemoteUnit + "/" + k.SubunitChannelPosition
}

// Compare orders keys by control area, remote unit, then SCP.
func (k DeviceKey) Compare(other DeviceKey) int {
	if c := strings.Compare(k.ControlArea, other.ControlArea); c != 0 {
		return c
	}
	if c := strings.Compare(k.RemoteUnit, other.RemoteUnit); c != 0 {
		return c
	}
	return strings.Compare(k.SubunitChannelPosition, other.SubunitChannelPosition)
}

// AuditRecord is one raw audit observation. Records are immutable inputs.
type AuditRecord struct {
	Row         int
	Device      DeviceKey
	Date        string
	Time        string
	Description string
	Entries     tabular.Count
	Exits       tabular.Count
	// Extra holds the cells of AuditTable.ExtraColumns, in the same order.
	Extra []string
}

// AuditTable is a long-format record table from one source.
// Columns holds the schema columns present in the source header;
// ExtraColumns holds every other named source column, in source order.
type AuditTable struct {
	Name         string
	Columns      []string
	ExtraColumns []string
	Records      []AuditRecord
}

// Len returns the number of records.
func (t *AuditTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// AuditReader loads an audit table from a named source.
type AuditReader interface {
	ReadAudits(ctx context.Context, source string) (*AuditTable, error)
}
