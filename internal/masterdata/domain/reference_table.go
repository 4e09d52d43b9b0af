package masterdata

import (
	"turnstile-analytics/internal/tabular"
	telemetry "turnstile-analytics/internal/telemetry/domain"
)

// Column names of the reference tables.
const (
	ColumnStation   = "Station"
	ColumnLineName  = "Line Name"
	ColumnDivision  = "Division"
	ColumnLatitude  = "Lat"
	ColumnLongitude = "Lon"
)

// StationSchema is the layout of the stations table.
var StationSchema = tabular.Schema{
	Table: string(RoleStations),
	Columns: []tabular.Column{
		{Name: telemetry.ColumnControlArea, Aliases: []string{"Booth"}},
		{Name: telemetry.ColumnRemoteUnit, Aliases: []string{"Remote"}},
		{Name: telemetry.ColumnSCP, Optional: true},
		{Name: ColumnStation, Aliases: []string{"STATION"}},
		{Name: ColumnLineName, Aliases: []string{"LINENAME", "Line"}, Optional: true},
		{Name: ColumnDivision, Aliases: []string{"DIVISION"}, Optional: true},
	},
}

// CoordinatesSchema is the layout of the coordinates table.
var CoordinatesSchema = tabular.Schema{
	Table: string(RoleCoordinates),
	Columns: []tabular.Column{
		{Name: telemetry.ColumnRemoteUnit, Aliases: []string{"Remote"}},
		{Name: telemetry.ColumnControlArea, Aliases: []string{"Booth"}},
		{Name: telemetry.ColumnSCP, Optional: true},
		{Name: ColumnStation, Aliases: []string{"STATION"}, Optional: true},
		{Name: ColumnLineName, Aliases: []string{"LINENAME", "Line"}, Optional: true},
		{Name: ColumnDivision, Aliases: []string{"DIVISION"}, Optional: true},
		{Name: ColumnLatitude, Aliases: []string{"Latitude", "GTFS Latitude"}},
		{Name: ColumnLongitude, Aliases: []string{"Longitude", "GTFS Longitude"}},
	},
}

// SchemaFor returns the schema of a role.
func SchemaFor(role Role) tabular.Schema {
	if role == RoleCoordinates {
		return CoordinatesSchema
	}
	return StationSchema
}

// ReferenceTable holds one row per key. The first row added for a key wins;
// later rows for the same key are counted in Duplicates.
type ReferenceTable struct {
	Name       string
	Role       Role
	Level      KeyLevel
	Columns    []string
	Duplicates int

	rows  []StationRef
	index map[ReferenceKey]int
}

// NewReferenceTable constructs an empty table.
func NewReferenceTable(name string, role Role, level KeyLevel, columns []string) *ReferenceTable {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &ReferenceTable{
		Name:    name,
		Role:    role,
		Level:   level,
		Columns: cols,
		index:   make(map[ReferenceKey]int),
	}
}

// Add appends ref unless its key is already present. It reports whether the
// row was kept.
func (t *ReferenceTable) Add(ref StationRef) bool {
	if t.Level == UnitLevel {
		ref.Key.SubunitChannelPosition = ""
	}
	if _, ok := t.index[ref.Key]; ok {
		t.Duplicates++
		return false
	}
	t.index[ref.Key] = len(t.rows)
	t.rows = append(t.rows, ref)
	return true
}

// Lookup finds the row matching a device at the table's key level.
func (t *ReferenceTable) Lookup(device telemetry.DeviceKey) (StationRef, bool) {
	if t == nil {
		return StationRef{}, false
	}
	pos, ok := t.index[KeyFor(t.Level, device)]
	if !ok {
		return StationRef{}, false
	}
	return t.rows[pos], true
}

// Len returns the number of distinct keys.
func (t *ReferenceTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Rows returns the kept rows in insertion order.
func (t *ReferenceTable) Rows() []StationRef {
	out := make([]StationRef, len(t.rows))
	copy(out, t.rows)
	return out
}

// Attributes are the reference fields attached to one audit row.
// Empty strings and unknown floats mean no reference row supplied the field.
type Attributes struct {
	Station   string
	LineName  string
	Division  string
	Latitude  tabular.Float
	Longitude tabular.Float
}

// Merge fills fields of a that are still absent from ref.
func (a *Attributes) Merge(ref StationRef) {
	if a.Station == "" {
		a.Station = ref.StationName
	}
	if a.LineName == "" {
		a.LineName = ref.LineName
	}
	if a.Division == "" {
		a.Division = ref.Division
	}
	if !a.Latitude.Valid() {
		a.Latitude = ref.Latitude
	}
	if !a.Longitude.Valid() {
		a.Longitude = ref.Longitude
	}
}
