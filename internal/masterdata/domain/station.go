package masterdata

import (
	"context"
	"errors"
	"math"

	"turnstile-analytics/internal/tabular"
	telemetry "turnstile-analytics/internal/telemetry/domain"
)

// Role names what a reference table contributes to the join.
type Role string

const (
	RoleStations    Role = "stations"
	RoleCoordinates Role = "coordinates"
)

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	return r == RoleStations || r == RoleCoordinates
}

// KeyLevel is the granularity a reference table is keyed at.
type KeyLevel int

const (
	// UnitLevel keys by (C/A, UNIT); every SCP of the unit shares one row.
	UnitLevel KeyLevel = iota
	// DeviceLevel keys by the full (C/A, UNIT, SCP) device key.
	DeviceLevel
)

func (l KeyLevel) String() string {
	if l == DeviceLevel {
		return "device"
	}
	return "unit"
}

// KeyColumns returns the record columns the level joins on.
func (l KeyLevel) KeyColumns() []string {
	if l == DeviceLevel {
		return []string{telemetry.ColumnControlArea, telemetry.ColumnRemoteUnit, telemetry.ColumnSCP}
	}
	return []string{telemetry.ColumnControlArea, telemetry.ColumnRemoteUnit}
}

// ReferenceKey is the join key of a reference row. SubunitChannelPosition is
// empty for unit-level tables.
type ReferenceKey struct {
	ControlArea            string
	RemoteUnit             string
	SubunitChannelPosition string
}

// KeyFor projects a device key onto the given level.
func KeyFor(level KeyLevel, device telemetry.DeviceKey) ReferenceKey {
	key := ReferenceKey{ControlArea: device.ControlArea, RemoteUnit: device.RemoteUnit}
	if level == DeviceLevel {
		key.SubunitChannelPosition = device.SubunitChannelPosition
	}
	return key
}

// StationRef is one row of a station or coordinates reference table.
// Empty strings and unknown floats are absent attributes.
type StationRef struct {
	Key         ReferenceKey
	StationName string
	LineName    string
	Division    string
	Latitude    tabular.Float
	Longitude   tabular.Float
}

// Validate checks reference row invariants.
func (s StationRef) Validate() error {
	if s.Key.ControlArea == "" {
		return errors.New("station ref: empty control area")
	}
	if s.Key.RemoteUnit == "" {
		return errors.New("station ref: empty remote unit")
	}
	if lat, ok := s.Latitude.Get(); ok && (math.IsNaN(lat) || lat < -90 || lat > 90) {
		return errors.New("station ref: latitude out of range")
	}
	if lon, ok := s.Longitude.Get(); ok && (math.IsNaN(lon) || lon < -180 || lon > 180) {
		return errors.New("station ref: longitude out of range")
	}
	return nil
}

// ReferenceRepository loads and stores reference tables.
type ReferenceRepository interface {
	Load(ctx context.Context, role Role) (*ReferenceTable, error)
	Save(ctx context.Context, table *ReferenceTable) error
}
