package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	masterdata "turnstile-analytics/internal/masterdata/domain"
	"turnstile-analytics/internal/tabular"
	telemetry "turnstile-analytics/internal/telemetry/domain"
)

const defaultReferenceTable = "station_references"

// ReferenceRepository is a Postgres implementation for station references.
type ReferenceRepository struct {
	db    DBTX
	table string
}

// NewReferenceRepository constructs a repository.
func NewReferenceRepository(db DBTX, opts ...ReferenceOption) *ReferenceRepository {
	repo := &ReferenceRepository{db: db, table: defaultReferenceTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ReferenceOption configures the repository.
type ReferenceOption func(*ReferenceRepository)

// WithReferenceTable overrides the default table name.
func WithReferenceTable(table string) ReferenceOption {
	return func(repo *ReferenceRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Load reads every reference row stored for role. Rows carrying an SCP make
// the table device-level.
func (r *ReferenceRepository) Load(ctx context.Context, role masterdata.Role) (*masterdata.ReferenceTable, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reference repo: nil db")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("reference repo: unknown role %q", role)
	}

	query := fmt.Sprintf(`
SELECT control_area, remote_unit, scp, station, line_name, division, latitude, longitude
FROM %s
WHERE role = $1
ORDER BY ordinal`, r.table)

	rows, err := r.db.QueryContext(ctx, query, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		refs  []masterdata.StationRef
		level = masterdata.UnitLevel
	)
	for rows.Next() {
		var (
			ref      masterdata.StationRef
			lat, lon sql.NullFloat64
		)
		if err := rows.Scan(
			&ref.Key.ControlArea,
			&ref.Key.RemoteUnit,
			&ref.Key.SubunitChannelPosition,
			&ref.StationName,
			&ref.LineName,
			&ref.Division,
			&lat,
			&lon,
		); err != nil {
			return nil, err
		}
		if lat.Valid {
			ref.Latitude = tabular.KnownFloat(lat.Float64)
		}
		if lon.Valid {
			ref.Longitude = tabular.KnownFloat(lon.Float64)
		}
		if ref.Key.SubunitChannelPosition != "" {
			level = masterdata.DeviceLevel
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	table := masterdata.NewReferenceTable(r.table, role, level, referenceColumns(role, level))
	for _, ref := range refs {
		table.Add(ref)
	}
	return table, nil
}

// Save upserts the rows of a reference table, preserving row order.
func (r *ReferenceRepository) Save(ctx context.Context, table *masterdata.ReferenceTable) error {
	if r == nil || r.db == nil {
		return errors.New("reference repo: nil db")
	}
	if table == nil {
		return errors.New("reference repo: nil table")
	}
	if !table.Role.Valid() {
		return fmt.Errorf("reference repo: unknown role %q", table.Role)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	role,
	control_area,
	remote_unit,
	scp,
	ordinal,
	station,
	line_name,
	division,
	latitude,
	longitude
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
)
ON CONFLICT (role, control_area, remote_unit, scp)
DO UPDATE SET
	ordinal = EXCLUDED.ordinal,
	station = EXCLUDED.station,
	line_name = EXCLUDED.line_name,
	division = EXCLUDED.division,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	updated_at = NOW()`, r.table)

	for i, ref := range table.Rows() {
		if err := ref.Validate(); err != nil {
			return err
		}
		if _, err := r.db.ExecContext(
			ctx,
			query,
			string(table.Role),
			ref.Key.ControlArea,
			ref.Key.RemoteUnit,
			ref.Key.SubunitChannelPosition,
			i,
			ref.StationName,
			ref.LineName,
			ref.Division,
			nullFloat(ref.Latitude),
			nullFloat(ref.Longitude),
		); err != nil {
			return fmt.Errorf("reference repo: save %s/%s: %w", ref.Key.ControlArea, ref.Key.RemoteUnit, err)
		}
	}
	return nil
}

func referenceColumns(role masterdata.Role, level masterdata.KeyLevel) []string {
	cols := []string{telemetry.ColumnControlArea, telemetry.ColumnRemoteUnit}
	if level == masterdata.DeviceLevel {
		cols = append(cols, telemetry.ColumnSCP)
	}
	cols = append(cols, masterdata.ColumnStation, masterdata.ColumnLineName, masterdata.ColumnDivision)
	if role == masterdata.RoleCoordinates {
		cols = append(cols, masterdata.ColumnLatitude, masterdata.ColumnLongitude)
	}
	return cols
}

func nullFloat(f tabular.Float) sql.NullFloat64 {
	v, ok := f.Get()
	return sql.NullFloat64{Float64: v, Valid: ok}
}
