package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	masterdata "turnstile-analytics/internal/masterdata/domain"
	"turnstile-analytics/internal/tabular"
	telemetry "turnstile-analytics/internal/telemetry/domain"
)

// ReferenceReader loads station and coordinate reference tables from CSV.
type ReferenceReader struct {
	logger *slog.Logger
}

// NewReferenceReader constructs a reader.
func NewReferenceReader(logger *slog.Logger) *ReferenceReader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ReferenceReader{logger: logger}
}

// ReadStations loads a stations table.
func (r *ReferenceReader) ReadStations(ctx context.Context, path string) (*masterdata.ReferenceTable, error) {
	return r.readFile(ctx, path, masterdata.RoleStations)
}

// ReadCoordinates loads a coordinates table.
func (r *ReferenceReader) ReadCoordinates(ctx context.Context, path string) (*masterdata.ReferenceTable, error) {
	return r.readFile(ctx, path, masterdata.RoleCoordinates)
}

func (r *ReferenceReader) readFile(ctx context.Context, path string, role masterdata.Role) (*masterdata.ReferenceTable, error) {
	if path == "" {
		return nil, errors.New("reference reader: empty path")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reference reader: open %s: %w", path, err)
	}
	defer f.Close()
	return r.Decode(ctx, filepath.Base(path), role, f)
}

// Decode reads a reference table. The key is device-level when the header
// carries an SCP column and unit-level otherwise.
func (r *ReferenceReader) Decode(ctx context.Context, name string, role masterdata.Role, src io.Reader) (*masterdata.ReferenceTable, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("reference reader: unknown role %q", role)
	}
	if src == nil {
		return nil, errors.New("reference reader: nil source")
	}
	schema := masterdata.SchemaFor(role)
	if name != "" {
		schema.Table = name
	}

	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	raw, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &tabular.SchemaMismatchError{Table: schema.Table, Missing: []string{telemetry.ColumnControlArea, telemetry.ColumnRemoteUnit}}
		}
		return nil, fmt.Errorf("reference reader: read header: %w", err)
	}
	if len(raw) > 0 {
		raw[0] = strings.TrimPrefix(raw[0], "\ufeff")
	}
	header, err := schema.Resolve(raw)
	if err != nil {
		return nil, err
	}

	level := masterdata.UnitLevel
	if header.Has(telemetry.ColumnSCP) {
		level = masterdata.DeviceLevel
	}
	table := masterdata.NewReferenceTable(schema.Table, role, level, header.Columns())

	// row counts every data record, including skipped blank-key rows.
	for row := 0; ; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reference reader: table %q row %d: %w", schema.Table, row, err)
		}
		ref, err := decodeRef(schema.Table, header, rec, row)
		if err != nil {
			return nil, err
		}
		if ref.Key.ControlArea == "" && ref.Key.RemoteUnit == "" {
			continue
		}
		if err := ref.Validate(); err != nil {
			return nil, fmt.Errorf("reference reader: table %q row %d: %w", schema.Table, row, err)
		}
		table.Add(ref)
	}

	if table.Duplicates > 0 {
		r.logger.Warn("duplicate reference keys ignored",
			"table", table.Name,
			"role", string(role),
			"duplicates", table.Duplicates,
		)
	}
	r.logger.Debug("reference table loaded",
		"table", table.Name,
		"role", string(role),
		"level", level.String(),
		"rows", table.Len(),
	)
	return table, nil
}

func decodeRef(table string, header *tabular.Header, rec []string, row int) (masterdata.StationRef, error) {
	ref := masterdata.StationRef{
		Key: masterdata.ReferenceKey{
			ControlArea:            header.Value(rec, telemetry.ColumnControlArea),
			RemoteUnit:             header.Value(rec, telemetry.ColumnRemoteUnit),
			SubunitChannelPosition: header.Value(rec, telemetry.ColumnSCP),
		},
		StationName: header.Value(rec, masterdata.ColumnStation),
		LineName:    header.Value(rec, masterdata.ColumnLineName),
		Division:    header.Value(rec, masterdata.ColumnDivision),
	}
	var err error
	if ref.Latitude, err = parseCoordinate(table, header, rec, row, masterdata.ColumnLatitude); err != nil {
		return ref, err
	}
	if ref.Longitude, err = parseCoordinate(table, header, rec, row, masterdata.ColumnLongitude); err != nil {
		return ref, err
	}
	return ref, nil
}

func parseCoordinate(table string, header *tabular.Header, rec []string, row int, column string) (tabular.Float, error) {
	value := header.Value(rec, column)
	f, err := tabular.ParseFloat(value)
	if err != nil {
		return f, &tabular.ParseError{Table: table, Row: row, Column: column, Value: value, Err: err}
	}
	return f, nil
}
