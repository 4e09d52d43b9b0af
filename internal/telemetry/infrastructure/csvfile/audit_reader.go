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

	"turnstile-analytics/internal/tabular"
	telemetry "turnstile-analytics/internal/telemetry/domain"
)

// errNegativeCounter rejects cumulative counters below zero.
var errNegativeCounter = errors.New("negative cumulative counter")

// AuditReader loads long-format audit tables from CSV files.
type AuditReader struct {
	logger *slog.Logger
}

// NewAuditReader constructs a reader.
func NewAuditReader(logger *slog.Logger) *AuditReader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &AuditReader{logger: logger}
}

// ReadAudits opens path and decodes it. The table is named after the file.
func (r *AuditReader) ReadAudits(ctx context.Context, path string) (*telemetry.AuditTable, error) {
	if path == "" {
		return nil, errors.New("audit reader: empty path")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit reader: open %s: %w", path, err)
	}
	defer f.Close()
	return r.Decode(ctx, filepath.Base(path), f)
}

// Decode reads a header row followed by audit records.
// Columns are located by name; an unnamed leading index column is ignored.
func (r *AuditReader) Decode(ctx context.Context, table string, src io.Reader) (*telemetry.AuditTable, error) {
	if src == nil {
		return nil, errors.New("audit reader: nil source")
	}
	schema := telemetry.AuditSchema
	if table != "" {
		schema.Table = table
	}

	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1

	raw, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &tabular.SchemaMismatchError{Table: schema.Table, Missing: requiredNames(schema)}
		}
		return nil, fmt.Errorf("audit reader: read header: %w", err)
	}
	if len(raw) > 0 {
		raw[0] = strings.TrimPrefix(raw[0], "\ufeff")
	}
	header, err := schema.Resolve(raw)
	if err != nil {
		return nil, err
	}

	extras := header.Unresolved(raw)
	out := &telemetry.AuditTable{Name: schema.Table, Columns: header.Columns()}
	for _, pos := range extras {
		out.ExtraColumns = append(out.ExtraColumns, strings.TrimSpace(raw[pos]))
	}
	row := 0
	for {
		if row%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("audit reader: table %q row %d: %w", schema.Table, row, err)
		}
		if blankRow(rec) {
			continue
		}
		record, err := decodeRecord(schema.Table, header, rec, row)
		if err != nil {
			return nil, err
		}
		if len(extras) > 0 {
			record.Extra = make([]string, len(extras))
			for i, pos := range extras {
				if pos < len(rec) {
					record.Extra[i] = strings.TrimSpace(rec[pos])
				}
			}
		}
		out.Records = append(out.Records, record)
		row++
	}

	r.logger.Debug("audit table loaded", "table", out.Name, "rows", len(out.Records))
	return out, nil
}

func decodeRecord(table string, header *tabular.Header, rec []string, row int) (telemetry.AuditRecord, error) {
	record := telemetry.AuditRecord{
		Row: row,
		Device: telemetry.DeviceKey{
			ControlArea:            header.Value(rec, telemetry.ColumnControlArea),
			RemoteUnit:             header.Value(rec, telemetry.ColumnRemoteUnit),
			SubunitChannelPosition: header.Value(rec, telemetry.ColumnSCP),
		},
		Date:        header.Value(rec, telemetry.ColumnDate),
		Time:        header.Value(rec, telemetry.ColumnTime),
		Description: header.Value(rec, telemetry.ColumnDescription),
	}

	var err error
	if record.Entries, err = parseCounter(table, header, rec, row, telemetry.ColumnEntries, record.Device); err != nil {
		return record, err
	}
	if record.Exits, err = parseCounter(table, header, rec, row, telemetry.ColumnExits, record.Device); err != nil {
		return record, err
	}
	return record, nil
}

func parseCounter(table string, header *tabular.Header, rec []string, row int, column string, device telemetry.DeviceKey) (tabular.Count, error) {
	value := header.Value(rec, column)
	count, err := tabular.ParseCount(value)
	if v, ok := count.Get(); err == nil && ok && v < 0 {
		err = errNegativeCounter
	}
	if err != nil {
		return count, &tabular.ParseError{
			Table:  table,
			Row:    row,
			Column: column,
			Value:  value,
			Device: device.String(),
			Err:    err,
		}
	}
	return count, nil
}

func blankRow(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func requiredNames(schema tabular.Schema) []string {
	names := make([]string, 0, len(schema.Columns))
	for _, col := range schema.Columns {
		if !col.Optional {
			names = append(names, col.Name)
		}
	}
	return names
}
