package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"turnstile-analytics/internal/analytics/domain/features"
	telemetry "turnstile-analytics/internal/telemetry/domain"
)

// TimestampLayout is the AUDIT_DATE_TIME format.
const TimestampLayout = "2006-01-02 15:04:05"

// WriteFile writes the enriched table to path, replacing any existing file.
func WriteFile(ctx context.Context, path string, table *features.EnrichedTable) error {
	if path == "" {
		return errors.New("enriched writer: empty path")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("enriched writer: create %s: %w", path, err)
	}
	if err := Write(ctx, f, table); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Write encodes the enriched table as CSV. Unknown values are empty cells
// and TIME_DIFF is written in whole seconds. Extra input columns are copied
// through unchanged.
func Write(ctx context.Context, w io.Writer, table *features.EnrichedTable) error {
	if table == nil {
		return features.ErrNilTable
	}
	cw := csv.NewWriter(w)
	header := table.Header()
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("enriched writer: header: %w", err)
	}
	record := make([]string, len(header))
	for i, row := range table.Rows {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		c := 0
		for _, name := range table.Columns {
			record[c] = cell(row, name)
			c++
		}
		for e := range table.ExtraColumns {
			record[c] = ""
			if e < len(row.Record.Extra) {
				record[c] = row.Record.Extra[e]
			}
			c++
		}
		for _, name := range features.DerivedColumns {
			record[c] = cell(row, name)
			c++
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("enriched writer: row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("enriched writer: flush: %w", err)
	}
	return nil
}

func cell(row features.EnrichedRow, column string) string {
	rec := row.Record
	cal := row.Calendar
	switch column {
	case telemetry.ColumnControlArea:
		return rec.Device.ControlArea
	case telemetry.ColumnRemoteUnit:
		return rec.Device.RemoteUnit
	case telemetry.ColumnSCP:
		return rec.Device.SubunitChannelPosition
	case telemetry.ColumnDate:
		return rec.Date
	case telemetry.ColumnTime:
		return rec.Time
	case telemetry.ColumnDescription:
		return rec.Description
	case telemetry.ColumnEntries:
		return rec.Entries.String()
	case telemetry.ColumnExits:
		return rec.Exits.String()
	case features.ColumnAuditDateTime:
		if !cal.Known {
			return ""
		}
		return cal.Timestamp.Format(TimestampLayout)
	case features.ColumnAuditYear:
		return datePart(cal, cal.Year)
	case features.ColumnAuditMonth:
		return datePart(cal, cal.Month)
	case features.ColumnAuditWeek:
		return datePart(cal, cal.ISOWeek)
	case features.ColumnAuditDOW:
		return datePart(cal, cal.Weekday)
	case features.ColumnAuditHour:
		return timePart(cal, cal.Hour)
	case features.ColumnAuditMinute:
		return timePart(cal, cal.Minute)
	case features.ColumnEntriesDiff:
		return row.EntriesDelta.String()
	case features.ColumnExitsDiff:
		return row.ExitsDelta.String()
	case features.ColumnBusyness:
		return row.Busyness.String()
	case features.ColumnTimeDiff:
		return row.TimeDelta.String()
	case features.ColumnStation:
		return row.Reference.Station
	case features.ColumnLineName:
		return row.Reference.LineName
	case features.ColumnDivision:
		return row.Reference.Division
	case features.ColumnLat:
		return row.Reference.Latitude.String()
	case features.ColumnLon:
		return row.Reference.Longitude.String()
	default:
		return ""
	}
}

func datePart(cal features.Calendar, v int) string {
	if !cal.Known || !cal.HasDate {
		return ""
	}
	return strconv.Itoa(v)
}

func timePart(cal features.Calendar, v int) string {
	if !cal.Known || !cal.HasTime {
		return ""
	}
	return strconv.Itoa(v)
}
