package csvfile

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"turnstile-analytics/internal/analytics/domain/features"
	masterdata "turnstile-analytics/internal/masterdata/domain"
	"turnstile-analytics/internal/tabular"
	telemetry "turnstile-analytics/internal/telemetry/domain"
)

func enrichedTable() *features.EnrichedTable {
	device := telemetry.DeviceKey{ControlArea: "A002", RemoteUnit: "R051", SubunitChannelPosition: "02-00-00"}
	return &features.EnrichedTable{
		Name:         "audits",
		Columns:      []string{"C/A", "UNIT", "SCP", "DATE", "TIME", "ENTRIES", "EXITS"},
		ExtraColumns: []string{"STATION", "LINENAME"},
		Rows: []features.EnrichedRow{
			{
				Record: telemetry.AuditRecord{Device: device, Date: "09/28/2019", Time: "00:00:00",
					Entries: tabular.KnownCount(1000), Exits: tabular.KnownCount(500),
					Extra: []string{"59 ST", "NQR456W"}},
				Calendar: features.Calendar{
					Timestamp: time.Date(2019, 9, 28, 0, 0, 0, 0, time.UTC), Known: true,
					HasDate: true, Year: 2019, Month: 9, ISOWeek: 39, Weekday: 5,
					HasTime: true, Hour: 0, Minute: 0,
				},
				Reference: masterdata.Attributes{Station: "59 ST", Latitude: tabular.KnownFloat(40.762796)},
			},
			{
				Record: telemetry.AuditRecord{Device: device, Date: "09/28/2019", Time: "04:00:00",
					Entries: tabular.KnownCount(1050), Exits: tabular.KnownCount(520)},
				Calendar: features.Calendar{
					Timestamp: time.Date(2019, 9, 28, 4, 0, 0, 0, time.UTC), Known: true,
					HasDate: true, Year: 2019, Month: 9, ISOWeek: 39, Weekday: 5,
				},
				EntriesDelta: tabular.KnownCount(50),
				ExitsDelta:   tabular.KnownCount(20),
				Busyness:     tabular.KnownCount(70),
				TimeDelta:    tabular.KnownDuration(4 * time.Hour),
			},
		},
	}
}

func TestWriteEnrichedCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(context.Background(), &buf, enrichedTable()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	wantHeader := append([]string{"C/A", "UNIT", "SCP", "DATE", "TIME", "ENTRIES", "EXITS", "STATION", "LINENAME"}, features.DerivedColumns...)
	if diff := cmp.Diff(wantHeader, records[0]); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}

	first := []string{
		"A002", "R051", "02-00-00", "09/28/2019", "00:00:00", "1000", "500",
		"59 ST", "NQR456W",
		"2019-09-28 00:00:00", "2019", "9", "39", "5", "0", "0",
		"", "", "", "",
		"59 ST", "", "", "40.762796", "",
	}
	if diff := cmp.Diff(first, records[1]); diff != "" {
		t.Fatalf("first row mismatch (-want +got):\n%s", diff)
	}

	second := records[2]
	require.Equal(t, "", second[7], "short Extra leaves the input cell empty")
	require.Equal(t, "50", second[16])
	require.Equal(t, "20", second[17])
	require.Equal(t, "70", second[18])
	require.Equal(t, "14400", second[19])
	require.Equal(t, "", second[14], "hour is empty when time parts are disabled")
}

func TestWriteEnrichedCSVExtraColumnCollision(t *testing.T) {
	table := enrichedTable()
	table.ExtraColumns = []string{features.ColumnStation, "ENTRIES"}

	var buf bytes.Buffer
	require.NoError(t, Write(context.Background(), &buf, table))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)

	require.Equal(t, features.ColumnStation+"_INPUT", records[0][7])
	require.Equal(t, "ENTRIES_INPUT", records[0][8])
	require.Equal(t, "59 ST", records[1][7])
	require.Equal(t, "59 ST", records[1][len(records[1])-5], "derived reference station stays in place")
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enriched.csv")
	require.NoError(t, WriteFile(context.Background(), path, enrichedTable()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "AUDIT_DATE_TIME")
}

func TestWriteNilTable(t *testing.T) {
	require.ErrorIs(t, Write(context.Background(), &bytes.Buffer{}, nil), features.ErrNilTable)
}
