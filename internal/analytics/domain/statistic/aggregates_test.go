package statistic

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"turnstile-analytics/internal/analytics/domain/features"
	masterdata "turnstile-analytics/internal/masterdata/domain"
	"turnstile-analytics/internal/tabular"
	telemetry "turnstile-analytics/internal/telemetry/domain"
)

func row(station, scp string, ts time.Time, entries, exits tabular.Count) features.EnrichedRow {
	return features.EnrichedRow{
		Record: telemetry.AuditRecord{
			Device: telemetry.DeviceKey{ControlArea: "A002", RemoteUnit: "R051", SubunitChannelPosition: scp},
		},
		Calendar:     features.Calendar{Timestamp: ts, Known: true},
		EntriesDelta: entries,
		ExitsDelta:   exits,
		Busyness:     features.Busyness(entries, exits),
		Reference:    masterdata.Attributes{Station: station},
	}
}

func day(d, hour int) time.Time {
	return time.Date(2019, 9, d, hour, 0, 0, 0, time.UTC)
}

func known(v int64) tabular.Count { return tabular.KnownCount(v) }

func sampleTable() *features.EnrichedTable {
	return &features.EnrichedTable{
		Name: "sample",
		Rows: []features.EnrichedRow{
			row("59 ST", "00", day(28, 0), tabular.UnknownCount(), tabular.UnknownCount()),
			row("59 ST", "00", day(28, 4), known(50), known(20)),
			row("59 ST", "01", day(28, 8), known(10), tabular.UnknownCount()),
			row("59 ST", "01", day(29, 8), known(30), known(30)),
			row("5 AV", "00", day(28, 8), known(0), known(0)),
			row("5 AV", "00", day(29, 8), known(5), known(5)),
			row("", "09", day(29, 8), known(1), known(1)),
		},
	}
}

func TestUnitsPerStation(t *testing.T) {
	got, err := UnitsPerStation(sampleTable())
	if err != nil {
		t.Fatalf("units per station: %v", err)
	}
	want := []StationUnits{{Station: "59 ST", Units: 2}, {Station: "5 AV", Units: 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("units mismatch (-want +got):\n%s", diff)
	}
}

func TestSystemAndDailyTotals(t *testing.T) {
	totals, err := SystemTotals(sampleTable(), day(28, 13))
	if err != nil {
		t.Fatalf("system totals: %v", err)
	}
	want := Totals{Period: day(28, 0), Entries: 60, Exits: 20, Busyness: 70, Contributing: 3}
	if diff := cmp.Diff(want, totals); diff != "" {
		t.Fatalf("totals mismatch (-want +got):\n%s", diff)
	}

	daily, err := DailyTotals(sampleTable())
	if err != nil {
		t.Fatalf("daily totals: %v", err)
	}
	if len(daily) != 2 || daily[1].Busyness != 72 {
		t.Fatalf("unexpected daily totals: %+v", daily)
	}
}

func TestMonthlySummaryAndGrowth(t *testing.T) {
	table := sampleTable()
	table.Rows = append(table.Rows,
		row("59 ST", "00", time.Date(2019, 10, 1, 8, 0, 0, 0, time.UTC), known(100), known(100)),
		row("5 AV", "00", time.Date(2019, 10, 1, 8, 0, 0, 0, time.UTC), known(1), known(0)),
	)

	summaries, err := MonthlySummary(table)
	if err != nil {
		t.Fatalf("monthly summary: %v", err)
	}
	if len(summaries) != 4 {
		t.Fatalf("expected 4 station-months, got %d", len(summaries))
	}
	sep59 := summaries[1]
	if sep59.Station != "59 ST" || sep59.Month != "2019-09" {
		t.Fatalf("unexpected order: %+v", summaries)
	}
	if sep59.Count != 2 || sep59.Mean != 65 || sep59.Min != 60 || sep59.Max != 70 {
		t.Fatalf("unexpected summary: %+v", sep59.Summary)
	}
	if std, ok := sep59.Std.Get(); !ok || math.Abs(std-math.Sqrt(50)) > 1e-9 {
		t.Fatalf("unexpected std: %v", sep59.Std)
	}

	top, bottom, err := StationGrowth(table, 1)
	if err != nil {
		t.Fatalf("growth: %v", err)
	}
	if len(top) != 1 || top[0].Station != "59 ST" || top[0].Change != 135 {
		t.Fatalf("unexpected top growth: %+v", top)
	}
	if len(bottom) != 1 || bottom[0].Station != "5 AV" {
		t.Fatalf("unexpected bottom growth: %+v", bottom)
	}
}

func TestRollingMean(t *testing.T) {
	got, err := RollingMean([]float64{1, 2, 3, 4}, 2)
	if err != nil {
		t.Fatalf("rolling mean: %v", err)
	}
	if got[0].Valid() {
		t.Fatalf("expected leading value to be unknown")
	}
	for i, want := range []float64{0, 1.5, 2.5, 3.5} {
		if i == 0 {
			continue
		}
		if v, _ := got[i].Get(); v != want {
			t.Fatalf("position %d: expected %v, got %v", i, want, v)
		}
	}
	if _, err := RollingMean(nil, 0); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestBusiestHour(t *testing.T) {
	hour, busyness, err := BusiestHour(sampleTable(), "59 ST")
	if err != nil {
		t.Fatalf("busiest hour: %v", err)
	}
	if hour != 4 || busyness != 70 {
		t.Fatalf("expected hour 4 with 70, got %d with %d", hour, busyness)
	}
	if _, _, err := BusiestHour(sampleTable(), "NOWHERE"); !errors.Is(err, ErrUnknownStation) {
		t.Fatalf("expected ErrUnknownStation, got %v", err)
	}
}

func TestClosedStations(t *testing.T) {
	closed, err := ClosedStations(sampleTable())
	if err != nil {
		t.Fatalf("closed stations: %v", err)
	}
	want := []ClosedDay{{Day: day(28, 0), Stations: []string{"5 AV"}}}
	if diff := cmp.Diff(want, closed); diff != "" {
		t.Fatalf("closed mismatch (-want +got):\n%s", diff)
	}
}

func TestNilTable(t *testing.T) {
	if _, err := DailyTotals(nil); !errors.Is(err, ErrNilTable) {
		t.Fatalf("expected ErrNilTable, got %v", err)
	}
}

func TestNewTimeKey(t *testing.T) {
	key, err := NewTimeKey(GranularityMonth, day(28, 4))
	if err != nil || key != "2019-09" {
		t.Fatalf("expected 2019-09, got %q (%v)", key, err)
	}
	if _, err := NewTimeKey("WEEK", day(28, 4)); !errors.Is(err, ErrInvalidGranularity) {
		t.Fatalf("expected ErrInvalidGranularity, got %v", err)
	}
}
