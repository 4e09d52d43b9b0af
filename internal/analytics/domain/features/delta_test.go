package features

import (
	"math"
	"testing"
	"time"

	"turnstile-analytics/internal/tabular"
	telemetry "turnstile-analytics/internal/telemetry/domain"
)

var deviceA = telemetry.DeviceKey{ControlArea: "A002", RemoteUnit: "R051", SubunitChannelPosition: "02-00-00"}
var deviceB = telemetry.DeviceKey{ControlArea: "A002", RemoteUnit: "R051", SubunitChannelPosition: "02-00-01"}

func record(row int, device telemetry.DeviceKey, entries, exits int64) telemetry.AuditRecord {
	return telemetry.AuditRecord{
		Row:     row,
		Device:  device,
		Entries: tabular.KnownCount(entries),
		Exits:   tabular.KnownCount(exits),
	}
}

func at(hour int) time.Time {
	return time.Date(2019, 9, 28, hour, 0, 0, 0, time.UTC)
}

func TestReconcileExampleScenario(t *testing.T) {
	records := []telemetry.AuditRecord{
		record(0, deviceA, 1000, 500),
		record(1, deviceA, 1050, 520),
		record(2, deviceA, 980, 540),
	}
	timestamps := []time.Time{at(0), at(4), at(8)}
	p := PartitionRecords(records, timestamps, nil)
	out := make([]Delta, len(records))

	warnings := NewReconciler(DefaultOptions()).ReconcileGroup(p.Groups[0], records, timestamps, out)

	if out[0].Entries.Valid() || out[0].Exits.Valid() || out[0].Time.Valid() {
		t.Fatalf("expected first row to be null, got %+v", out[0])
	}
	if out[1].Entries != tabular.KnownCount(50) || out[1].Exits != tabular.KnownCount(20) {
		t.Fatalf("unexpected row 1 deltas: %+v", out[1])
	}
	if got := Busyness(out[1].Entries, out[1].Exits); got != tabular.KnownCount(70) {
		t.Fatalf("expected busyness 70, got %s", got)
	}
	if out[2].Entries.Valid() {
		t.Fatalf("expected negative entries delta to be null")
	}
	if out[2].Exits != tabular.KnownCount(20) {
		t.Fatalf("expected exits delta 20, got %s", out[2].Exits)
	}
	if Busyness(out[2].Entries, out[2].Exits).Valid() {
		t.Fatalf("expected busyness null when entries delta is null")
	}
	if d, ok := out[2].Time.Get(); !ok || d != 4*time.Hour {
		t.Fatalf("expected 4h time delta, got %v", out[2].Time)
	}
	if warnings.Count(WarningEntriesNegative) != 1 {
		t.Fatalf("expected one negative entries warning, got %d", warnings.Count(WarningEntriesNegative))
	}
}

func TestReconcileBounds(t *testing.T) {
	tests := []struct {
		name    string
		prev    int64
		cur     int64
		want    tabular.Count
		warning string
	}{
		{name: "zero delta", prev: 100, cur: 100, want: tabular.KnownCount(0)},
		{name: "just below bound", prev: 0, cur: 9999, want: tabular.KnownCount(9999)},
		{name: "at bound", prev: 0, cur: 10000, warning: WarningEntriesOversized},
		{name: "counter reset", prev: 5000, cur: 10, warning: WarningEntriesNegative},
		{name: "wrap at int64 limits", prev: math.MaxInt64, cur: math.MinInt64, warning: WarningEntriesNegative},
		{name: "difference beyond int64", prev: -1, cur: math.MaxInt64, warning: WarningEntriesOversized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := []telemetry.AuditRecord{record(0, deviceA, tt.prev, 0), record(1, deviceA, tt.cur, 0)}
			timestamps := []time.Time{at(0), at(4)}
			out := make([]Delta, 2)
			group := Group{Device: deviceA, Rows: []int{0, 1}}

			warnings := NewReconciler(DefaultOptions()).ReconcileGroup(group, records, timestamps, out)
			if out[1].Entries != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, out[1].Entries)
			}
			if tt.warning != "" && warnings.Count(tt.warning) != 1 {
				t.Fatalf("expected warning %s", tt.warning)
			}
		})
	}
}

func TestReconcileConfigurableBound(t *testing.T) {
	opts := DefaultOptions()
	opts.UpperBound = 100
	records := []telemetry.AuditRecord{record(0, deviceA, 0, 0), record(1, deviceA, 100, 99)}
	out := make([]Delta, 2)
	NewReconciler(opts).ReconcileGroup(Group{Device: deviceA, Rows: []int{0, 1}}, records, []time.Time{at(0), at(4)}, out)
	if out[1].Entries.Valid() {
		t.Fatalf("expected delta equal to bound to be null")
	}
	if out[1].Exits != tabular.KnownCount(99) {
		t.Fatalf("expected exits 99, got %s", out[1].Exits)
	}
}

func TestReconcileUnknownCounter(t *testing.T) {
	records := []telemetry.AuditRecord{
		record(0, deviceA, 100, 50),
		{Row: 1, Device: deviceA, Entries: tabular.UnknownCount(), Exits: tabular.KnownCount(60)},
		record(2, deviceA, 120, 70),
	}
	out := make([]Delta, 3)
	warnings := NewReconciler(DefaultOptions()).ReconcileGroup(Group{Device: deviceA, Rows: []int{0, 1, 2}}, records, []time.Time{at(0), at(4), at(8)}, out)

	if out[1].Entries.Valid() || out[2].Entries.Valid() {
		t.Fatalf("expected unknown counter to null both adjacent deltas")
	}
	if out[2].Exits != tabular.KnownCount(10) {
		t.Fatalf("expected exits delta 10, got %s", out[2].Exits)
	}
	if warnings.Count(WarningUnknownCounter) != 2 {
		t.Fatalf("expected 2 unknown counter warnings, got %d", warnings.Count(WarningUnknownCounter))
	}
}

func TestReconcileIrregularInterval(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxAuditGap = 6 * time.Hour
	opts.ComputeTimeDelta = false
	records := []telemetry.AuditRecord{record(0, deviceA, 0, 0), record(1, deviceA, 10, 10), record(2, deviceA, 20, 20)}
	timestamps := []time.Time{at(0), at(4), at(4).Add(30 * time.Hour)}
	out := make([]Delta, 3)

	warnings := NewReconciler(opts).ReconcileGroup(Group{Device: deviceA, Rows: []int{0, 1, 2}}, records, timestamps, out)
	if warnings.Count(WarningIrregularInterval) != 1 {
		t.Fatalf("expected one irregular interval, got %d", warnings.Count(WarningIrregularInterval))
	}
	if out[2].Time.Valid() {
		t.Fatalf("expected time delta to stay null when disabled")
	}
	if out[2].Entries != tabular.KnownCount(10) {
		t.Fatalf("irregular interval must not alter deltas")
	}
}

func TestBusynessNeverZeroFilled(t *testing.T) {
	if Busyness(tabular.UnknownCount(), tabular.KnownCount(5)).Valid() {
		t.Fatalf("expected unknown busyness")
	}
	if Busyness(tabular.KnownCount(5), tabular.UnknownCount()).Valid() {
		t.Fatalf("expected unknown busyness")
	}
	if Busyness(tabular.KnownCount(0), tabular.KnownCount(0)) != tabular.KnownCount(0) {
		t.Fatalf("expected known zero busyness")
	}
}
