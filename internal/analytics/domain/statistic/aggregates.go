package statistic

import (
	"math"
	"sort"
	"time"

	"turnstile-analytics/internal/analytics/domain/features"
	"turnstile-analytics/internal/tabular"
	telemetry "turnstile-analytics/internal/telemetry/domain"
)

// All aggregates skip unknown values and report how many values contributed.

// StationUnits counts the distinct devices seen at a station.
type StationUnits struct {
	Station string
	Units   int
}

// UnitsPerStation returns device counts per station, largest first.
func UnitsPerStation(table *features.EnrichedTable) ([]StationUnits, error) {
	if table == nil {
		return nil, ErrNilTable
	}
	seen := make(map[string]map[telemetry.DeviceKey]struct{})
	for _, row := range table.Rows {
		station := row.Reference.Station
		if station == "" {
			continue
		}
		if seen[station] == nil {
			seen[station] = make(map[telemetry.DeviceKey]struct{})
		}
		seen[station][row.Record.Device] = struct{}{}
	}
	out := make([]StationUnits, 0, len(seen))
	for station, devices := range seen {
		out = append(out, StationUnits{Station: station, Units: len(devices)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Units != out[j].Units {
			return out[i].Units > out[j].Units
		}
		return out[i].Station < out[j].Station
	})
	return out, nil
}

// Totals sums per-interval deltas over one period.
type Totals struct {
	Period       time.Time
	Entries      int64
	Exits        int64
	Busyness     int64
	Contributing int
}

// SystemTotals sums entries, exits and busyness across every device for the
// day containing day.
func SystemTotals(table *features.EnrichedTable, day time.Time) (Totals, error) {
	if table == nil {
		return Totals{}, ErrNilTable
	}
	if day.IsZero() {
		return Totals{}, ErrInvalidPeriodStart
	}
	start := truncateToDay(day)
	totals := Totals{Period: start}
	for _, row := range table.Rows {
		if !row.Calendar.Known || !truncateToDay(row.Calendar.Timestamp).Equal(start) {
			continue
		}
		addTotals(&totals, row)
	}
	return totals, nil
}

// DailyTotals returns system totals for every day present, in date order.
func DailyTotals(table *features.EnrichedTable) ([]Totals, error) {
	return periodTotals(table, GranularityDay)
}

func periodTotals(table *features.EnrichedTable, granularity Granularity) ([]Totals, error) {
	if table == nil {
		return nil, ErrNilTable
	}
	byPeriod := make(map[time.Time]*Totals)
	for _, row := range table.Rows {
		if !row.Calendar.Known {
			continue
		}
		start := PeriodStart(granularity, row.Calendar.Timestamp)
		totals := byPeriod[start]
		if totals == nil {
			totals = &Totals{Period: start}
			byPeriod[start] = totals
		}
		addTotals(totals, row)
	}
	out := make([]Totals, 0, len(byPeriod))
	for _, totals := range byPeriod {
		out = append(out, *totals)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out, nil
}

func addTotals(totals *Totals, row features.EnrichedRow) {
	counted := false
	if v, ok := row.EntriesDelta.Get(); ok {
		totals.Entries += v
		counted = true
	}
	if v, ok := row.ExitsDelta.Get(); ok {
		totals.Exits += v
		counted = true
	}
	if v, ok := row.Busyness.Get(); ok {
		totals.Busyness += v
	}
	if counted {
		totals.Contributing++
	}
}

// StationDay is the busyness of one station on one day.
type StationDay struct {
	Station      string
	Day          time.Time
	Busyness     int64
	Contributing int
}

// StationDailyBusyness sums valid busyness per station and day. Station-days
// with rows but no valid busyness are included with Contributing 0.
func StationDailyBusyness(table *features.EnrichedTable) ([]StationDay, error) {
	if table == nil {
		return nil, ErrNilTable
	}
	type key struct {
		station string
		day     time.Time
	}
	byKey := make(map[key]*StationDay)
	for _, row := range table.Rows {
		if row.Reference.Station == "" || !row.Calendar.Known {
			continue
		}
		k := key{station: row.Reference.Station, day: truncateToDay(row.Calendar.Timestamp)}
		sd := byKey[k]
		if sd == nil {
			sd = &StationDay{Station: k.station, Day: k.day}
			byKey[k] = sd
		}
		if v, ok := row.Busyness.Get(); ok {
			sd.Busyness += v
			sd.Contributing++
		}
	}
	out := make([]StationDay, 0, len(byKey))
	for _, sd := range byKey {
		out = append(out, *sd)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		return out[i].Station < out[j].Station
	})
	return out, nil
}

// Summary describes a sample of values. Std is the sample standard deviation
// and is unknown for fewer than two values.
type Summary struct {
	Count int
	Mean  float64
	Std   tabular.Float
	Min   float64
	Max   float64
}

// Summarize computes count, mean, std, min and max of values.
func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrNoData
	}
	s := Summary{Count: len(values), Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(len(values))
	if len(values) > 1 {
		var sq float64
		for _, v := range values {
			d := v - s.Mean
			sq += d * d
		}
		s.Std = tabular.KnownFloat(math.Sqrt(sq / float64(len(values)-1)))
	}
	return s, nil
}

// MonthlyStationSummary summarizes the daily busyness of a station in a month.
type MonthlyStationSummary struct {
	Station string
	Month   TimeKey
	Summary
}

// MonthlySummary summarizes daily station busyness per month. Days without a
// valid busyness value do not contribute.
func MonthlySummary(table *features.EnrichedTable) ([]MonthlyStationSummary, error) {
	days, err := StationDailyBusyness(table)
	if err != nil {
		return nil, err
	}
	type key struct {
		station string
		month   TimeKey
	}
	values := make(map[key][]float64)
	var order []key
	for _, d := range days {
		if d.Contributing == 0 {
			continue
		}
		month, err := NewTimeKey(GranularityMonth, d.Day)
		if err != nil {
			return nil, err
		}
		k := key{station: d.Station, month: month}
		if _, ok := values[k]; !ok {
			order = append(order, k)
		}
		values[k] = append(values[k], float64(d.Busyness))
	}
	out := make([]MonthlyStationSummary, 0, len(order))
	for _, k := range order {
		s, err := Summarize(values[k])
		if err != nil {
			return nil, err
		}
		out = append(out, MonthlyStationSummary{Station: k.station, Month: k.month, Summary: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].Station < out[j].Station
	})
	return out, nil
}

// RollingMean returns the trailing mean over window values. The first
// window-1 positions are unknown.
func RollingMean(series []float64, window int) ([]tabular.Float, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}
	out := make([]tabular.Float, len(series))
	var sum float64
	for i, v := range series {
		sum += v
		if i >= window {
			sum -= series[i-window]
		}
		if i >= window-1 {
			out[i] = tabular.KnownFloat(sum / float64(window))
		}
	}
	return out, nil
}

// Growth compares a station's mean daily busyness in its first and last month.
type Growth struct {
	Station    string
	FirstMonth TimeKey
	LastMonth  TimeKey
	FirstMean  float64
	LastMean   float64
	Change     float64
}

// StationGrowth returns the n stations with the largest increase and the n
// with the largest decrease in mean daily busyness between their first and
// last month. Stations seen in a single month are skipped.
func StationGrowth(table *features.EnrichedTable, n int) (top, bottom []Growth, err error) {
	summaries, err := MonthlySummary(table)
	if err != nil {
		return nil, nil, err
	}
	byStation := make(map[string][]MonthlyStationSummary)
	for _, s := range summaries {
		byStation[s.Station] = append(byStation[s.Station], s)
	}
	growth := make([]Growth, 0, len(byStation))
	for station, months := range byStation {
		if len(months) < 2 {
			continue
		}
		first, last := months[0], months[len(months)-1]
		growth = append(growth, Growth{
			Station:    station,
			FirstMonth: first.Month,
			LastMonth:  last.Month,
			FirstMean:  first.Mean,
			LastMean:   last.Mean,
			Change:     last.Mean - first.Mean,
		})
	}
	sort.Slice(growth, func(i, j int) bool {
		if growth[i].Change != growth[j].Change {
			return growth[i].Change > growth[j].Change
		}
		return growth[i].Station < growth[j].Station
	})
	if n <= 0 || n > len(growth) {
		n = len(growth)
	}
	top = append([]Growth(nil), growth[:n]...)
	for i := len(growth) - 1; i >= len(growth)-n; i-- {
		bottom = append(bottom, growth[i])
	}
	return top, bottom, nil
}

// HourlyProfile sums valid busyness by audit hour for one station.
type HourlyProfile struct {
	Station      string
	Busyness     [24]int64
	Contributing [24]int
}

// StationHourlyProfile builds the hourly busyness profile of station.
func StationHourlyProfile(table *features.EnrichedTable, station string) (HourlyProfile, error) {
	if table == nil {
		return HourlyProfile{}, ErrNilTable
	}
	profile := HourlyProfile{Station: station}
	found := false
	for _, row := range table.Rows {
		if row.Reference.Station != station {
			continue
		}
		found = true
		if !row.Calendar.Known {
			continue
		}
		if v, ok := row.Busyness.Get(); ok {
			hour := row.Calendar.Timestamp.Hour()
			profile.Busyness[hour] += v
			profile.Contributing[hour]++
		}
	}
	if !found {
		return HourlyProfile{}, ErrUnknownStation
	}
	return profile, nil
}

// BusiestHour returns the hour with the largest busyness sum for station.
// Ties go to the earlier hour.
func BusiestHour(table *features.EnrichedTable, station string) (int, int64, error) {
	profile, err := StationHourlyProfile(table, station)
	if err != nil {
		return 0, 0, err
	}
	best, hour := int64(-1), -1
	for h := 0; h < 24; h++ {
		if profile.Contributing[h] == 0 {
			continue
		}
		if profile.Busyness[h] > best {
			best, hour = profile.Busyness[h], h
		}
	}
	if hour < 0 {
		return 0, 0, ErrNoData
	}
	return hour, best, nil
}

// ClosedDay lists the stations that recorded no traffic on a day.
type ClosedDay struct {
	Day      time.Time
	Stations []string
}

// ClosedStations returns, per day, the stations whose valid busyness sums to
// zero. A station-day needs at least one valid value to count as closed.
func ClosedStations(table *features.EnrichedTable) ([]ClosedDay, error) {
	days, err := StationDailyBusyness(table)
	if err != nil {
		return nil, err
	}
	var out []ClosedDay
	for _, d := range days {
		if d.Contributing == 0 || d.Busyness != 0 {
			continue
		}
		if len(out) == 0 || !out[len(out)-1].Day.Equal(d.Day) {
			out = append(out, ClosedDay{Day: d.Day})
		}
		last := &out[len(out)-1]
		last.Stations = append(last.Stations, d.Station)
	}
	return out, nil
}
