package interfaces

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"turnstile-analytics/internal/analytics/domain/features"
	"turnstile-analytics/internal/analytics/domain/statistic"
	"turnstile-analytics/internal/tabular"
)

// DefaultRollingWindow is the number of days in the daily rolling mean.
const DefaultRollingWindow = 7

// Report is the busyness summary of one enriched table.
type Report struct {
	Source      string
	RunID       string
	GeneratedAt time.Time
	Quality     features.QualityReport
	Daily       []statistic.Totals
	// DailyRolling[i] is the trailing mean busyness of Daily[i] over
	// RollingWindow days present in the table.
	DailyRolling  []tabular.Float
	RollingWindow int
	// PeakDay is the system total of the busiest day, zero when no day has data.
	PeakDay      statistic.Totals
	Stations     []statistic.MonthlyStationSummary
	Units        []statistic.StationUnits
	Closed       []statistic.ClosedDay
	TopGrowth    []statistic.Growth
	BottomGrowth []statistic.Growth
	Hourly       []StationHours
}

// StationHours is the hourly busyness profile of one of the busiest stations.
type StationHours struct {
	Profile statistic.HourlyProfile
	Total   int64
	// BusiestHour is -1 when the station has no valid busyness.
	BusiestHour     int
	BusiestBusyness int64
}

// BuildReport computes the report aggregates of table. topN bounds the growth
// tables and the hourly profiles; window is the rolling mean length in days.
func BuildReport(table *features.EnrichedTable, runID string, generatedAt time.Time, topN, window int) (*Report, error) {
	if table == nil {
		return nil, errors.New("report: nil table")
	}
	daily, err := statistic.DailyTotals(table)
	if err != nil {
		return nil, err
	}
	series := make([]float64, len(daily))
	for i, day := range daily {
		series[i] = float64(day.Busyness)
	}
	rolling, err := statistic.RollingMean(series, window)
	if err != nil {
		return nil, err
	}
	peak, err := peakDay(table, daily)
	if err != nil {
		return nil, err
	}
	stations, err := statistic.MonthlySummary(table)
	if err != nil {
		return nil, err
	}
	units, err := statistic.UnitsPerStation(table)
	if err != nil {
		return nil, err
	}
	closed, err := statistic.ClosedStations(table)
	if err != nil {
		return nil, err
	}
	top, bottom, err := statistic.StationGrowth(table, topN)
	if err != nil {
		return nil, err
	}
	hourly, err := busiestStationHours(table, topN)
	if err != nil {
		return nil, err
	}
	return &Report{
		Source:        table.Name,
		RunID:         runID,
		GeneratedAt:   generatedAt,
		Quality:       table.Quality,
		Daily:         daily,
		DailyRolling:  rolling,
		RollingWindow: window,
		PeakDay:       peak,
		Stations:      stations,
		Units:         units,
		Closed:        closed,
		TopGrowth:     top,
		BottomGrowth:  bottom,
		Hourly:        hourly,
	}, nil
}

func peakDay(table *features.EnrichedTable, daily []statistic.Totals) (statistic.Totals, error) {
	best := -1
	for i, day := range daily {
		if day.Contributing == 0 {
			continue
		}
		if best < 0 || day.Busyness > daily[best].Busyness {
			best = i
		}
	}
	if best < 0 {
		return statistic.Totals{}, nil
	}
	return statistic.SystemTotals(table, daily[best].Period)
}

// busiestStationHours profiles the n stations with the largest total
// busyness. n <= 0 profiles every station.
func busiestStationHours(table *features.EnrichedTable, n int) ([]StationHours, error) {
	days, err := statistic.StationDailyBusyness(table)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]int64)
	for _, d := range days {
		totals[d.Station] += d.Busyness
	}
	stations := make([]string, 0, len(totals))
	for station := range totals {
		stations = append(stations, station)
	}
	sort.Slice(stations, func(i, j int) bool {
		if totals[stations[i]] != totals[stations[j]] {
			return totals[stations[i]] > totals[stations[j]]
		}
		return stations[i] < stations[j]
	})
	if n > 0 && n < len(stations) {
		stations = stations[:n]
	}

	out := make([]StationHours, 0, len(stations))
	for _, station := range stations {
		profile, err := statistic.StationHourlyProfile(table, station)
		if err != nil {
			return nil, err
		}
		sh := StationHours{Profile: profile, Total: totals[station], BusiestHour: -1}
		hour, busy, err := statistic.BusiestHour(table, station)
		switch {
		case err == nil:
			sh.BusiestHour, sh.BusiestBusyness = hour, busy
		case !errors.Is(err, statistic.ErrNoData):
			return nil, err
		}
		out = append(out, sh)
	}
	return out, nil
}

// BuildReportPDF renders a summary PDF.
func BuildReportPDF(report *Report) ([]byte, error) {
	if report == nil {
		return nil, errors.New("report: nil report")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Turnstile Busyness Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Source: %s", report.Source))
	pdf.Ln(5)
	if report.RunID != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Run: %s", report.RunID))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	q := report.Quality
	pdf.Cell(0, 6, fmt.Sprintf("Rows: %d  Devices: %d  Skipped: %d", q.Rows, q.Groups, q.SkippedRows))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Invalid deltas: %d  Irregular intervals: %d  Unmatched references: %d",
		q.InvalidDeltas, q.IrregularIntervals, q.UnmatchedReferences))
	pdf.Ln(5)
	if !report.PeakDay.Period.IsZero() {
		pdf.Cell(0, 6, fmt.Sprintf("Peak day: %s  Busyness: %d",
			report.PeakDay.Period.Format("2006-01-02"), report.PeakDay.Busyness))
		pdf.Ln(5)
	}
	pdf.Ln(3)

	// Daily totals
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(36, 6, "Day", "1", 0, "C", false, 0, "")
	pdf.CellFormat(36, 6, "Entries", "1", 0, "C", false, 0, "")
	pdf.CellFormat(36, 6, "Exits", "1", 0, "C", false, 0, "")
	pdf.CellFormat(36, 6, "Busyness", "1", 0, "C", false, 0, "")
	pdf.CellFormat(36, 6, fmt.Sprintf("Mean %dd", report.RollingWindow), "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for i, day := range report.Daily {
		pdf.CellFormat(36, 6, day.Period.Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(36, 6, fmt.Sprintf("%d", day.Entries), "1", 0, "R", false, 0, "")
		pdf.CellFormat(36, 6, fmt.Sprintf("%d", day.Exits), "1", 0, "R", false, 0, "")
		pdf.CellFormat(36, 6, fmt.Sprintf("%d", day.Busyness), "1", 0, "R", false, 0, "")
		mean := ""
		if v, ok := rollingAt(report, i); ok {
			mean = fmt.Sprintf("%.1f", v)
		}
		pdf.CellFormat(36, 6, mean, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if len(report.TopGrowth) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(70, 6, "Station", "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, "First month", "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, "Last month", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, "Change", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 10)
		for _, g := range report.TopGrowth {
			pdf.CellFormat(70, 6, g.Station, "1", 0, "L", false, 0, "")
			pdf.CellFormat(40, 6, fmt.Sprintf("%.1f", g.FirstMean), "1", 0, "R", false, 0, "")
			pdf.CellFormat(40, 6, fmt.Sprintf("%.1f", g.LastMean), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, fmt.Sprintf("%+.1f", g.Change), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
	}

	if len(report.Hourly) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(70, 6, "Station", "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, "Busyness", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, "Busiest hour", "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, "At busiest hour", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 10)
		for _, h := range report.Hourly {
			hour, busy := "", ""
			if h.BusiestHour >= 0 {
				hour = fmt.Sprintf("%02d:00", h.BusiestHour)
				busy = fmt.Sprintf("%d", h.BusiestBusyness)
			}
			pdf.CellFormat(70, 6, h.Profile.Station, "1", 0, "L", false, 0, "")
			pdf.CellFormat(40, 6, fmt.Sprintf("%d", h.Total), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, hour, "1", 0, "C", false, 0, "")
			pdf.CellFormat(40, 6, busy, "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReportXLSX renders the report as a workbook with summary, daily,
// stations, units, closed, hourly and quality sheets.
func BuildReportXLSX(report *Report) ([]byte, error) {
	if report == nil {
		return nil, errors.New("report: nil report")
	}
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	dailySheet := "daily"
	stationsSheet := "stations"
	unitsSheet := "units"
	closedSheet := "closed"
	hourlySheet := "hourly"
	qualitySheet := "quality"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	for _, name := range []string{dailySheet, stationsSheet, unitsSheet, closedSheet, hourlySheet, qualitySheet} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	q := report.Quality
	_ = f.SetCellValue(summarySheet, "A1", "Turnstile Busyness Report")
	_ = f.SetCellValue(summarySheet, "A3", "Source")
	_ = f.SetCellValue(summarySheet, "B3", report.Source)
	_ = f.SetCellValue(summarySheet, "A4", "Run")
	_ = f.SetCellValue(summarySheet, "B4", report.RunID)
	_ = f.SetCellValue(summarySheet, "A5", "Generated")
	_ = f.SetCellValue(summarySheet, "B5", report.GeneratedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "Rows")
	_ = f.SetCellValue(summarySheet, "B6", q.Rows)
	_ = f.SetCellValue(summarySheet, "A7", "Devices")
	_ = f.SetCellValue(summarySheet, "B7", q.Groups)
	_ = f.SetCellValue(summarySheet, "A8", "Skipped rows")
	_ = f.SetCellValue(summarySheet, "B8", q.SkippedRows)
	_ = f.SetCellValue(summarySheet, "A9", "Invalid deltas")
	_ = f.SetCellValue(summarySheet, "B9", q.InvalidDeltas)
	_ = f.SetCellValue(summarySheet, "A10", "Irregular intervals")
	_ = f.SetCellValue(summarySheet, "B10", q.IrregularIntervals)
	_ = f.SetCellValue(summarySheet, "A11", "Unmatched references")
	_ = f.SetCellValue(summarySheet, "B11", q.UnmatchedReferences)
	if !report.PeakDay.Period.IsZero() {
		_ = f.SetCellValue(summarySheet, "A12", "Peak day")
		_ = f.SetCellValue(summarySheet, "B12", report.PeakDay.Period.Format("2006-01-02"))
		_ = f.SetCellValue(summarySheet, "A13", "Peak day busyness")
		_ = f.SetCellValue(summarySheet, "B13", report.PeakDay.Busyness)
		_ = f.SetCellValue(summarySheet, "A14", "Peak day devices")
		_ = f.SetCellValue(summarySheet, "B14", report.PeakDay.Contributing)
	}

	_ = f.SetCellValue(dailySheet, "A1", "Day")
	_ = f.SetCellValue(dailySheet, "B1", "Entries")
	_ = f.SetCellValue(dailySheet, "C1", "Exits")
	_ = f.SetCellValue(dailySheet, "D1", "Busyness")
	_ = f.SetCellValue(dailySheet, "E1", "Contributing")
	_ = f.SetCellValue(dailySheet, "F1", fmt.Sprintf("Rolling mean (%dd)", report.RollingWindow))
	for i, day := range report.Daily {
		row := i + 2
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("A%d", row), day.Period.Format("2006-01-02"))
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("B%d", row), day.Entries)
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("C%d", row), day.Exits)
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("D%d", row), day.Busyness)
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("E%d", row), day.Contributing)
		if v, ok := rollingAt(report, i); ok {
			_ = f.SetCellValue(dailySheet, fmt.Sprintf("F%d", row), v)
		}
	}

	_ = f.SetCellValue(stationsSheet, "A1", "Station")
	_ = f.SetCellValue(stationsSheet, "B1", "Month")
	_ = f.SetCellValue(stationsSheet, "C1", "Days")
	_ = f.SetCellValue(stationsSheet, "D1", "Mean")
	_ = f.SetCellValue(stationsSheet, "E1", "Std")
	_ = f.SetCellValue(stationsSheet, "F1", "Min")
	_ = f.SetCellValue(stationsSheet, "G1", "Max")
	for i, s := range report.Stations {
		row := i + 2
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("A%d", row), s.Station)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("B%d", row), s.Month.String())
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("C%d", row), s.Count)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("D%d", row), s.Mean)
		if std, ok := s.Std.Get(); ok {
			_ = f.SetCellValue(stationsSheet, fmt.Sprintf("E%d", row), std)
		}
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("F%d", row), s.Min)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("G%d", row), s.Max)
	}

	_ = f.SetCellValue(unitsSheet, "A1", "Station")
	_ = f.SetCellValue(unitsSheet, "B1", "Units")
	for i, u := range report.Units {
		row := i + 2
		_ = f.SetCellValue(unitsSheet, fmt.Sprintf("A%d", row), u.Station)
		_ = f.SetCellValue(unitsSheet, fmt.Sprintf("B%d", row), u.Units)
	}

	_ = f.SetCellValue(closedSheet, "A1", "Day")
	_ = f.SetCellValue(closedSheet, "B1", "Closed stations")
	_ = f.SetCellValue(closedSheet, "C1", "Stations")
	for i, c := range report.Closed {
		row := i + 2
		_ = f.SetCellValue(closedSheet, fmt.Sprintf("A%d", row), c.Day.Format("2006-01-02"))
		_ = f.SetCellValue(closedSheet, fmt.Sprintf("B%d", row), len(c.Stations))
		_ = f.SetCellValue(closedSheet, fmt.Sprintf("C%d", row), strings.Join(c.Stations, ", "))
	}

	_ = f.SetCellValue(hourlySheet, "A1", "Station")
	_ = f.SetCellValue(hourlySheet, "B1", "Busyness")
	_ = f.SetCellValue(hourlySheet, "C1", "Busiest hour")
	_ = f.SetCellValue(hourlySheet, "D1", "At busiest hour")
	for h := 0; h < 24; h++ {
		cell, err := excelize.CoordinatesToCellName(hourColumn+h, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(hourlySheet, cell, fmt.Sprintf("%02d", h))
	}
	for i, sh := range report.Hourly {
		row := i + 2
		_ = f.SetCellValue(hourlySheet, fmt.Sprintf("A%d", row), sh.Profile.Station)
		_ = f.SetCellValue(hourlySheet, fmt.Sprintf("B%d", row), sh.Total)
		if sh.BusiestHour >= 0 {
			_ = f.SetCellValue(hourlySheet, fmt.Sprintf("C%d", row), sh.BusiestHour)
			_ = f.SetCellValue(hourlySheet, fmt.Sprintf("D%d", row), sh.BusiestBusyness)
		}
		for h := 0; h < 24; h++ {
			if sh.Profile.Contributing[h] == 0 {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(hourColumn+h, row)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(hourlySheet, cell, sh.Profile.Busyness[h])
		}
	}

	_ = f.SetCellValue(qualitySheet, "A1", "Kind")
	_ = f.SetCellValue(qualitySheet, "B1", "Occurrences")
	_ = f.SetCellValue(qualitySheet, "C1", "Examples")
	for i, w := range q.Warnings {
		row := i + 2
		_ = f.SetCellValue(qualitySheet, fmt.Sprintf("A%d", row), w.Kind)
		_ = f.SetCellValue(qualitySheet, fmt.Sprintf("B%d", row), w.Count)
		_ = f.SetCellValue(qualitySheet, fmt.Sprintf("C%d", row), strings.Join(w.Examples, ", "))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// hourColumn is the 1-based column of hour 00 on the hourly sheet.
const hourColumn = 5

func rollingAt(report *Report, i int) (float64, bool) {
	if i >= len(report.DailyRolling) {
		return 0, false
	}
	return report.DailyRolling[i].Get()
}
