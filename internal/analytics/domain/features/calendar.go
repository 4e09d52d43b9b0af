package features

import (
	"fmt"
	"strings"
	"time"

	telemetry "turnstile-analytics/internal/telemetry/domain"
)

// Calendar holds the parsed audit timestamp and its derived components.
// Fields are meaningful only when the matching flag is set.
type Calendar struct {
	Timestamp time.Time
	Known     bool

	HasDate bool
	Year    int
	Month   int
	ISOWeek int
	// Weekday counts from 0=Monday to 6=Sunday.
	Weekday int

	HasTime bool
	Hour    int
	Minute  int
}

// CalendarExtractor combines DATE and TIME strings into one timestamp.
type CalendarExtractor struct {
	dateLayouts []string
	timeLayout  string
	loc         *time.Location
	dateParts   bool
	timeParts   bool
}

// NewCalendarExtractor constructs an extractor from options.
func NewCalendarExtractor(opts Options) *CalendarExtractor {
	layouts := opts.DateLayouts
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	timeLayout := opts.TimeLayout
	if timeLayout == "" {
		timeLayout = DefaultTimeLayout
	}
	return &CalendarExtractor{
		dateLayouts: layouts,
		timeLayout:  timeLayout,
		loc:         opts.location(),
		dateParts:   opts.ExtractDateParts,
		timeParts:   opts.ExtractTimeParts,
	}
}

// Parse combines a date and a time string. On failure it returns the name of
// the offending column alongside an error wrapping ErrInvalidTimestamp.
func (e *CalendarExtractor) Parse(date, clock string) (time.Time, string, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)

	day, ok := e.parseDate(date)
	if !ok {
		return time.Time{}, telemetry.ColumnDate, fmt.Errorf("%w: date %q matches none of %v", ErrInvalidTimestamp, date, e.dateLayouts)
	}
	tod, err := time.Parse(e.timeLayout, clock)
	if err != nil {
		return time.Time{}, telemetry.ColumnTime, fmt.Errorf("%w: time %q: %v", ErrInvalidTimestamp, clock, err)
	}
	ts := time.Date(day.Year(), day.Month(), day.Day(), tod.Hour(), tod.Minute(), tod.Second(), tod.Nanosecond(), e.loc)
	return ts, "", nil
}

func (e *CalendarExtractor) parseDate(date string) (time.Time, bool) {
	if date == "" {
		return time.Time{}, false
	}
	for _, layout := range e.dateLayouts {
		if day, err := time.ParseInLocation(layout, date, e.loc); err == nil {
			return day, true
		}
	}
	return time.Time{}, false
}

// Extract derives calendar components from ts.
func (e *CalendarExtractor) Extract(ts time.Time) Calendar {
	cal := Calendar{Timestamp: ts, Known: true}
	if e.dateParts {
		_, week := ts.ISOWeek()
		cal.HasDate = true
		cal.Year = ts.Year()
		cal.Month = int(ts.Month())
		cal.ISOWeek = week
		cal.Weekday = (int(ts.Weekday()) + 6) % 7
	}
	if e.timeParts {
		cal.HasTime = true
		cal.Hour = ts.Hour()
		cal.Minute = ts.Minute()
	}
	return cal
}
