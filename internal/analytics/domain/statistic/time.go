package statistic

import "time"

// Granularity is the period length of an aggregate.
type Granularity string

const (
	GranularityHour  Granularity = "HOUR"
	GranularityDay   Granularity = "DAY"
	GranularityMonth Granularity = "MONTH"
	GranularityYear  Granularity = "YEAR"
)

// IsValid reports whether the granularity is supported.
func (g Granularity) IsValid() bool {
	switch g {
	case GranularityHour, GranularityDay, GranularityMonth, GranularityYear:
		return true
	default:
		return false
	}
}

// TimeKey is the printable representation of a period boundary.
type TimeKey string

// NewTimeKey builds a TimeKey for the given granularity and period start.
func NewTimeKey(granularity Granularity, periodStart time.Time) (TimeKey, error) {
	if !granularity.IsValid() {
		return "", ErrInvalidGranularity
	}
	if periodStart.IsZero() {
		return "", ErrInvalidPeriodStart
	}
	layout, err := timeKeyLayout(granularity)
	if err != nil {
		return "", err
	}
	return TimeKey(periodStart.Format(layout)), nil
}

// String returns the raw key.
func (k TimeKey) String() string { return string(k) }

// PeriodStart truncates t to the start of its period.
func PeriodStart(granularity Granularity, t time.Time) time.Time {
	switch granularity {
	case GranularityHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	case GranularityYear:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())
	default:
		return truncateToDay(t)
	}
}

func timeKeyLayout(granularity Granularity) (string, error) {
	switch granularity {
	case GranularityHour:
		return "2006-01-02T15", nil
	case GranularityDay:
		return "2006-01-02", nil
	case GranularityMonth:
		return "2006-01", nil
	case GranularityYear:
		return "2006", nil
	default:
		return "", ErrInvalidGranularity
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
