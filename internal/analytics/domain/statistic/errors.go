package statistic

import "errors"

var (
	// ErrNilTable is returned when no enriched table is supplied.
	ErrNilTable = errors.New("statistic: nil enriched table")
	// ErrInvalidGranularity is returned when granularity is unsupported.
	ErrInvalidGranularity = errors.New("statistic: invalid granularity")
	// ErrInvalidPeriodStart is returned when the period start is zero.
	ErrInvalidPeriodStart = errors.New("statistic: invalid period start")
	// ErrInvalidWindow is returned when a rolling window is not positive.
	ErrInvalidWindow = errors.New("statistic: invalid window")
	// ErrUnknownStation is returned when a station has no rows.
	ErrUnknownStation = errors.New("statistic: unknown station")
	// ErrNoData is returned when no valid value contributes to an aggregate.
	ErrNoData = errors.New("statistic: no valid values")
)
