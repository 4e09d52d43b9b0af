package features

import (
	"fmt"
	"time"
)

// ParseMode selects how timestamp parse failures are handled.
type ParseMode string

const (
	// ParseStrict aborts the run on the first unparsable timestamp.
	ParseStrict ParseMode = "strict"
	// ParseLenient nulls the row's calendar fields and leaves it out of sequencing.
	ParseLenient ParseMode = "lenient"
)

const (
	DefaultUpperBound  int64 = 10000
	DefaultMaxAuditGap       = 24 * time.Hour
	DefaultTimeLayout        = "15:04:05"
)

// DefaultDateLayouts are tried in order when combining DATE and TIME.
var DefaultDateLayouts = []string{"01/02/2006", "01-02-06", "2006-01-02"}

// Options configures a feature pipeline run.
type Options struct {
	// UpperBound is the exclusive ceiling for a valid counter delta.
	UpperBound       int64
	ExtractDateParts bool
	ExtractTimeParts bool
	ComputeTimeDelta bool
	ParseMode        ParseMode
	// MaxAuditGap is the longest interval between consecutive audits of one
	// device before it counts as irregular. Zero disables the check.
	MaxAuditGap time.Duration
	// Workers sets reconciliation parallelism; <= 1 runs sequentially.
	Workers     int
	DateLayouts []string
	TimeLayout  string
	Location    *time.Location
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	layouts := make([]string, len(DefaultDateLayouts))
	copy(layouts, DefaultDateLayouts)
	return Options{
		UpperBound:       DefaultUpperBound,
		ExtractDateParts: true,
		ExtractTimeParts: true,
		ComputeTimeDelta: true,
		ParseMode:        ParseStrict,
		MaxAuditGap:      DefaultMaxAuditGap,
		Workers:          1,
		DateLayouts:      layouts,
		TimeLayout:       DefaultTimeLayout,
		Location:         time.UTC,
	}
}

// Validate checks option invariants.
func (o Options) Validate() error {
	if o.UpperBound <= 0 {
		return fmt.Errorf("%w: upper bound must be positive, got %d", ErrInvalidOptions, o.UpperBound)
	}
	if o.ParseMode != ParseStrict && o.ParseMode != ParseLenient {
		return fmt.Errorf("%w: unknown parse mode %q", ErrInvalidOptions, o.ParseMode)
	}
	if o.MaxAuditGap < 0 {
		return fmt.Errorf("%w: negative max audit gap", ErrInvalidOptions)
	}
	if len(o.DateLayouts) == 0 {
		return fmt.Errorf("%w: no date layouts", ErrInvalidOptions)
	}
	if o.TimeLayout == "" {
		return fmt.Errorf("%w: empty time layout", ErrInvalidOptions)
	}
	return nil
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}
