package features

import (
	"errors"
	"fmt"

	telemetry "turnstile-analytics/internal/telemetry/domain"
)

var (
	// ErrInvalidOptions is returned when pipeline options fail validation.
	ErrInvalidOptions = errors.New("features: invalid options")
	// ErrNilTable is returned when no audit table is supplied.
	ErrNilTable = errors.New("features: nil audit table")
	// ErrGroupFailed matches every GroupError.
	ErrGroupFailed = errors.New("features: device group failed")
	// ErrInvalidTimestamp is returned when a date or time string does not
	// match any configured layout.
	ErrInvalidTimestamp = errors.New("features: invalid audit timestamp")
)

// GroupError reports a failure while processing one device group.
// Row is the original index of the group's first record.
type GroupError struct {
	Device telemetry.DeviceKey
	Row    int
	Err    error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("features: device %s (first row %d): %v", e.Device, e.Row, e.Err)
}

// Is reports whether target is ErrGroupFailed.
func (e *GroupError) Is(target error) bool {
	return target == ErrGroupFailed
}

func (e *GroupError) Unwrap() error { return e.Err }
