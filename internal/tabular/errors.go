package tabular

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchemaMismatch matches every SchemaMismatchError.
	ErrSchemaMismatch = errors.New("tabular: schema mismatch")
	// ErrParse matches every ParseError.
	ErrParse = errors.New("tabular: parse error")
)

// SchemaMismatchError is returned when required columns are absent from a table.
type SchemaMismatchError struct {
	Table   string
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("tabular: table %q is missing required columns: %s", e.Table, strings.Join(e.Missing, ", "))
}

// Is reports whether target is ErrSchemaMismatch.
func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// ParseError is returned when a cell cannot be interpreted as its declared type.
// Row is the zero-based data row index within Table (header excluded).
type ParseError struct {
	Table  string
	Row    int
	Column string
	Value  string
	Device string
	Err    error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tabular: table %q row %d column %s: cannot parse %q", e.Table, e.Row, e.Column, e.Value)
	if e.Device != "" {
		fmt.Fprintf(&b, " (device %s)", e.Device)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Is reports whether target is ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

func (e *ParseError) Unwrap() error { return e.Err }
