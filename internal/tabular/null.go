package tabular

import (
	"strconv"
	"strings"
	"time"
)

// Count is an integer measurement that may be unknown.
// The zero value is unknown, which is distinct from a known zero.
type Count struct {
	value int64
	valid bool
}

// KnownCount returns a known count.
func KnownCount(v int64) Count { return Count{value: v, valid: true} }

// UnknownCount returns an unknown count.
func UnknownCount() Count { return Count{} }

// Get returns the value and whether it is known.
func (c Count) Get() (int64, bool) { return c.value, c.valid }

// Valid reports whether the count is known.
func (c Count) Valid() bool { return c.valid }

// Int64 returns the value, or 0 when unknown. Callers must check Valid first.
func (c Count) Int64() int64 { return c.value }

// String renders the value, or "" when unknown.
func (c Count) String() string {
	if !c.valid {
		return ""
	}
	return strconv.FormatInt(c.value, 10)
}

// ParseCount parses an integer cell. A blank cell is an unknown count;
// anything else that is not an integer is an error.
func ParseCount(s string) (Count, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return UnknownCount(), nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// exports written through float columns carry a ".0" suffix
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int64(f)) {
			return UnknownCount(), err
		}
		v = int64(f)
	}
	return KnownCount(v), nil
}

// Float is a real-valued measurement that may be unknown.
type Float struct {
	value float64
	valid bool
}

// KnownFloat returns a known float.
func KnownFloat(v float64) Float { return Float{value: v, valid: true} }

// Get returns the value and whether it is known.
func (f Float) Get() (float64, bool) { return f.value, f.valid }

// Valid reports whether the value is known.
func (f Float) Valid() bool { return f.valid }

// Float64 returns the value, or 0 when unknown.
func (f Float) Float64() float64 { return f.value }

func (f Float) String() string {
	if !f.valid {
		return ""
	}
	return strconv.FormatFloat(f.value, 'f', -1, 64)
}

// ParseFloat parses a real-valued cell; blank is unknown.
func ParseFloat(s string) (Float, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Float{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Float{}, err
	}
	return KnownFloat(v), nil
}

// Duration is an elapsed time that may be unknown.
type Duration struct {
	value time.Duration
	valid bool
}

// KnownDuration returns a known duration.
func KnownDuration(d time.Duration) Duration { return Duration{value: d, valid: true} }

// Get returns the value and whether it is known.
func (d Duration) Get() (time.Duration, bool) { return d.value, d.valid }

// Valid reports whether the duration is known.
func (d Duration) Valid() bool { return d.valid }

// String renders whole seconds, or "" when unknown.
func (d Duration) String() string {
	if !d.valid {
		return ""
	}
	return strconv.FormatInt(int64(d.value/time.Second), 10)
}
