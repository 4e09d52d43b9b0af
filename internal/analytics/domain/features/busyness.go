package features

import "turnstile-analytics/internal/tabular"

// Busyness is entries plus exits when both deltas are known, and unknown
// otherwise. It is never zero-filled.
func Busyness(entries, exits tabular.Count) tabular.Count {
	e, ok := entries.Get()
	if !ok {
		return tabular.UnknownCount()
	}
	x, ok := exits.Get()
	if !ok {
		return tabular.UnknownCount()
	}
	return tabular.KnownCount(e + x)
}
