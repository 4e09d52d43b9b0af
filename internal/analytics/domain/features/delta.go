package features

import (
	"math"
	"time"

	"turnstile-analytics/internal/tabular"
	telemetry "turnstile-analytics/internal/telemetry/domain"
)

// Delta holds the per-interval differences of one row against its predecessor.
type Delta struct {
	Entries tabular.Count
	Exits   tabular.Count
	Time    tabular.Duration
}

// Reconciler turns cumulative counters into bounded per-interval deltas.
type Reconciler struct {
	upperBound int64
	maxGap     time.Duration
	timeDelta  bool
}

// NewReconciler constructs a reconciler from options.
func NewReconciler(opts Options) *Reconciler {
	bound := opts.UpperBound
	if bound <= 0 {
		bound = DefaultUpperBound
	}
	return &Reconciler{
		upperBound: bound,
		maxGap:     opts.MaxAuditGap,
		timeDelta:  opts.ComputeTimeDelta,
	}
}

// ReconcileGroup writes out[row] for every row of g and nothing else.
// The first row of the group keeps null deltas. Warnings are collected into
// a fresh aggregator so groups can run concurrently.
func (r *Reconciler) ReconcileGroup(g Group, records []telemetry.AuditRecord, timestamps []time.Time, out []Delta) *WarningAggregator {
	warnings := NewWarningAggregator()
	device := g.Device.String()
	for k := 1; k < len(g.Rows); k++ {
		cur, prev := g.Rows[k], g.Rows[k-1]

		entries, reason := r.counterDelta(records[cur].Entries, records[prev].Entries)
		if reason != "" {
			warnings.Add(counterWarning("entries", reason), device)
		}
		exits, reason := r.counterDelta(records[cur].Exits, records[prev].Exits)
		if reason != "" {
			warnings.Add(counterWarning("exits", reason), device)
		}

		d := Delta{Entries: entries, Exits: exits}
		gap := timestamps[cur].Sub(timestamps[prev])
		if r.timeDelta {
			d.Time = tabular.KnownDuration(gap)
		}
		if r.maxGap > 0 && gap > r.maxGap {
			warnings.Add(WarningIrregularInterval, device)
		}
		out[cur] = d
	}
	return warnings
}

const (
	reasonUnknown   = "unknown"
	reasonNegative  = "negative"
	reasonOversized = "oversized"
)

// counterDelta returns cur-prev, or an unknown count and the reason it was
// rejected. Valid deltas satisfy 0 <= d < upperBound.
func (r *Reconciler) counterDelta(cur, prev tabular.Count) (tabular.Count, string) {
	c, ok := cur.Get()
	if !ok {
		return tabular.UnknownCount(), reasonUnknown
	}
	p, ok := prev.Get()
	if !ok {
		return tabular.UnknownCount(), reasonUnknown
	}
	switch {
	case c < p:
		return tabular.UnknownCount(), reasonNegative
	case p < 0 && c > math.MaxInt64+p:
		// c-p does not fit in int64.
		return tabular.UnknownCount(), reasonOversized
	}
	d := c - p
	if d >= r.upperBound {
		return tabular.UnknownCount(), reasonOversized
	}
	return tabular.KnownCount(d), ""
}

func counterWarning(counter, reason string) string {
	switch {
	case reason == reasonUnknown:
		return WarningUnknownCounter
	case counter == "entries" && reason == reasonNegative:
		return WarningEntriesNegative
	case counter == "entries":
		return WarningEntriesOversized
	case reason == reasonNegative:
		return WarningExitsNegative
	default:
		return WarningExitsOversized
	}
}
