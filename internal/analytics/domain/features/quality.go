package features

import (
	"log/slog"
	"sort"
	"strings"
)

// Warning kinds collected during a run.
const (
	WarningEntriesNegative     = "entries_negative"
	WarningEntriesOversized    = "entries_oversized"
	WarningExitsNegative       = "exits_negative"
	WarningExitsOversized      = "exits_oversized"
	WarningUnknownCounter      = "unknown_counter"
	WarningIrregularInterval   = "irregular_interval"
	WarningUnparsableTimestamp = "unparsable_timestamp"
)

const maxWarningExamples = 3

type warningInfo struct {
	count    int
	examples []string
}

// WarningAggregator counts non-fatal conditions and keeps up to three
// example device keys per kind.
type WarningAggregator struct {
	warnings map[string]*warningInfo
}

// NewWarningAggregator constructs an empty aggregator.
func NewWarningAggregator() *WarningAggregator {
	return &WarningAggregator{warnings: make(map[string]*warningInfo)}
}

// Add records one occurrence of kind.
func (w *WarningAggregator) Add(kind, example string) {
	info := w.warnings[kind]
	if info == nil {
		info = &warningInfo{examples: make([]string, 0, maxWarningExamples)}
		w.warnings[kind] = info
	}
	info.count++
	if len(info.examples) < maxWarningExamples && !containsString(info.examples, example) {
		info.examples = append(info.examples, example)
	}
}

// Merge folds other into w. Examples from w are kept first.
func (w *WarningAggregator) Merge(other *WarningAggregator) {
	if other == nil {
		return
	}
	for _, kind := range other.kinds() {
		src := other.warnings[kind]
		info := w.warnings[kind]
		if info == nil {
			info = &warningInfo{examples: make([]string, 0, maxWarningExamples)}
			w.warnings[kind] = info
		}
		info.count += src.count
		for _, ex := range src.examples {
			if len(info.examples) >= maxWarningExamples {
				break
			}
			if !containsString(info.examples, ex) {
				info.examples = append(info.examples, ex)
			}
		}
	}
}

// Count returns the occurrences of kind.
func (w *WarningAggregator) Count(kind string) int {
	if info := w.warnings[kind]; info != nil {
		return info.count
	}
	return 0
}

// Warnings returns the collected warnings sorted by kind.
func (w *WarningAggregator) Warnings() []Warning {
	out := make([]Warning, 0, len(w.warnings))
	for _, kind := range w.kinds() {
		info := w.warnings[kind]
		examples := make([]string, len(info.examples))
		copy(examples, info.examples)
		out = append(out, Warning{Kind: kind, Count: info.count, Examples: examples})
	}
	return out
}

// LogAll writes one line per warning kind.
func (w *WarningAggregator) LogAll(logger *slog.Logger, table string) {
	if logger == nil {
		return
	}
	for _, warning := range w.Warnings() {
		logger.Warn(describeWarning(warning.Kind),
			"table", table,
			"kind", warning.Kind,
			"occurrences", warning.Count,
			"examples", strings.Join(warning.Examples, ", "),
		)
	}
}

func (w *WarningAggregator) kinds() []string {
	kinds := make([]string, 0, len(w.warnings))
	for kind := range w.warnings {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func describeWarning(kind string) string {
	switch kind {
	case WarningEntriesNegative:
		return "entries counter decreased; delta set to null"
	case WarningEntriesOversized:
		return "entries delta above bound; delta set to null"
	case WarningExitsNegative:
		return "exits counter decreased; delta set to null"
	case WarningExitsOversized:
		return "exits delta above bound; delta set to null"
	case WarningUnknownCounter:
		return "counter unknown at one end of interval; delta set to null"
	case WarningIrregularInterval:
		return "audit interval longer than configured gap"
	case WarningUnparsableTimestamp:
		return "audit timestamp unparsable; row left out of sequencing"
	default:
		return "data quality issue"
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Warning is one aggregated non-fatal condition.
type Warning struct {
	Kind     string   `json:"kind"`
	Count    int      `json:"count"`
	Examples []string `json:"examples,omitempty"`
}

// QualityReport summarizes non-fatal conditions of one run.
type QualityReport struct {
	Rows                int       `json:"rows"`
	Groups              int       `json:"groups"`
	SkippedRows         int       `json:"skipped_rows"`
	InvalidDeltas       int       `json:"invalid_deltas"`
	IrregularIntervals  int       `json:"irregular_intervals"`
	UnmatchedReferences int       `json:"unmatched_references"`
	Warnings            []Warning `json:"warnings,omitempty"`
}

// Warning returns the aggregated warning of kind, if any.
func (q QualityReport) Warning(kind string) (Warning, bool) {
	for _, w := range q.Warnings {
		if w.Kind == kind {
			return w, true
		}
	}
	return Warning{}, false
}
