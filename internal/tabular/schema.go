package tabular

import "strings"

// Column declares one named column of a table schema.
// Aliases are accepted header spellings; matching is case-insensitive.
type Column struct {
	Name     string
	Aliases  []string
	Optional bool
}

// Schema is the named-field layout expected from a table.
type Schema struct {
	Table   string
	Columns []Column
}

// Header maps schema column names to positions in a concrete header row.
type Header struct {
	table string
	names []string
	index map[string]int
}

// Resolve matches a header row against the schema.
// Columns are located by name, never by position. Missing required columns
// produce a SchemaMismatchError listing every absent name.
func (s Schema) Resolve(header []string) (*Header, error) {
	h := &Header{
		table: s.Table,
		names: make([]string, 0, len(s.Columns)),
		index: make(map[string]int, len(s.Columns)),
	}
	var missing []string
	for _, col := range s.Columns {
		pos := findColumn(header, col)
		if pos < 0 {
			if !col.Optional {
				missing = append(missing, col.Name)
			}
			continue
		}
		h.index[col.Name] = pos
		h.names = append(h.names, col.Name)
	}
	if len(missing) > 0 {
		return nil, &SchemaMismatchError{Table: s.Table, Missing: missing}
	}
	return h, nil
}

// Table returns the table identifier the header was resolved for.
func (h *Header) Table() string { return h.table }

// Columns returns the schema column names present in the header, in schema order.
func (h *Header) Columns() []string {
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

// Unresolved returns the positions of header cells no schema column claimed,
// in header order. Blank cells are skipped.
func (h *Header) Unresolved(header []string) []int {
	claimed := make(map[int]struct{}, len(h.index))
	for _, pos := range h.index {
		claimed[pos] = struct{}{}
	}
	var out []int
	for i, name := range header {
		if _, ok := claimed[i]; ok || strings.TrimSpace(name) == "" {
			continue
		}
		out = append(out, i)
	}
	return out
}

// Has reports whether the named column is present.
func (h *Header) Has(name string) bool {
	_, ok := h.index[name]
	return ok
}

// Value returns the trimmed cell for the named column, or "" if the column is
// absent or the row is short.
func (h *Header) Value(row []string, name string) string {
	pos, ok := h.index[name]
	if !ok || pos >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[pos])
}

// RequireColumns checks that every wanted column name is present in have.
func RequireColumns(table string, have []string, want ...string) error {
	var missing []string
	for _, w := range want {
		found := false
		for _, h := range have {
			if strings.EqualFold(strings.TrimSpace(h), w) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, w)
		}
	}
	if len(missing) > 0 {
		return &SchemaMismatchError{Table: table, Missing: missing}
	}
	return nil
}

func findColumn(header []string, col Column) int {
	candidates := append([]string{col.Name}, col.Aliases...)
	for _, candidate := range candidates {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), candidate) {
				return i
			}
		}
	}
	return -1
}
