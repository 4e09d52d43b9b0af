package tabular

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSchemaResolveByNameAndAlias(t *testing.T) {
	schema := Schema{
		Table: "stations",
		Columns: []Column{
			{Name: "C/A", Aliases: []string{"Booth"}},
			{Name: "UNIT", Aliases: []string{"Remote"}},
			{Name: "SCP", Optional: true},
			{Name: "Station"},
		},
	}

	header, err := schema.Resolve([]string{" station ", "Remote", "Booth", "extra"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if header.Has("SCP") {
		t.Fatalf("expected optional SCP to be absent")
	}
	if diff := cmp.Diff([]string{"C/A", "UNIT", "Station"}, header.Columns()); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}

	row := []string{"59 ST", "R051", "A002 ", "x"}
	if got := header.Value(row, "C/A"); got != "A002" {
		t.Fatalf("expected A002, got %q", got)
	}
	if got := header.Value(row, "Station"); got != "59 ST" {
		t.Fatalf("expected 59 ST, got %q", got)
	}
	if got := header.Value(row[:1], "UNIT"); got != "" {
		t.Fatalf("expected empty value for short row, got %q", got)
	}
}

func TestSchemaResolveMissingColumns(t *testing.T) {
	schema := Schema{
		Table:   "audits",
		Columns: []Column{{Name: "C/A"}, {Name: "UNIT"}, {Name: "SCP"}},
	}
	_, err := schema.Resolve([]string{"UNIT"})
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
	var mismatch *SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *SchemaMismatchError, got %T", err)
	}
	if mismatch.Table != "audits" {
		t.Fatalf("expected table audits, got %s", mismatch.Table)
	}
	if diff := cmp.Diff([]string{"C/A", "SCP"}, mismatch.Missing); diff != "" {
		t.Fatalf("missing mismatch (-want +got):\n%s", diff)
	}
}

func TestRequireColumns(t *testing.T) {
	if err := RequireColumns("t", []string{"c/a", "UNIT"}, "C/A", "UNIT"); err != nil {
		t.Fatalf("expected columns to match case-insensitively: %v", err)
	}
	err := RequireColumns("t", []string{"UNIT"}, "C/A", "UNIT")
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Count
		wantErr bool
	}{
		{name: "integer", in: "1050", want: KnownCount(1050)},
		{name: "zero is known", in: "0", want: KnownCount(0)},
		{name: "float suffix", in: "980.0", want: KnownCount(980)},
		{name: "blank is unknown", in: "  ", want: UnknownCount()},
		{name: "fraction", in: "1.5", wantErr: true},
		{name: "text", in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCount(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse %q: %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestUnknownIsNotZero(t *testing.T) {
	if UnknownCount() == KnownCount(0) {
		t.Fatalf("unknown count must differ from zero")
	}
	if UnknownCount().String() != "" {
		t.Fatalf("unknown count must render empty")
	}
	var f Float
	if f.Valid() {
		t.Fatalf("zero Float must be unknown")
	}
	var d Duration
	if d.Valid() || d.String() != "" {
		t.Fatalf("zero Duration must be unknown")
	}
}

func TestParseErrorContext(t *testing.T) {
	err := error(&ParseError{Table: "audits", Row: 7, Column: "DATE", Value: "13-45-99", Device: "A002/R051/02-00-00"})
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse")
	}
	want := `tabular: table "audits" row 7 column DATE: cannot parse "13-45-99" (device A002/R051/02-00-00)`
	if err.Error() != want {
		t.Fatalf("unexpected message:\n%s", err.Error())
	}
}

func TestHeaderUnresolved(t *testing.T) {
	schema := Schema{
		Table:   "audits",
		Columns: []Column{{Name: "C/A"}, {Name: "UNIT"}, {Name: "ENTRIES"}},
	}
	raw := []string{"", "C/A", "UNIT", "STATION", "LINENAME", "ENTRIES", " "}
	header, err := schema.Resolve(raw)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if diff := cmp.Diff([]int{3, 4}, header.Unresolved(raw)); diff != "" {
		t.Fatalf("unresolved mismatch (-want +got):\n%s", diff)
	}
}
