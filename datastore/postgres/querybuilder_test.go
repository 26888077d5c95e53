package postgres

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/datastore"
)

func TestOrderByWhitelist(t *testing.T) {
	t.Parallel()

	for f := range sortColumns {
		if _, err := orderBy(f, datastore.Desc); err != nil {
			t.Errorf("%q: %v", f, err)
		}
	}
	_, err := orderBy("evil; DROP TABLE vulnerabilities", datastore.Desc)
	if !errors.Is(err, threatdex.ErrInvalid) {
		t.Errorf("expected validation error, got %v", err)
	}
	_, err = orderBy(datastore.SortPriority, "sideways")
	if !errors.Is(err, threatdex.ErrInvalid) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestOrderBySeverityRanked(t *testing.T) {
	t.Parallel()
	ord, err := orderBy(datastore.SortSeverity, datastore.Asc)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ord, "CASE severity") {
		t.Errorf("severity should sort by rank, got %q", ord)
	}
}

func TestPredicates(t *testing.T) {
	t.Parallel()

	where, args := predicates(datastore.VulnFilters{}, nil)
	if where != "" || len(args) != 0 {
		t.Errorf("empty filters: %q %v", where, args)
	}

	sev := threatdex.Critical
	exp := true
	min := 7.0
	after := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	where, args = predicates(datastore.VulnFilters{
		Severity:       &sev,
		Exploited:      &exp,
		Vendor:         "acme",
		CWE:            "CWE-787",
		MinCVSS:        &min,
		PublishedAfter: &after,
	}, nil)
	if len(args) != 6 {
		t.Fatalf("args: %v", args)
	}
	for _, want := range []string{
		"severity = $1",
		"exploited_in_the_wild = $2",
		"LIKE '%' || $3 || '%'",
		"$4 = ANY (cwe_ids)",
		"cvss_score >= $5",
		"published_at >= $6",
	} {
		if !strings.Contains(where, want) {
			t.Errorf("missing %q in %q", want, where)
		}
	}

	// Continuation numbering picks up after existing args.
	and, args2 := predicatesAnd(datastore.VulnFilters{Product: "widget"}, []any{"seed"})
	if !strings.HasPrefix(and, " AND ") || !strings.Contains(and, "$2") {
		t.Errorf("continuation: %q", and)
	}
	if len(args2) != 2 {
		t.Errorf("args: %v", args2)
	}
}

// Vendor and product matches fold the same way on both sides: the query
// argument through cpe.Normalize, the stored name through the SQL
// expression.
func TestPredicatesNameFolding(t *testing.T) {
	t.Parallel()

	where, args := predicates(datastore.VulnFilters{
		Vendor:  "Palo Alto",
		Product: "PAN_OS.Next",
	}, nil)
	if got := args[0]; got != "paloalto" {
		t.Errorf("vendor arg: %q", got)
	}
	if got := args[1]; got != "panosnext" {
		t.Errorf("product arg: %q", got)
	}
	for _, want := range []string{
		"lower(u.v)",
		"lower(u.p)",
		`replace(replace(replace(lower(u.v), '.', ''), ' ', ''), '_', '')`,
	} {
		if !strings.Contains(where, want) {
			t.Errorf("missing %q in %q", want, where)
		}
	}
	if strings.Contains(where, "ILIKE") {
		t.Errorf("fold should use LIKE over lowered names: %q", where)
	}
}

func TestPrefixCols(t *testing.T) {
	t.Parallel()
	got := prefixCols("v.")
	if !strings.HasPrefix(got, "v.cve_id, v.title") {
		t.Errorf("prefix: %q", got)
	}
	if strings.Contains(got, " v.v.") {
		t.Errorf("double prefix: %q", got)
	}
}

func TestPageOffset(t *testing.T) {
	t.Parallel()
	tt := []struct {
		page, size, want int
	}{
		{1, 20, 0},
		{2, 20, 20},
		{0, 20, 0},
		{5, 7, 28},
	}
	for _, tc := range tt {
		p := datastore.Page{Number: tc.page, Size: tc.size}
		if got := p.Offset(); got != tc.want {
			t.Errorf("page %d size %d: offset %d, want %d", tc.page, tc.size, got, tc.want)
		}
	}
}
