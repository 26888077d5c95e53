package postgres

import (
	"fmt"
	"strings"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/datastore"
	"github.com/threatdex/threatdex/internal/cpe"
)

// sortColumns is the closed set of ORDER BY targets. Anything else is a
// validation error before SQL is built.
var sortColumns = map[datastore.SortField]string{
	datastore.SortPriority:  "priority_score",
	datastore.SortPublished: "published_at",
	datastore.SortModified:  "modified_at",
	datastore.SortUpdated:   "updated_at",
	datastore.SortCVSS:      "cvss_score",
	datastore.SortSeverity:  "severity",
	datastore.SortCVE:       "cve_id",
}

// orderBy renders a validated ORDER BY clause. Severity is stored as
// text, so it sorts through a CASE rank rather than alphabetically.
func orderBy(sort datastore.SortField, order datastore.SortOrder) (string, error) {
	col, ok := sortColumns[sort]
	if !ok {
		return "", &threatdex.Error{
			Op:      "datastore/postgres/orderBy",
			Kind:    threatdex.ErrInvalid,
			Message: fmt.Sprintf("unknown sort field %q", sort),
		}
	}
	if col == "severity" {
		col = `CASE severity WHEN 'CRITICAL' THEN 4 WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 WHEN 'LOW' THEN 1 ELSE 0 END`
	}
	var dir string
	switch order {
	case datastore.Asc:
		dir = "ASC"
	case datastore.Desc, "":
		dir = "DESC"
	default:
		return "", &threatdex.Error{
			Op:      "datastore/postgres/orderBy",
			Kind:    threatdex.ErrInvalid,
			Message: fmt.Sprintf("unknown sort order %q", order),
		}
	}
	return fmt.Sprintf(" ORDER BY %s %s NULLS LAST", col, dir), nil
}

// predicates renders the filter set as a WHERE clause with numbered
// placeholders, continuing from the provided argument list.
func predicates(f datastore.VulnFilters, args []any) (string, []any) {
	conds, args := filterConds(f, args)
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// predicatesAnd is predicates for queries that already have a WHERE.
func predicatesAnd(f datastore.VulnFilters, args []any) (string, []any) {
	conds, args := filterConds(f, args)
	if len(conds) == 0 {
		return "", args
	}
	return " AND " + strings.Join(conds, " AND "), args
}

// foldExpr mirrors cpe.Normalize in SQL: lower case with dots, spaces,
// and underscores removed. Stored names stay as written; both sides of a
// name match fold the same way.
func foldExpr(col string) string {
	return `replace(replace(replace(lower(` + col + `), '.', ''), ' ', ''), '_', '')`
}

func filterConds(f datastore.VulnFilters, args []any) ([]string, []any) {
	var conds []string
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Severity != nil {
		conds = append(conds, "severity = "+arg(*f.Severity))
	}
	if f.Exploited != nil {
		conds = append(conds, "exploited_in_the_wild = "+arg(*f.Exploited))
	}
	if f.Vendor != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM unnest(vendors) AS u(v) WHERE "+foldExpr("u.v")+" LIKE '%' || "+arg(cpe.Normalize(f.Vendor))+" || '%')")
	}
	if f.Product != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM unnest(products) AS u(p) WHERE "+foldExpr("u.p")+" LIKE '%' || "+arg(cpe.Normalize(f.Product))+" || '%')")
	}
	if f.CWE != "" {
		conds = append(conds, arg(f.CWE)+" = ANY (cwe_ids)")
	}
	if f.MinCVSS != nil {
		conds = append(conds, "cvss_score >= "+arg(*f.MinCVSS))
	}
	if f.MaxCVSS != nil {
		conds = append(conds, "cvss_score <= "+arg(*f.MaxCVSS))
	}
	if f.PublishedAfter != nil {
		conds = append(conds, "published_at >= "+arg(*f.PublishedAfter))
	}
	if f.PublishedBefore != nil {
		conds = append(conds, "published_at <= "+arg(*f.PublishedBefore))
	}
	return conds, args
}
