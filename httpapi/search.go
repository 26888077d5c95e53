package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/threatdex/threatdex/datastore"
	"github.com/threatdex/threatdex/pkg/jsonerr"
)

// Search-term bounds.
const (
	minQuery = 2
	maxQuery = 500
)

// validateQuery enforces the search-term contract. Everything downstream
// is parameterized; the character rejection is defense at the boundary,
// not the protection itself.
func validateQuery(q string) (string, bool) {
	q = strings.TrimSpace(q)
	if len(q) < minQuery || len(q) > maxQuery {
		return "", false
	}
	if strings.ContainsAny(q, ";'\"\\\x00") || strings.Contains(q, "--") || strings.Contains(q, "/*") {
		return "", false
	}
	return q, true
}

// search is GET /api/v1/vulnerabilities/search.
func (a *API) search(w http.ResponseWriter, r *http.Request) {
	q, ok := validateQuery(r.URL.Query().Get("q"))
	if !ok {
		jsonerr.Error(w, r, "q must be 2-500 characters without SQL metacharacters", http.StatusBadRequest, nil)
		return
	}
	p, err := pageParams(r)
	if err != nil {
		jsonerr.Error(w, r, err.Error(), http.StatusBadRequest, nil)
		return
	}
	field, order, err := sortParams(r)
	if err != nil {
		jsonerr.Error(w, r, err.Error(), http.StatusBadRequest, nil)
		return
	}
	f, err := searchFilters(r)
	if err != nil {
		jsonerr.Error(w, r, err.Error(), http.StatusBadRequest, nil)
		return
	}

	items, total, err := a.store.Search(r.Context(), q, f, field, order, p)
	if err != nil {
		storeError(w, r, err)
		return
	}
	respond(w, envelope(total, p, items))
}

// searchFilters parses the full filter set search accepts.
func searchFilters(r *http.Request) (datastore.VulnFilters, error) {
	var f datastore.VulnFilters
	var err error
	if f.Severity, err = severityParam(r); err != nil {
		return f, err
	}
	if f.Exploited, err = boolParam(r, "exploited"); err != nil {
		return f, err
	}
	q := r.URL.Query()
	f.Vendor = q.Get("vendor")
	f.Product = q.Get("product")
	f.CWE = q.Get("cwe")
	if f.MinCVSS, err = cvssParam(r, "min_cvss"); err != nil {
		return f, err
	}
	if f.MaxCVSS, err = cvssParam(r, "max_cvss"); err != nil {
		return f, err
	}
	if f.PublishedAfter, err = timeParam(r, "published_after"); err != nil {
		return f, err
	}
	if f.PublishedBefore, err = timeParam(r, "published_before"); err != nil {
		return f, err
	}
	return f, nil
}

func cvssParam(r *http.Request, name string) (*float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n < 0 || n > 10 {
		return nil, errBadParam(name, v)
	}
	return &n, nil
}

// suggest is GET /api/v1/vulnerabilities/suggest.
func (a *API) suggest(w http.ResponseWriter, r *http.Request) {
	q, ok := validateQuery(r.URL.Query().Get("q"))
	if !ok {
		jsonerr.Error(w, r, "q must be 2-500 characters without SQL metacharacters", http.StatusBadRequest, nil)
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 50 {
			jsonerr.Error(w, r, "limit must be in [1,50]", http.StatusBadRequest, nil)
			return
		}
		limit = n
	}
	out, err := a.store.Suggest(r.Context(), q, limit)
	if err != nil {
		storeError(w, r, err)
		return
	}
	respond(w, map[string]any{"suggestions": out})
}
