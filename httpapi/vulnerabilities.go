package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/cache"
	"github.com/threatdex/threatdex/datastore"
	"github.com/threatdex/threatdex/pkg/jsonerr"
)

// list is GET /api/v1/vulnerabilities.
func (a *API) list(w http.ResponseWriter, r *http.Request) {
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
	sev, err := severityParam(r)
	if err != nil {
		jsonerr.Error(w, r, err.Error(), http.StatusBadRequest, nil)
		return
	}
	exploited, err := boolParam(r, "exploited")
	if err != nil {
		jsonerr.Error(w, r, err.Error(), http.StatusBadRequest, nil)
		return
	}
	f := datastore.VulnFilters{Severity: sev, Exploited: exploited}

	items, total, err := a.store.List(r.Context(), f, field, order, p)
	if err != nil {
		storeError(w, r, err)
		return
	}
	// The common filter combinations memoize their count. A cached total
	// keeps the envelope stable while a client walks pages, even as
	// ingestion inserts rows underneath it.
	key := countKey(r, field)
	if n, ok := a.cache.GetCount(r.Context(), key); ok {
		total = n
	} else {
		a.cache.SetCount(r.Context(), key, total)
	}
	respond(w, envelope(total, p, items))
}

// countKey renders the memoization key when the filter combination is one
// the cache tracks.
func countKey(r *http.Request, field datastore.SortField) string {
	q := r.URL.Query()
	return cache.CountKey(q.Get("severity"), q.Get("exploited"), string(field))
}

// get is GET /api/v1/vulnerabilities/{cve}.
func (a *API) get(w http.ResponseWriter, r *http.Request) {
	id, ok := threatdex.ParseCVE(chi.URLParam(r, "cve"))
	if !ok {
		jsonerr.Error(w, r, "malformed CVE id", http.StatusBadRequest, nil)
		return
	}
	v, err := a.store.Get(r.Context(), id)
	if err != nil {
		storeError(w, r, err)
		return
	}
	respond(w, v)
}

// exploited is GET /api/v1/vulnerabilities/exploited.
func (a *API) exploited(w http.ResponseWriter, r *http.Request) {
	p, err := pageParams(r)
	if err != nil {
		jsonerr.Error(w, r, err.Error(), http.StatusBadRequest, nil)
		return
	}
	t := true
	f := datastore.VulnFilters{Exploited: &t}
	items, total, err := a.store.List(r.Context(), f, datastore.SortPriority, datastore.Desc, p)
	if err != nil {
		storeError(w, r, err)
		return
	}
	respond(w, envelope(total, p, items))
}

// recent is GET /api/v1/vulnerabilities/recent.
func (a *API) recent(w http.ResponseWriter, r *http.Request) {
	p, err := pageParams(r)
	if err != nil {
		jsonerr.Error(w, r, err.Error(), http.StatusBadRequest, nil)
		return
	}
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 365 {
			jsonerr.Error(w, r, "days must be in [1,365]", http.StatusBadRequest, nil)
			return
		}
		days = n
	}
	since := a.now().UTC().AddDate(0, 0, -days)
	f := datastore.VulnFilters{PublishedAfter: &since}
	items, total, err := a.store.List(r.Context(), f, datastore.SortPublished, datastore.Desc, p)
	if err != nil {
		storeError(w, r, err)
		return
	}
	respond(w, envelope(total, p, items))
}

// byVendor is GET /api/v1/vulnerabilities/vendor/{vendor}.
func (a *API) byVendor(w http.ResponseWriter, r *http.Request) {
	vendor := chi.URLParam(r, "vendor")
	if vendor == "" {
		jsonerr.Error(w, r, "missing vendor", http.StatusBadRequest, nil)
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
	f := datastore.VulnFilters{Vendor: vendor}
	items, total, err := a.store.List(r.Context(), f, field, order, p)
	if err != nil {
		storeError(w, r, err)
		return
	}
	respond(w, envelope(total, p, items))
}

// trending is GET /api/v1/vulnerabilities/trending.
func (a *API) trending(w http.ResponseWriter, r *http.Request) {
	p, err := pageParams(r)
	if err != nil {
		jsonerr.Error(w, r, err.Error(), http.StatusBadRequest, nil)
		return
	}
	t := datastore.TrendingHot
	if v := r.URL.Query().Get("type"); v != "" {
		switch tt := datastore.TrendingType(v); tt {
		case datastore.TrendingHot, datastore.TrendingTop:
			t = tt
		default:
			jsonerr.Error(w, r, "invalid type: "+v, http.StatusBadRequest, nil)
			return
		}
	}
	tr := datastore.RangeThisWeek
	if v := r.URL.Query().Get("time_range"); v != "" {
		switch rr := datastore.TimeRange(v); rr {
		case datastore.RangeToday, datastore.RangeThisWeek, datastore.RangeThisMonth, datastore.RangeAllTime:
			tr = rr
		default:
			jsonerr.Error(w, r, "invalid time_range: "+v, http.StatusBadRequest, nil)
			return
		}
	}
	items, total, err := a.store.Trending(r.Context(), t, tr, p)
	if err != nil {
		storeError(w, r, err)
		return
	}
	respond(w, envelope(total, p, items))
}

// timeParam parses an optional RFC 3339 or date-only instant.
func timeParam(r *http.Request, name string) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errBadParam(name, v)
}
