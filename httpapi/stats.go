package httpapi

import (
	"net/http"
	"strconv"

	"github.com/threatdex/threatdex/pkg/jsonerr"
)

// stats is GET /api/v1/vulnerabilities/stats. Cache first; the refresh
// job usually keeps the entry warm.
func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	if st := a.cache.GetStats(r.Context()); st != nil {
		respond(w, st)
		return
	}
	st, err := a.store.Stats(r.Context())
	if err != nil {
		storeError(w, r, err)
		return
	}
	a.cache.SetStats(r.Context(), st)
	respond(w, st)
}

// timeline is GET /api/v1/vulnerabilities/timeline.
func (a *API) timeline(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 365 {
			jsonerr.Error(w, r, "days must be in [1,365]", http.StatusBadRequest, nil)
			return
		}
		days = n
	}
	points, err := a.store.Timeline(r.Context(), days)
	if err != nil {
		storeError(w, r, err)
		return
	}
	respond(w, map[string]any{"days": days, "timeline": points})
}

// topVendors is GET /api/v1/vulnerabilities/top-vendors.
func (a *API) topVendors(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			jsonerr.Error(w, r, "limit must be in [1,100]", http.StatusBadRequest, nil)
			return
		}
		limit = n
	}
	vendors, err := a.store.TopVendors(r.Context(), limit)
	if err != nil {
		storeError(w, r, err)
		return
	}
	respond(w, map[string]any{"vendors": vendors})
}

// severityDistribution is GET /api/v1/vulnerabilities/severity-distribution.
func (a *API) severityDistribution(w http.ResponseWriter, r *http.Request) {
	dist, err := a.store.SeverityDistribution(r.Context())
	if err != nil {
		storeError(w, r, err)
		return
	}
	respond(w, map[string]any{"distribution": dist})
}
