package httpapi

import (
	"net/http"
	"strconv"

	"github.com/threatdex/threatdex/pkg/jsonerr"
)

// news is GET /api/v1/news.
func (a *API) news(w http.ResponseWriter, r *http.Request) {
	p, err := pageParams(r)
	if err != nil {
		jsonerr.Error(w, r, err.Error(), http.StatusBadRequest, nil)
		return
	}
	var sourceID int64
	if v := r.URL.Query().Get("source_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			jsonerr.Error(w, r, "invalid source_id: "+v, http.StatusBadRequest, nil)
			return
		}
		sourceID = n
	}
	items, total, err := a.store.ListArticles(r.Context(), sourceID, p)
	if err != nil {
		storeError(w, r, err)
		return
	}
	respond(w, envelope(total, p, items))
}

// newsSources is GET /api/v1/news/sources.
func (a *API) newsSources(w http.ResponseWriter, r *http.Request) {
	srcs, err := a.store.ListSources(r.Context(), false)
	if err != nil {
		storeError(w, r, err)
		return
	}
	respond(w, map[string]any{"sources": srcs})
}

// runs is GET /api/v1/ingestion/runs.
func (a *API) runs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			jsonerr.Error(w, r, "limit must be in [1,200]", http.StatusBadRequest, nil)
			return
		}
		limit = n
	}
	out, err := a.store.ListRuns(r.Context(), r.URL.Query().Get("source"), limit)
	if err != nil {
		storeError(w, r, err)
		return
	}
	respond(w, map[string]any{"runs": out})
}
