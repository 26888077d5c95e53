// Package httpapi is the read-side HTTP surface.
//
// Every endpoint is a read; mutation happens only through the ingestion
// pipeline. Handlers validate at the boundary, lean on the cache for the
// hot aggregates, and never leak storage errors to the client.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/cache"
	"github.com/threatdex/threatdex/datastore"
	"github.com/threatdex/threatdex/pkg/jsonerr"
)

// Pagination bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var (
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "threatdex",
			Subsystem: "httpapi",
			Name:      "request_duration_seconds",
			Help:      "Time per request, by route and status.",
		},
		[]string{"route", "status"},
	)
)

// API serves the read endpoints.
type API struct {
	store datastore.Store
	cache *cache.Client

	perMinute int64
	perHour   int64
	whitelist map[string]struct{}
	origins   []string
	now       func() time.Time
}

// Option configures the API.
type Option func(*API)

// WithRateLimits sets the per-IP request ceilings. Zero disables the
// corresponding window.
func WithRateLimits(perMinute, perHour int64) Option {
	return func(a *API) {
		a.perMinute, a.perHour = perMinute, perHour
	}
}

// WithWhitelist exempts addresses from rate limiting.
func WithWhitelist(ips []string) Option {
	return func(a *API) {
		for _, ip := range ips {
			if ip != "" {
				a.whitelist[ip] = struct{}{}
			}
		}
	}
}

// WithAllowedOrigins sets the CORS allow-list.
func WithAllowedOrigins(origins []string) Option {
	return func(a *API) { a.origins = origins }
}

// WithClock fixes the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *API) { a.now = now }
}

// New assembles the router.
func New(store datastore.Store, c *cache.Client, opts ...Option) *API {
	a := &API{
		store:     store,
		cache:     c,
		whitelist: make(map[string]struct{}),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the routed http.Handler.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(a.observe)
	if len(a.origins) != 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: a.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", a.healthz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(a.rateLimit)
		r.Route("/vulnerabilities", func(r chi.Router) {
			r.Get("/", a.list)
			r.Get("/exploited", a.exploited)
			r.Get("/recent", a.recent)
			r.Get("/vendor/{vendor}", a.byVendor)
			r.Get("/search", a.search)
			r.Get("/suggest", a.suggest)
			r.Get("/stats", a.stats)
			r.Get("/timeline", a.timeline)
			r.Get("/top-vendors", a.topVendors)
			r.Get("/severity-distribution", a.severityDistribution)
			r.Get("/trending", a.trending)
			r.Get("/{cve}", a.get)
		})
		r.Get("/news", a.news)
		r.Get("/news/sources", a.newsSources)
		r.Get("/ingestion/runs", a.runs)
	})
	return r
}

// Envelope is the pagination wrapper on every list response.
type Envelope struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
	Items      any   `json:"items"`
}

func envelope(total int64, p datastore.Page, items any) *Envelope {
	pages := int((total + int64(p.Size) - 1) / int64(p.Size))
	return &Envelope{
		Total:      total,
		Page:       p.Number,
		PageSize:   p.Size,
		TotalPages: pages,
		Items:      items,
	}
}

func respond(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	// The connection is gone if this fails; nothing useful to do.
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	respond(w, map[string]string{
		"status": "ok",
		"time":   a.now().UTC().Format(time.RFC3339),
	})
}

// storeError converts a datastore failure into a client response without
// leaking internals.
func storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, threatdex.ErrNotFound):
		jsonerr.Error(w, r, "not found", http.StatusNotFound, nil)
	case errors.Is(err, threatdex.ErrInvalid):
		jsonerr.Error(w, r, "invalid request", http.StatusBadRequest, nil)
	default:
		zlog.Error(r.Context()).Err(err).Str("path", r.URL.Path).Msg("query failed")
		jsonerr.Error(w, r, "internal server error", http.StatusInternalServerError, nil)
	}
}

// pageParams parses 1-based pagination with defaults and caps.
func pageParams(r *http.Request) (datastore.Page, error) {
	p := datastore.Page{Number: 1, Size: DefaultPageSize}
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, errBadParam("page", v)
		}
		p.Number = n
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxPageSize {
			return p, errBadParam("page_size", v)
		}
		p.Size = n
	}
	return p, nil
}

func errBadParam(name, val string) error {
	return &threatdex.Error{
		Op:      "httpapi/params",
		Kind:    threatdex.ErrInvalid,
		Message: "invalid " + name + ": " + val,
	}
}

// sortParams validates sort_by and sort_order against the closed sets.
func sortParams(r *http.Request) (datastore.SortField, datastore.SortOrder, error) {
	field := datastore.SortPriority
	order := datastore.Desc
	if v := r.URL.Query().Get("sort_by"); v != "" {
		switch f := datastore.SortField(v); f {
		case datastore.SortPriority, datastore.SortPublished, datastore.SortModified,
			datastore.SortUpdated, datastore.SortCVSS, datastore.SortSeverity, datastore.SortCVE:
			field = f
		default:
			return "", "", errBadParam("sort_by", v)
		}
	}
	if v := r.URL.Query().Get("sort_order"); v != "" {
		switch o := datastore.SortOrder(v); o {
		case datastore.Asc, datastore.Desc:
			order = o
		default:
			return "", "", errBadParam("sort_order", v)
		}
	}
	return field, order, nil
}

// severityParam parses an optional severity filter.
func severityParam(r *http.Request) (*threatdex.Severity, error) {
	v := r.URL.Query().Get("severity")
	if v == "" {
		return nil, nil
	}
	// ParseSeverity maps anything it does not recognize to Unknown; only a
	// literal UNKNOWN is a valid filter for unscored records.
	s := threatdex.ParseSeverity(v)
	if s == threatdex.Unknown && !strings.EqualFold(v, "UNKNOWN") {
		return nil, errBadParam("severity", v)
	}
	return &s, nil
}

// boolParam parses an optional boolean filter.
func boolParam(r *http.Request, name string) (*bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, errBadParam(name, v)
	}
	return &b, nil
}
