package httpapi

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quay/zlog"

	"github.com/threatdex/threatdex/cache"
	"github.com/threatdex/threatdex/pkg/jsonerr"
)

// statusWriter captures the status code for the access log and metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// observe times every request and writes one access-log line.
func (a *API) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		dur := time.Since(start)
		requestDuration.WithLabelValues(r.URL.Path, strconv.Itoa(sw.status)).Observe(dur.Seconds())
		zlog.Debug(r.Context()).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", dur).
			Msg("request")
	})
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimit enforces the per-IP fixed windows. The counters live in the
// cache and fail open; an unreachable cache never blocks reads.
func (a *API) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.perMinute <= 0 && a.perHour <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ip := clientIP(r)
		if _, ok := a.whitelist[ip]; ok {
			next.ServeHTTP(w, r)
			return
		}

		now := a.now()
		if a.perMinute > 0 {
			n := a.cache.IncrWindow(r.Context(), ip, cache.Minute, now)
			if n > a.perMinute {
				tooMany(w, r, a.perMinute, "Minute", 60)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(a.perMinute, 10))
			w.Header().Set("X-RateLimit-Remaining-Minute", strconv.FormatInt(a.perMinute-n, 10))
		}
		if a.perHour > 0 {
			n := a.cache.IncrWindow(r.Context(), ip, cache.Hour, now)
			if n > a.perHour {
				tooMany(w, r, a.perHour, "Hour", 3600)
				return
			}
			w.Header().Set("X-RateLimit-Remaining-Hour", strconv.FormatInt(a.perHour-n, 10))
		}
		next.ServeHTTP(w, r)
	})
}

func tooMany(w http.ResponseWriter, r *http.Request, limit int64, window string, retryAfter int) {
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
	w.Header().Set("X-RateLimit-Remaining-"+window, "0")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	jsonerr.Error(w, r, "rate limit exceeded", http.StatusTooManyRequests,
		map[string]int{"retry_after": retryAfter})
}
