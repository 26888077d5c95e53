package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/quay/zlog"
)

// Window is a fixed rate-limit window.
type Window struct {
	Name   string // "minute" or "hour"
	Format string // time layout identifying the window
	TTL    time.Duration
}

var (
	// Minute buckets requests per calendar minute.
	Minute = Window{Name: "minute", Format: "200601021504", TTL: time.Minute}
	// Hour buckets requests per calendar hour.
	Hour = Window{Name: "hour", Format: "2006010215", TTL: time.Hour}
)

// IncrWindow counts one hit against the caller's current window and
// returns the running total. The INCR and EXPIRE ride one pipeline.
//
// On Redis failure the count is reported as zero, which callers treat
// as under-limit: an unavailable cache must not take the read API down
// with it.
func (c *Client) IncrWindow(ctx context.Context, key string, w Window, now time.Time) int64 {
	k := fmt.Sprintf(rateKeyFmt, key, w.Name, now.UTC().Format(w.Format))

	pipe := c.r.Pipeline()
	incr := pipe.Incr(ctx, k)
	// The window key dies shortly after the window does.
	pipe.Expire(ctx, k, w.TTL+10*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		zlog.Warn(ctx).Err(err).Str("key", key).Msg("rate counter unavailable, failing open")
		return 0
	}
	return incr.Val()
}
