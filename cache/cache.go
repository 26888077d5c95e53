// Package cache is the Redis layer: dashboard-stats memoization,
// count memoization, rate-limit counters, distributed locks, and job
// checkpoint mirrors.
//
// Every value cached here has an authoritative counterpart in the
// datastore. The client is therefore deliberately fail-open: when Redis
// is unreachable, reads report a miss and writes are dropped with a log
// line, and callers fall through to the database.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quay/zlog"
	"github.com/redis/go-redis/v9"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/datastore"
)

// Key layout. Everything lives under a few fixed prefixes so an operator
// can reason about a SCAN.
const (
	statsKey         = `dashboard:stats`
	countKeyFmt      = `vuln:count:%s:%s:%s`
	rateKeyFmt       = `rate:%s:%s:%s`
	lockKeyFmt       = `lock:%s`
	checkpointKeyFmt = `checkpoint:%s`
)

// StatsTTL bounds how stale the dashboard aggregate may be.
const StatsTTL = 5 * time.Minute

// CountTTL bounds how stale a memoized filtered count may be.
const CountTTL = 5 * time.Minute

// Client wraps a Redis connection with the application's key schema.
type Client struct {
	r *redis.Client
}

// New connects using a redis:// URL.
func New(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, &threatdex.Error{
			Op:      "cache/New",
			Kind:    threatdex.ErrInvalid,
			Message: "failed to parse redis URL",
			Inner:   err,
		}
	}
	return &Client{r: redis.NewClient(opt)}, nil
}

// NewWithClient wraps an existing connection. Tests use this with
// miniredis.
func NewWithClient(r *redis.Client) *Client {
	return &Client{r: r}
}

// Close releases the connection pool.
func (c *Client) Close() error { return c.r.Close() }

// GetStats returns the cached dashboard aggregate, or nil on miss or any
// Redis failure.
func (c *Client) GetStats(ctx context.Context) *datastore.Stats {
	b, err := c.r.Get(ctx, statsKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			zlog.Warn(ctx).Err(err).Msg("stats cache read failed, treating as miss")
		}
		return nil
	}
	var st datastore.Stats
	if err := json.Unmarshal(b, &st); err != nil {
		zlog.Warn(ctx).Err(err).Msg("stats cache entry malformed, treating as miss")
		return nil
	}
	return &st
}

// SetStats stores the dashboard aggregate.
func (c *Client) SetStats(ctx context.Context, st *datastore.Stats) {
	b, err := json.Marshal(st)
	if err != nil {
		zlog.Warn(ctx).Err(err).Msg("stats cache encode failed")
		return
	}
	if err := c.r.Set(ctx, statsKey, b, StatsTTL).Err(); err != nil {
		zlog.Warn(ctx).Err(err).Msg("stats cache write failed")
	}
}

// InvalidateStats drops the cached aggregate. Called after a merge batch
// lands.
func (c *Client) InvalidateStats(ctx context.Context) {
	if err := c.r.Del(ctx, statsKey).Err(); err != nil {
		zlog.Warn(ctx).Err(err).Msg("stats cache invalidation failed")
	}
}

// CountKey renders the memoization key for one filter combination.
func CountKey(severity, exploited, sort string) string {
	if severity == "" {
		severity = "any"
	}
	if exploited == "" {
		exploited = "any"
	}
	if sort == "" {
		sort = "default"
	}
	return fmt.Sprintf(countKeyFmt, severity, exploited, sort)
}

// GetCount returns a memoized count; ok is false on miss or failure.
func (c *Client) GetCount(ctx context.Context, key string) (int64, bool) {
	n, err := c.r.Get(ctx, key).Int64()
	if err != nil {
		if err != redis.Nil {
			zlog.Warn(ctx).Err(err).Msg("count cache read failed, treating as miss")
		}
		return 0, false
	}
	return n, true
}

// SetCount memoizes a count.
func (c *Client) SetCount(ctx context.Context, key string, n int64) {
	if err := c.r.Set(ctx, key, n, CountTTL).Err(); err != nil {
		zlog.Warn(ctx).Err(err).Msg("count cache write failed")
	}
}

// SetCheckpoint mirrors a job cursor. The datastore copy is
// authoritative; this one only saves a query on hot paths.
func (c *Client) SetCheckpoint(ctx context.Context, job, cursor string) {
	key := fmt.Sprintf(checkpointKeyFmt, job)
	if err := c.r.Set(ctx, key, cursor, 0).Err(); err != nil {
		zlog.Warn(ctx).Err(err).Msg("checkpoint mirror write failed")
	}
}

// GetCheckpoint reads the mirrored cursor; ok is false on miss or
// failure.
func (c *Client) GetCheckpoint(ctx context.Context, job string) (string, bool) {
	v, err := c.r.Get(ctx, fmt.Sprintf(checkpointKeyFmt, job)).Result()
	if err != nil {
		if err != redis.Nil {
			zlog.Warn(ctx).Err(err).Msg("checkpoint mirror read failed")
		}
		return "", false
	}
	return v, true
}
