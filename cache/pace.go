package cache

import (
	"context"
	"time"

	"github.com/quay/zlog"
)

// Pacer spaces calls to a shared upstream across every process talking
// to the same Redis. One token exists per delay window; Wait blocks
// until it can claim one.
//
// This backs the NVD client's shared limiter: the published rate limit
// is per API key, not per process.
type Pacer struct {
	c     *Client
	key   string
	delay time.Duration
}

// NewPacer creates a pacer named for the upstream it guards.
func (c *Client) NewPacer(name string, delay time.Duration) *Pacer {
	return &Pacer{c: c, key: "pace:" + name, delay: delay}
}

// Wait blocks until the shared window opens or the context ends.
//
// On Redis failure Wait returns immediately: the per-process limiter in
// the upstream client still provides local pacing, and stalling
// ingestion on a cache outage would be worse than briefly overshooting.
func (p *Pacer) Wait(ctx context.Context) error {
	for {
		ok, err := p.c.r.SetNX(ctx, p.key, 1, p.delay).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			zlog.Warn(ctx).Err(err).Str("pacer", p.key).Msg("shared pacer unavailable, relying on local limiter")
			return nil
		}
		if ok {
			return nil
		}
		wait, err := p.c.r.PTTL(ctx, p.key).Result()
		if err != nil || wait <= 0 || wait > p.delay {
			wait = p.delay / 4
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
