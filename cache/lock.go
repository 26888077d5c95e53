package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quay/zlog"
	"github.com/redis/go-redis/v9"

	"github.com/threatdex/threatdex"
)

// releaseScript deletes the lock only if the token still matches, so a
// holder whose lease expired cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

// Lock is a held distributed lock. The zero value is not valid; locks
// come from TryLock.
type Lock struct {
	c     *Client
	key   string
	token string
}

// TryLock attempts a non-blocking acquire with the given lease. A nil
// Lock with a nil error means somebody else holds it.
//
// Unlike the read-side caches this is NOT fail-open: if Redis is down we
// cannot prove exclusivity, so the acquire fails and single-flight work
// is skipped rather than duplicated.
func (c *Client) TryLock(ctx context.Context, name string, lease time.Duration) (*Lock, error) {
	key := fmt.Sprintf(lockKeyFmt, name)
	token := uuid.New().String()
	ok, err := c.r.SetNX(ctx, key, token, lease).Result()
	if err != nil {
		return nil, &threatdex.Error{Op: "cache/TryLock", Kind: threatdex.ErrTransient, Message: "lock backend unavailable", Inner: err}
	}
	if !ok {
		return nil, nil
	}
	return &Lock{c: c, key: key, token: token}, nil
}

// Release drops the lock if this holder still owns it.
func (l *Lock) Release(ctx context.Context) {
	if l == nil {
		return
	}
	if err := releaseScript.Run(ctx, l.c.r, []string{l.key}, l.token).Err(); err != nil {
		zlog.Warn(ctx).Err(err).Str("lock", l.key).Msg("lock release failed, lease will expire it")
	}
}
