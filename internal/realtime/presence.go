package realtime

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence counts live sessions per user across instances.
type Presence interface {
	// Connect reports whether this is the user's first live session.
	Connect(ctx context.Context, userID int64) (bool, error)
	// Disconnect reports whether the user has no live sessions left.
	Disconnect(ctx context.Context, userID int64) (bool, error)
	IsOnline(ctx context.Context, userID int64) (bool, error)
	// Touch extends the user's presence while a session is live.
	Touch(ctx context.Context, userID int64) error
}

type redisPresence struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisPresence keeps one counter per user. The counter expires after
// ttl unless a live session touches it, so a crashed instance cannot pin a
// user online forever.
func NewRedisPresence(rdb *redis.Client, ttl time.Duration) Presence {
	return &redisPresence{rdb: rdb, ttl: ttl}
}

func presenceKey(userID int64) string {
	return "presence:user:" + strconv.FormatInt(userID, 10)
}

func (p *redisPresence) Connect(ctx context.Context, userID int64) (bool, error) {
	key := presenceKey(userID)
	var incr *redis.IntCmd
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, p.ttl)
		return nil
	})
	if err != nil {
		return false, err
	}
	return incr.Val() == 1, nil
}

func (p *redisPresence) Disconnect(ctx context.Context, userID int64) (bool, error) {
	key := presenceKey(userID)
	n, err := p.rdb.Decr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	// n < 0 when the counter expired before this disconnect
	if err := p.rdb.Del(ctx, key).Err(); err != nil {
		return true, err
	}
	return true, nil
}

func (p *redisPresence) Touch(ctx context.Context, userID int64) error {
	key := presenceKey(userID)
	ok, err := p.rdb.Expire(ctx, key, p.ttl).Result()
	if err != nil || ok {
		return err
	}
	// the counter expired under a live session
	return p.rdb.SetNX(ctx, key, 1, p.ttl).Err()
}

func (p *redisPresence) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := p.rdb.Get(ctx, presenceKey(userID)).Int64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
