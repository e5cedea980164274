package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/huddle/pkg/constant"
)

// RedisMirror keeps an online:{user_id} key with a TTL per online user
type RedisMirror struct {
	rdb *redis.Client
}

// NewRedisMirror creates a RedisMirror
func NewRedisMirror(rdb *redis.Client) *RedisMirror {
	return &RedisMirror{rdb: rdb}
}

func onlineKey(userId string) string {
	return fmt.Sprintf(constant.RedisKeyOnline(), userId)
}

// MarkOnline sets or refreshes the user's online key
func (m *RedisMirror) MarkOnline(ctx context.Context, userId string, ttl time.Duration) {
	if err := m.rdb.Set(ctx, onlineKey(userId), "1", ttl).Err(); err != nil {
		log.CtxWarn(ctx, "presence mirror set failed: user_id=%s, error=%v", userId, err)
	}
}

// MarkOffline deletes the user's online key
func (m *RedisMirror) MarkOffline(ctx context.Context, userId string) {
	if err := m.rdb.Del(ctx, onlineKey(userId)).Err(); err != nil {
		log.CtxWarn(ctx, "presence mirror del failed: user_id=%s, error=%v", userId, err)
	}
}

// IsOnline checks the user's online key
func (m *RedisMirror) IsOnline(ctx context.Context, userId string) bool {
	exists, err := m.rdb.Exists(ctx, onlineKey(userId)).Result()
	if err != nil {
		log.CtxWarn(ctx, "presence mirror read failed: user_id=%s, error=%v", userId, err)
		return false
	}
	return exists > 0
}
