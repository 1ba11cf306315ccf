package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "stockpay:idem:"

// IdempotencyRedisAdapter 用 SETNX 实现 port.IdempotencyStore，key 默认在 ttl 后过期。
type IdempotencyRedisAdapter struct {
	rdb       redis.Cmdable
	ttl       time.Duration
	prefixTTL []prefixTTL
}

type prefixTTL struct {
	prefix string
	ttl    time.Duration
}

func NewIdempotencyRedisAdapter(rdb redis.Cmdable, ttl time.Duration) *IdempotencyRedisAdapter {
	return &IdempotencyRedisAdapter{rdb: rdb, ttl: ttl}
}

// WithPrefixTTL 为以 prefix 开头的 key 单独设置过期时间，ttl 为 0 表示永不过期。
// 库存归还的 key 过期后，被重放的归还消息会再加一次库存。
func (a *IdempotencyRedisAdapter) WithPrefixTTL(prefix string, ttl time.Duration) *IdempotencyRedisAdapter {
	a.prefixTTL = append(a.prefixTTL, prefixTTL{prefix: prefix, ttl: ttl})
	return a
}

func (a *IdempotencyRedisAdapter) ttlFor(key string) time.Duration {
	for _, p := range a.prefixTTL {
		if strings.HasPrefix(key, p.prefix) {
			return p.ttl
		}
	}
	return a.ttl
}

func (a *IdempotencyRedisAdapter) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := a.rdb.SetNX(ctx, idempotencyKeyPrefix+key, 1, a.ttlFor(key)).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency claim failed: %w", err)
	}
	return ok, nil
}

func (a *IdempotencyRedisAdapter) Forget(ctx context.Context, key string) error {
	if err := a.rdb.Del(ctx, idempotencyKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("idempotency forget failed: %w", err)
	}
	return nil
}
