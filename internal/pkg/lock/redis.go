package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 只有持有者 token 匹配时才删除，避免误删过期后被别人拿到的锁。
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker 基于 SET NX PX 实现的分布式锁。
// ttl 必须大于一次读改写的耗时，否则锁会在持有期间过期。
type RedisLocker struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration

	newToken func() string
}

func NewRedisLocker(rdb redis.Cmdable, prefix string, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		rdb:      rdb,
		prefix:   prefix,
		ttl:      ttl,
		wait:     wait,
		retry:    20 * time.Millisecond,
		newToken: func() string { return uuid.NewString() },
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := l.prefix + key
	token := l.newToken()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: redis SETNX %s: %w", redisKey, err)
		}
		if ok {
			return l.unlockFunc(redisKey, token), nil
		}

		if time.Now().Add(l.retry).After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, redisKey)
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %w", ErrLockTimeout, redisKey, ctx.Err())
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) unlockFunc(redisKey, token string) Unlock {
	var once sync.Once
	var err error
	return func() error {
		once.Do(func() {
			// 调用方的 ctx 可能已经结束，释放锁使用独立的超时
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			n, evalErr := l.rdb.Eval(ctx, unlockScript, []string{redisKey}, token).Int64()
			switch {
			case evalErr != nil:
				err = fmt.Errorf("lock: redis unlock %s: %w", redisKey, evalErr)
			case n == 0:
				err = fmt.Errorf("%w: %s", ErrLockNotHeld, redisKey)
			}
		})
		return err
	}
}
