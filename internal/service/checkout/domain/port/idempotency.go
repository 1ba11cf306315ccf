package port

import "context"

// IdempotencyStore 记录已经处理过的请求 key。
type IdempotencyStore interface {
	// Claim 原子地占用 key。返回 false 表示 key 已被占用。
	Claim(ctx context.Context, key string) (bool, error)

	// Forget 释放 key，让同一请求可以再次执行。
	Forget(ctx context.Context, key string) error
}
