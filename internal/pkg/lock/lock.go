// Package lock 提供按 key 互斥的锁实现: 进程内、Redis，ZooKeeper 的实现在 internal/zookeeper。
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrLockTimeout = errors.New("lock: timed out waiting for lock")
	ErrLockNotHeld = errors.New("lock: lock is no longer held")
)

// Unlock 释放一次成功获取的锁。多次调用只生效一次。
type Unlock func() error

// Locker 对单个 key 加互斥锁，阻塞直到获取成功或 ctx 结束。
// 不同 key 之间互不影响。
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// KeyedMutex 是进程内的按 key 互斥锁，空闲的 key 会被回收。
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

func (k *KeyedMutex) Lock(ctx context.Context, key string) (Unlock, error) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, fmt.Errorf("%w: %s: %w", ErrLockTimeout, key, ctx.Err())
	}

	var once sync.Once
	return func() error {
		once.Do(func() {
			<-l.ch
			k.release(key, l)
		})
		return nil
	}, nil
}

func (k *KeyedMutex) release(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// size 返回仍被引用的 key 数量。
func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
