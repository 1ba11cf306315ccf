// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-zookeeper/zk"

	"stockpay/internal/pkg/lock"
)

const lockRoot = "/stockpay/locks" // 所有分布式锁的根节点

// Locker 用临时顺序节点实现公平的分布式锁，满足 lock.Locker。
// 会话断开时临时节点自动删除，持有者崩溃不会造成死锁。
type Locker struct {
	conn Conn
	root string
}

func NewLocker(conn Conn) *Locker {
	return &Locker{conn: conn, root: lockRoot}
}

// Lock 尝试获取锁，如果获取不到则阻塞等待，直到 ctx 结束。
func (l *Locker) Lock(ctx context.Context, key string) (lock.Unlock, error) {
	lockPath := l.root + "/" + key
	if err := ensurePath(l.conn, lockPath); err != nil {
		return nil, err
	}

	// 格式为: /stockpay/locks/<key>/_c_<guid>-lock-0000000001
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(lockPath+"/lock-", nil, zk.WorldACL(zk.PermAll))
	if err != nil {
		return nil, fmt.Errorf("failed to create sequential node: %w", err)
	}
	myNode := strings.TrimPrefix(nodePath, lockPath+"/")

	if err := l.waitTurn(ctx, lockPath, myNode); err != nil {
		// 放弃等待时必须删掉自己的节点，否则后继者会一直等下去
		_ = l.conn.Delete(nodePath, -1)
		return nil, err
	}

	var once sync.Once
	var unlockErr error
	return func() error {
		once.Do(func() {
			if err := l.conn.Delete(nodePath, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
				unlockErr = fmt.Errorf("failed to delete lock node: %w", err)
			}
		})
		return unlockErr
	}, nil
}

func (l *Locker) waitTurn(ctx context.Context, lockPath, myNode string) error {
	for {
		children, _, err := l.conn.Children(lockPath)
		if err != nil {
			return fmt.Errorf("failed to get children nodes: %w", err)
		}
		sortBySequence(children)

		idx := -1
		for i, child := range children {
			if child == myNode {
				idx = i
				break
			}
		}
		switch {
		case idx == 0:
			return nil
		case idx < 0:
			return errors.New("lock node disappeared, session may have expired")
		}

		// 只监听前一个节点，避免羊群效应
		prevNodePath := lockPath + "/" + children[idx-1]
		exists, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			return fmt.Errorf("failed to watch previous node: %w", err)
		}
		if !exists {
			continue
		}

		select {
		case <-eventChan:
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", lock.ErrLockTimeout, lockPath, ctx.Err())
		}
	}
}

// sortBySequence 按顺序号排序。受保护节点带有随机 guid 前缀，不能直接按字符串排序。
func sortBySequence(children []string) {
	sort.Slice(children, func(i, j int) bool {
		return sequenceOf(children[i]) < sequenceOf(children[j])
	})
}

func sequenceOf(node string) string {
	if i := strings.LastIndex(node, "-"); i >= 0 {
		return node[i+1:]
	}
	return node
}
