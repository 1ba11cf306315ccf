package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-zookeeper/zk"

	"stockpay/internal/pkg/lock"
)

// fakeConn 是内存版的 ZooKeeper，只实现锁需要的语义。
type fakeConn struct {
	mu       sync.Mutex
	nodes    map[string]bool
	seq      int
	watchers map[string][]chan zk.Event
}

func newFakeConn() *fakeConn {
	return &fakeConn{nodes: map[string]bool{}, watchers: map[string][]chan zk.Event{}}
}

func (f *fakeConn) Exists(p string) (bool, *zk.Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes[p], &zk.Stat{}, nil
}

func (f *fakeConn) ExistsW(p string) (bool, *zk.Stat, <-chan zk.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan zk.Event, 1)
	f.watchers[p] = append(f.watchers[p], ch)
	return f.nodes[p], &zk.Stat{}, ch, nil
}

func (f *fakeConn) Create(p string, _ []byte, _ int32, _ []zk.ACL) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nodes[p] {
		return "", zk.ErrNodeExists
	}
	f.nodes[p] = true
	return p, nil
}

func (f *fakeConn) CreateProtectedEphemeralSequential(p string, _ []byte, _ []zk.ACL) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	dir, prefix := path.Split(p)
	// guid 故意倒序，验证排序使用顺序号而不是整个节点名
	node := fmt.Sprintf("%s_c_%04d-%s%010d", dir, 9999-f.seq, prefix, f.seq)
	f.nodes[node] = true
	return node, nil
}

func (f *fakeConn) Children(p string) ([]string, *zk.Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for n := range f.nodes {
		if strings.HasPrefix(n, p+"/") && !strings.Contains(strings.TrimPrefix(n, p+"/"), "/") {
			out = append(out, strings.TrimPrefix(n, p+"/"))
		}
	}
	return out, &zk.Stat{}, nil
}

func (f *fakeConn) Delete(p string, _ int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.nodes[p] {
		return zk.ErrNoNode
	}
	delete(f.nodes, p)
	for _, ch := range f.watchers[p] {
		ch <- zk.Event{Type: zk.EventNodeDeleted, Path: p}
	}
	delete(f.watchers, p)
	return nil
}

func TestLockerMutualExclusion(t *testing.T) {
	l := NewLocker(newFakeConn())
	ctx := context.Background()

	var mu sync.Mutex
	holders, maxHolders := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "product-1")
			if err != nil {
				t.Errorf("unexpected lock error: %v", err)
				return
			}
			mu.Lock()
			holders++
			if holders > maxHolders {
				maxHolders = holders
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			if err := unlock(); err != nil {
				t.Errorf("unexpected unlock error: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxHolders != 1 {
		t.Fatalf("expected a single holder at a time, got %d", maxHolders)
	}
}

func TestLockerWaitHonoursContext(t *testing.T) {
	conn := newFakeConn()
	l := NewLocker(conn)

	unlock, err := l.Lock(context.Background(), "product-1")
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "product-1"); !errors.Is(err, lock.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	children, _, _ := conn.Children(lockRoot + "/product-1")
	if len(children) != 1 {
		t.Errorf("expected abandoned waiter node to be removed, children: %v", children)
	}
}

func TestSortBySequence(t *testing.T) {
	nodes := []string{"_c_b-lock-0000000003", "_c_z-lock-0000000001", "_c_a-lock-0000000002"}
	sortBySequence(nodes)
	if nodes[0] != "_c_z-lock-0000000001" || nodes[2] != "_c_b-lock-0000000003" {
		t.Errorf("unexpected order %v", nodes)
	}
}
