package application

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace/noop"

	"stockpay/internal/pkg/lock"
	"stockpay/internal/pkg/metrics"
	"stockpay/internal/service/inventory/domain"
	"stockpay/internal/service/inventory/infrastructure"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []int
}

func (o *recordingObserver) StockChanged(_ context.Context, _ int64, remaining int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, remaining)
}

func newManager(t *testing.T, stock int, opts ...Option) (*ReservationManager, *infrastructure.MemoryProductRepository) {
	t.Helper()
	repo := infrastructure.NewMemoryProductRepository(domain.StockRecord{ID: 1, Name: "widget", RemainingStockCount: stock})
	store := infrastructure.NewLockingStockStore(lock.NewKeyedMutex(), repo)
	return NewReservationManager(store, noop.NewTracerProvider().Tracer("test"), opts...), repo
}

func remaining(t *testing.T, repo *infrastructure.MemoryProductRepository) int {
	t.Helper()
	rec, err := repo.FindByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("failed to read stock: %v", err)
	}
	return rec.RemainingStockCount
}

func TestReserveSingleUnit(t *testing.T) {
	m, repo := newManager(t, 99)

	if err := m.Reserve(context.Background(), 1, 1); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := remaining(t, repo); got != 98 {
		t.Errorf("expected 98, got %d", got)
	}
}

func TestReserveMoreThanAvailable(t *testing.T) {
	m, repo := newManager(t, 99)

	err := m.Reserve(context.Background(), 1, 100)
	if !errors.Is(err, domain.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
	if got := remaining(t, repo); got != 99 {
		t.Errorf("expected stock unchanged at 99, got %d", got)
	}
}

func TestReserveUnknownProduct(t *testing.T) {
	m, _ := newManager(t, 10)

	if err := m.Reserve(context.Background(), 404, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := m.Release(context.Background(), 404, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on release, got %v", err)
	}
}

func TestReserveRejectsInvalidQuantity(t *testing.T) {
	m, repo := newManager(t, 10)

	if err := m.Reserve(context.Background(), 1, 0); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if got := remaining(t, repo); got != 10 {
		t.Errorf("expected stock unchanged, got %d", got)
	}
}

// 99 件库存，并发预占 {98, 1, 1}：恰好两个成功，且库存归零。
func TestConcurrentReservationsNeverOversell(t *testing.T) {
	m, repo := newManager(t, 99)

	quantities := []int{98, 1, 1}
	var succeeded int32
	var wg sync.WaitGroup
	for _, q := range quantities {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			err := m.Reserve(context.Background(), 1, q)
			switch {
			case err == nil:
				atomic.AddInt32(&succeeded, 1)
			case !errors.Is(err, domain.ErrOutOfStock):
				t.Errorf("unexpected error: %v", err)
			}
		}(q)
	}
	wg.Wait()

	if succeeded != 2 {
		t.Fatalf("expected exactly 2 successful reservations, got %d", succeeded)
	}
	if got := remaining(t, repo); got != 0 {
		t.Errorf("expected 0 remaining, got %d", got)
	}
}

func TestRandomConcurrentReservationsConserveStock(t *testing.T) {
	const initial = 500
	m, repo := newManager(t, initial)
	rng := rand.New(rand.NewSource(42))

	quantities := make([]int, 200)
	for i := range quantities {
		quantities[i] = rng.Intn(10) + 1
	}

	var reserved int64
	var wg sync.WaitGroup
	for _, q := range quantities {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			if err := m.Reserve(context.Background(), 1, q); err == nil {
				atomic.AddInt64(&reserved, int64(q))
			}
		}(q)
	}
	wg.Wait()

	got := remaining(t, repo)
	if got < 0 {
		t.Fatalf("stock went negative: %d", got)
	}
	if int64(got) != initial-reserved {
		t.Errorf("expected %d remaining, got %d", initial-reserved, got)
	}
}

func TestReleaseIsAdditiveAndUnconditional(t *testing.T) {
	m, repo := newManager(t, 0)

	if err := m.Release(context.Background(), 1, 5); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := m.Release(context.Background(), 1, 5); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := remaining(t, repo); got != 10 {
		t.Errorf("expected 10 after two releases, got %d", got)
	}
}

func TestReserveThenReleaseRestoresStock(t *testing.T) {
	m, repo := newManager(t, 10)

	if err := m.Reserve(context.Background(), 1, 5); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := m.Release(context.Background(), 1, 5); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := remaining(t, repo); got != 10 {
		t.Errorf("expected 10, got %d", got)
	}
}

func TestObserversAndMetrics(t *testing.T) {
	obs := &recordingObserver{}
	met := metrics.NewCheckoutMetrics(prometheus.NewRegistry())
	m, _ := newManager(t, 3, WithObserver(obs), WithMetrics(met))

	_ = m.Reserve(context.Background(), 1, 2)
	_ = m.Reserve(context.Background(), 1, 2)
	_ = m.Release(context.Background(), 1, 2)

	if len(obs.events) != 2 || obs.events[0] != 1 || obs.events[1] != 3 {
		t.Errorf("expected observer events [1 3], got %v", obs.events)
	}
	if got := testutil.ToFloat64(met.Reservations.WithLabelValues("reserve", "out_of_stock")); got != 1 {
		t.Errorf("expected 1 out_of_stock reservation, got %v", got)
	}
	if got := testutil.ToFloat64(met.Reservations.WithLabelValues("release", "ok")); got != 1 {
		t.Errorf("expected 1 release, got %v", got)
	}
}
