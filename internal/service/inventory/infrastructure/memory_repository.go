package infrastructure

import (
	"context"
	"sync"

	"stockpay/internal/service/inventory/domain"
)

// MemoryProductRepository 是内存实现，单条操作是原子的，但读改写之间不互斥，
// 需要通过 LockingStockStore 使用。
type MemoryProductRepository struct {
	mu       sync.RWMutex
	products map[int64]domain.StockRecord
}

func NewMemoryProductRepository(records ...domain.StockRecord) *MemoryProductRepository {
	r := &MemoryProductRepository{products: make(map[int64]domain.StockRecord)}
	for _, rec := range records {
		r.products[rec.ID] = rec
	}
	return r
}

func (r *MemoryProductRepository) FindByID(_ context.Context, productID int64) (*domain.StockRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.products[productID]
	if !ok {
		return nil, &domain.NotFoundError{ProductID: productID}
	}
	return &rec, nil
}

func (r *MemoryProductRepository) UpdateStockCount(_ context.Context, productID int64, expected, remaining int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.products[productID]
	if !ok {
		return &domain.NotFoundError{ProductID: productID}
	}
	if rec.RemainingStockCount != expected {
		return domain.ErrStockConflict
	}
	rec.RemainingStockCount = remaining
	r.products[productID] = rec
	return nil
}

func (r *MemoryProductRepository) GetProduct(ctx context.Context, productID int64) (*domain.StockRecord, error) {
	return r.FindByID(ctx, productID)
}
