package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"stockpay/internal/pkg/lock"
	"stockpay/internal/pkg/logger"
	"stockpay/internal/service/inventory/domain"
)

// LockingStockStore 用外部按 key 的锁保护普通仓储上的读-改-写，
// 适用于没有行锁的存储 (内存、Redis 或 ZooKeeper 协调的多实例部署)。
type LockingStockStore struct {
	locker lock.Locker
	repo   domain.StockRepository
}

func NewLockingStockStore(locker lock.Locker, repo domain.StockRepository) *LockingStockStore {
	return &LockingStockStore{locker: locker, repo: repo}
}

func (s *LockingStockStore) Mutate(ctx context.Context, productID int64, fn func(*domain.StockRecord) error) (*domain.StockRecord, error) {
	unlock, err := s.locker.Lock(ctx, "product-"+strconv.FormatInt(productID, 10))
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return nil, fmt.Errorf("%w: %w", domain.ErrStockLockTimeout, err)
		}
		return nil, err
	}
	defer func() {
		if err := unlock(); err != nil {
			// 锁在持有期间过期意味着互斥可能被破坏，需要排查 TTL 配置
			logger.Ctx(ctx).Error().Err(err).Int64("product_id", productID).Msg("failed to release stock lock")
		}
	}()

	record, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	expected := record.RemainingStockCount
	if err := fn(record); err != nil {
		return nil, err
	}
	// 锁可能在持有期间过期 (Redis 租约、ZooKeeper 会话)，写回时再校验一次读到的值
	if err := s.repo.UpdateStockCount(ctx, productID, expected, record.RemainingStockCount); err != nil {
		if errors.Is(err, domain.ErrStockConflict) {
			logger.Ctx(ctx).Warn().Int64("product_id", productID).Msg("stock record changed while holding the lock")
		}
		return nil, err
	}
	return record, nil
}
