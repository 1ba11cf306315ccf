package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("product not found")
	ErrOutOfStock      = errors.New("product is out of stock")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrStockLockTimeout 表示等待行锁超时或发生死锁，记录未被修改
	ErrStockLockTimeout = errors.New("timed out waiting for stock record lock")
	// ErrStockConflict 表示条件写回时记录已被他人修改，本次修改未生效。
	// 它包装了 ErrStockLockTimeout，调用方可以按同一种可重试错误处理
	ErrStockConflict = fmt.Errorf("%w: stock record changed since it was read", ErrStockLockTimeout)
)

// OutOfStockError 携带预占失败时的库存快照，errors.Is(err, ErrOutOfStock) 成立。
type OutOfStockError struct {
	ProductID int64
	Requested int
	Remaining int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %d is out of stock: requested %d, remaining %d", e.ProductID, e.Requested, e.Remaining)
}

func (e *OutOfStockError) Is(target error) bool {
	return target == ErrOutOfStock
}

// NotFoundError 指明缺失的商品 id。
type NotFoundError struct {
	ProductID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
