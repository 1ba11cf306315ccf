package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// StockRecord 是一个商品的库存记录，也是互斥的最小单位。
// RemainingStockCount 在任何时刻都不能为负数。
type StockRecord struct {
	ID                  int64
	Name                string
	Description         string
	Price               decimal.Decimal
	RemainingStockCount int
}

// Reserve 扣减 quantity 件库存。库存不足时返回 *OutOfStockError，记录保持不变。
func (s *StockRecord) Reserve(quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	if s.RemainingStockCount < quantity {
		return &OutOfStockError{
			ProductID: s.ID,
			Requested: quantity,
			Remaining: s.RemainingStockCount,
		}
	}
	s.RemainingStockCount -= quantity
	return nil
}

// Release 归还 quantity 件库存，不检查是否曾经预占过。
func (s *StockRecord) Release(quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	s.RemainingStockCount += quantity
	return nil
}
