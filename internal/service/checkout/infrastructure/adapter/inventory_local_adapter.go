package adapter

import (
	"context"
	"errors"
	"fmt"

	"stockpay/internal/service/checkout/domain"
	"stockpay/internal/service/checkout/domain/port"
	inventorydomain "stockpay/internal/service/inventory/domain"
)

// StockReserver 是库存服务 ReservationManager 的方法集
type StockReserver interface {
	Reserve(ctx context.Context, productID int64, quantity int) error
	Release(ctx context.Context, productID int64, quantity int) error
}

// InventoryLocalAdapter 在同一进程内调用库存服务，实现 port.ReservationService 与 port.Catalog。
// 库存侧的错误被翻译成结账侧的哨兵错误，原始错误仍可 Unwrap。
type InventoryLocalAdapter struct {
	reservations StockReserver
	products     inventorydomain.ProductReader
}

func NewInventoryLocalAdapter(reservations StockReserver, products inventorydomain.ProductReader) *InventoryLocalAdapter {
	return &InventoryLocalAdapter{reservations: reservations, products: products}
}

func (a *InventoryLocalAdapter) Reserve(ctx context.Context, productID int64, quantity int) error {
	return translateInventoryError(a.reservations.Reserve(ctx, productID, quantity))
}

func (a *InventoryLocalAdapter) Release(ctx context.Context, productID int64, quantity int) error {
	return translateInventoryError(a.reservations.Release(ctx, productID, quantity))
}

func (a *InventoryLocalAdapter) GetProduct(ctx context.Context, productID int64) (*port.Product, error) {
	rec, err := a.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, translateInventoryError(err)
	}
	return &port.Product{ID: rec.ID, Name: rec.Name, Price: rec.Price}, nil
}

func translateInventoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, inventorydomain.ErrNotFound):
		return fmt.Errorf("%w: %w", domain.ErrProductNotFound, err)
	case errors.Is(err, inventorydomain.ErrOutOfStock):
		return fmt.Errorf("%w: %w", domain.ErrOutOfStock, err)
	case errors.Is(err, inventorydomain.ErrInvalidQuantity):
		return fmt.Errorf("%w: %w", domain.ErrInvalidQuantity, err)
	case errors.Is(err, inventorydomain.ErrStockLockTimeout):
		return fmt.Errorf("%w: %w", domain.ErrInventoryBusy, err)
	default:
		return err
	}
}
