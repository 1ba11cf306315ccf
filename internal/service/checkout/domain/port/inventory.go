package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// ReservationService 是库存服务的出站端口。
type ReservationService interface {
	// Reserve 扣减库存。失败时返回 domain.ErrOutOfStock、domain.ErrProductNotFound 或 domain.ErrInventoryBusy，库存不变。
	Reserve(ctx context.Context, productID int64, quantity int) error

	// Release 是 Reserve 的补偿操作，无条件归还库存。
	Release(ctx context.Context, productID int64, quantity int) error
}

// Product 是结账需要的商品只读视图。
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
}

// Catalog 查询商品单价。找不到时返回 domain.ErrProductNotFound。
type Catalog interface {
	GetProduct(ctx context.Context, productID int64) (*Product, error)
}
