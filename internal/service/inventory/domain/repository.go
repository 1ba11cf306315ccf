package domain

import "context"

// StockStore 对单条库存记录执行带互斥的读-改-写。
// fn 在锁内执行；fn 返回 nil 时修改必须在释放锁之前持久化，返回错误时不做任何修改。
// 成功时返回修改后的记录快照。
type StockStore interface {
	Mutate(ctx context.Context, productID int64, fn func(*StockRecord) error) (*StockRecord, error)
}

// StockRepository 是不带互斥语义的普通存取，需要配合外部锁使用。
type StockRepository interface {
	FindByID(ctx context.Context, productID int64) (*StockRecord, error)
	// UpdateStockCount 仅当当前库存仍为 expected 时写入 remaining，
	// 否则返回 ErrStockConflict，记录不存在时返回 *NotFoundError。
	UpdateStockCount(ctx context.Context, productID int64, expected, remaining int) error
}

// ProductReader 供结账流程读取商品价格等只读信息。
type ProductReader interface {
	GetProduct(ctx context.Context, productID int64) (*StockRecord, error)
}
