package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"

	"stockpay/internal/service/inventory/domain"
)

// ProductModel 对应数据库中的 products 表。
// check 约束是库存非负的最后一道防线，正常路径下由加锁后的比较保证。
type ProductModel struct {
	ID                  int64           `gorm:"primaryKey;autoIncrement"`
	Name                string          `gorm:"size:255;not null"`
	Description         string          `gorm:"type:text"`
	Price               decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	RemainingStockCount int             `gorm:"not null;default:0;check:chk_products_remaining_stock,remaining_stock_count >= 0"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ProductModel) TableName() string {
	return "products"
}

func toDomainStockRecord(m *ProductModel) *domain.StockRecord {
	return &domain.StockRecord{
		ID:                  m.ID,
		Name:                m.Name,
		Description:         m.Description,
		Price:               m.Price,
		RemainingStockCount: m.RemainingStockCount,
	}
}
