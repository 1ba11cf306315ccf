package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"

	"stockpay/internal/service/checkout/domain"
)

// PaymentModel 对应 payments 表，只插入不更新。
type PaymentModel struct {
	ID         int64           `gorm:"primaryKey;autoIncrement"`
	CheckoutID string          `gorm:"size:64;not null;uniqueIndex:uk_payments_checkout_id"`
	ProductID  int64           `gorm:"not null;index"`
	Quantity   int             `gorm:"not null"`
	Price      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ResultCode string          `gorm:"size:32;not null"`
	CreatedAt  time.Time
}

// TableName 指定 GORM 应该使用的表名
func (PaymentModel) TableName() string {
	return "payments"
}

func toPaymentModel(rec *domain.PaymentRecord) *PaymentModel {
	return &PaymentModel{
		ID:         rec.ID,
		CheckoutID: rec.CheckoutID,
		ProductID:  rec.ProductID,
		Quantity:   rec.Quantity,
		Price:      rec.Price,
		ResultCode: rec.ResultCode,
		CreatedAt:  rec.CreatedAt,
	}
}

func toDomainPaymentRecord(m *PaymentModel) domain.PaymentRecord {
	return domain.PaymentRecord{
		ID:         m.ID,
		CheckoutID: m.CheckoutID,
		ProductID:  m.ProductID,
		Quantity:   m.Quantity,
		Price:      m.Price,
		ResultCode: m.ResultCode,
		CreatedAt:  m.CreatedAt,
	}
}
