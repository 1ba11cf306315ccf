package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentRecord 是一次成功网关调用的不可变记录。
// Price 是总价 (单价 × 数量)，ResultCode 原样保存网关返回的结果码。
type PaymentRecord struct {
	ID         int64           `json:"id"`
	CheckoutID string          `json:"checkoutId"`
	ProductID  int64           `json:"productId"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	ResultCode string          `json:"resultCode"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// PaymentLedger 是只追加的支付记录存储。
type PaymentLedger interface {
	// Record 持久化记录，并回填 ID 与 CreatedAt。
	Record(ctx context.Context, rec *PaymentRecord) error
	List(ctx context.Context) ([]PaymentRecord, error)
}
