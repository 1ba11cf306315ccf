// internal/service/checkout/domain/event.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// 事件类型，写在 kafka 消息头 event-type 中
const (
	EventPaymentRecorded    = "PaymentRecorded"
	EventCheckoutFailed     = "CheckoutFailed"
	EventCompensationFailed = "CompensationFailed"
)

// PaymentRecorded 在支付记录落库后发布
type PaymentRecorded struct {
	CheckoutID string          `json:"checkoutId"`
	PaymentID  int64           `json:"paymentId"`
	ProductID  int64           `json:"productId"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	ResultCode string          `json:"resultCode"`
	At         time.Time       `json:"at"`
}

// CheckoutFailed 在结账失败且库存已恢复 (或从未预占) 时发布
type CheckoutFailed struct {
	CheckoutID  string    `json:"checkoutId"`
	ProductID   int64     `json:"productId"`
	Quantity    int       `json:"quantity"`
	Reason      string    `json:"reason"`
	Compensated bool      `json:"compensated"`
	At          time.Time `json:"at"`
}

// CompensationFailed 是需要人工介入的告警，处理方式是修复后向 release topic 重放 ReleaseRequested
type CompensationFailed struct {
	CheckoutID string    `json:"checkoutId"`
	ProductID  int64     `json:"productId"`
	Quantity   int       `json:"quantity"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}

// ReleaseRequested 是运维重放的库存归还命令，每个 CheckoutID 最多生效一次
type ReleaseRequested struct {
	CheckoutID string `json:"checkoutId"`
	ProductID  int64  `json:"productId"`
	Quantity   int    `json:"quantity"`
}
