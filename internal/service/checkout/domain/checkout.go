// internal/service/checkout/domain/checkout.go
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Checkout 是一次结账 saga 的聚合根，只存在于内存中。
type Checkout struct {
	ID         string
	ProductID  int64
	Quantity   int
	State      State
	UnitPrice  decimal.Decimal
	Amount     decimal.Decimal
	ResultCode string
	Payment    *PaymentRecord
	Failure    error
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewCheckout 创建处于 START 状态的结账。
func NewCheckout(id string, productID int64, quantity int) (*Checkout, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty checkout id", ErrInvalidCheckout)
	}
	if productID <= 0 {
		return nil, fmt.Errorf("%w: product id %d", ErrInvalidCheckout, productID)
	}
	if quantity < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	now := time.Now()
	return &Checkout{
		ID:        id,
		ProductID: productID,
		Quantity:  quantity,
		State:     StateStart,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (c *Checkout) transition(next State) error {
	if !c.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, c.State, next)
	}
	c.State = next
	c.UpdatedAt = time.Now()
	return nil
}

// MarkReserved 库存预占成功。
func (c *Checkout) MarkReserved() error {
	return c.transition(StateReserved)
}

// ApplyPrice 按预占后读到的单价计算应付金额，只能在 RESERVED 状态调用。
func (c *Checkout) ApplyPrice(unitPrice decimal.Decimal) error {
	if c.State != StateReserved {
		return fmt.Errorf("%w: price applied in state %s", ErrIllegalTransition, c.State)
	}
	if !unitPrice.IsPositive() {
		return fmt.Errorf("%w: non-positive unit price %s", ErrInvalidCheckout, unitPrice)
	}
	c.UnitPrice = unitPrice
	c.Amount = unitPrice.Mul(decimal.NewFromInt(int64(c.Quantity)))
	return nil
}

// MarkPaid 网关返回了成功的结果码。
func (c *Checkout) MarkPaid(resultCode string) error {
	if err := c.transition(StatePaid); err != nil {
		return err
	}
	c.ResultCode = resultCode
	return nil
}

// MarkRecorded 支付记录已落库。
func (c *Checkout) MarkRecorded(rec *PaymentRecord) error {
	if err := c.transition(StateRecorded); err != nil {
		return err
	}
	c.Payment = rec
	return nil
}

// StartCompensation 预占之后的任何失败都要进入补偿。
func (c *Checkout) StartCompensation(cause error) error {
	if err := c.transition(StateCompensating); err != nil {
		return err
	}
	c.Failure = cause
	return nil
}

// MarkFailed 进入失败终态。
func (c *Checkout) MarkFailed(cause error) error {
	if err := c.transition(StateFailed); err != nil {
		return err
	}
	c.Failure = cause
	return nil
}

// NeedsCompensation 表示库存已被预占，失败时必须归还。
func (c *Checkout) NeedsCompensation() bool {
	return c.State == StateReserved || c.State == StatePaid
}
