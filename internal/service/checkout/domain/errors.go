package domain

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrOutOfStock        = errors.New("product is out of stock")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrInvalidCheckout   = errors.New("invalid checkout request")
	ErrInventoryBusy     = errors.New("inventory is busy, try again later")
	ErrIllegalTransition = errors.New("illegal checkout state transition")

	ErrPaymentFailed      = errors.New("payment failed")
	ErrCompensationFailed = errors.New("compensation failed")
	ErrDuplicateCheckout  = errors.New("checkout with this idempotency key already submitted")
)

// 支付失败的原因
const (
	PaymentReasonGatewayError = "gateway_error"
	PaymentReasonTimeout      = "timeout"
	PaymentReasonDeclined     = "declined"
	PaymentReasonLedgerError  = "ledger_error"
)

// PaymentError 描述支付步骤的失败，errors.Is(err, ErrPaymentFailed) 成立，底层原因可以 Unwrap。
type PaymentError struct {
	Reason     string
	ResultCode string
	Err        error
}

func (e *PaymentError) Error() string {
	msg := "payment failed: " + e.Reason
	if e.ResultCode != "" {
		msg += fmt.Sprintf(" (result code %q)", e.ResultCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PaymentError) Is(target error) bool { return target == ErrPaymentFailed }

func (e *PaymentError) Unwrap() error { return e.Err }

// CompensationError 表示失败后的库存归还也失败了，库存少了 Quantity 件，需要人工修复。
// 它同时包装了原始失败 (Cause) 与归还失败 (Err)。
type CompensationError struct {
	CheckoutID string
	ProductID  int64
	Quantity   int
	Cause      error
	Err        error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation failed for checkout %s (product %d, quantity %d): %v; original failure: %v",
		e.CheckoutID, e.ProductID, e.Quantity, e.Err, e.Cause)
}

func (e *CompensationError) Is(target error) bool { return target == ErrCompensationFailed }

func (e *CompensationError) Unwrap() []error { return []error{e.Cause, e.Err} }
