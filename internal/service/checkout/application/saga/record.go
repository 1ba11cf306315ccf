package saga

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"stockpay/internal/service/checkout/domain"
)

// RecordPaymentHandler 负责写支付记录: PAID -> RECORDED。写入成功即不可回退。
type RecordPaymentHandler struct {
	NextHandler
}

func (h *RecordPaymentHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.RecordPayment")
	defer span.End()

	c := checkoutCtx.Checkout
	rec := &domain.PaymentRecord{
		CheckoutID: c.ID,
		ProductID:  c.ProductID,
		Quantity:   c.Quantity,
		Price:      c.Amount,
		ResultCode: c.ResultCode,
	}

	if err := checkoutCtx.Ledger.Record(ctx, rec); err != nil {
		// 钱已经扣了但没有记录，按支付失败处理并归还库存，同时要求对账
		payErr := &domain.PaymentError{Reason: domain.PaymentReasonLedgerError, ResultCode: c.ResultCode, Err: err}
		span.RecordError(payErr)
		span.SetStatus(codes.Error, "failed to record payment")
		return payErr
	}
	if err := c.MarkRecorded(rec); err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(attribute.Int64("payment.id", rec.ID))
	return h.executeNext(checkoutCtx)
}
