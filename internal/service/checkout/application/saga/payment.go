package saga

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"stockpay/internal/pkg/logger"
	"stockpay/internal/service/checkout/domain"
)

// PaymentHandler 负责计价与调用支付网关: RESERVED -> PAID。
// 锁在预占步骤内已经释放，网关调用期间不持有任何库存锁。
type PaymentHandler struct {
	NextHandler
}

func (h *PaymentHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.Pay")
	defer span.End()

	c := checkoutCtx.Checkout

	// 单价在预占成功之后读取
	product, err := checkoutCtx.Catalog.GetProduct(ctx, c.ProductID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "product lookup failed")
		return err
	}
	if err := c.ApplyPrice(product.Price); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid product price")
		return err
	}
	span.SetAttributes(attribute.String("payment.amount", c.Amount.String()))

	payCtx, cancel := context.WithTimeout(ctx, checkoutCtx.PaymentTimeout)
	defer cancel()

	started := time.Now()
	result, err := checkoutCtx.Gateway.Pay(payCtx, c.Amount)
	elapsed := time.Since(started)

	if err == nil && payCtx.Err() != nil {
		// 截止时间之后才返回的结果不可信
		err = payCtx.Err()
	}
	if err != nil {
		reason := domain.PaymentReasonGatewayError
		if errors.Is(err, context.DeadlineExceeded) {
			reason = domain.PaymentReasonTimeout
		}
		checkoutCtx.Metrics.ObserveGateway(reason, elapsed)
		payErr := &domain.PaymentError{Reason: reason, Err: err}
		span.RecordError(payErr)
		span.SetStatus(codes.Error, payErr.Error())
		return payErr
	}

	span.SetAttributes(attribute.String("payment.result_code", result.ResultCode))
	ok, err := checkoutCtx.Policy.IsSuccess(result)
	if err != nil || !ok {
		checkoutCtx.Metrics.ObserveGateway(domain.PaymentReasonDeclined, elapsed)
		payErr := &domain.PaymentError{Reason: domain.PaymentReasonDeclined, ResultCode: result.ResultCode, Err: err}
		span.RecordError(payErr)
		span.SetStatus(codes.Error, payErr.Error())
		return payErr
	}
	checkoutCtx.Metrics.ObserveGateway("ok", elapsed)

	if err := c.MarkPaid(result.ResultCode); err != nil {
		span.RecordError(err)
		return err
	}

	logger.Ctx(ctx).Info().
		Str("checkout_id", c.ID).
		Str("amount", c.Amount.String()).
		Str("result_code", result.ResultCode).
		Dur("elapsed", elapsed).
		Msg("payment accepted by gateway")
	span.AddEvent("payment accepted")
	return h.executeNext(checkoutCtx)
}
