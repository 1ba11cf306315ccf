package saga

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ReserveHandler 负责库存预占步骤: START -> RESERVED。
type ReserveHandler struct {
	NextHandler
}

func (h *ReserveHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.ReserveStock")
	defer span.End()

	c := checkoutCtx.Checkout
	span.SetAttributes(
		attribute.String("checkout.id", c.ID),
		attribute.Int64("product.id", c.ProductID),
		attribute.Int("quantity", c.Quantity),
	)

	// 预占失败时库存没有变化，不需要补偿
	if err := checkoutCtx.Reservations.Reserve(ctx, c.ProductID, c.Quantity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stock reservation failed")
		return err
	}
	if err := c.MarkReserved(); err != nil {
		span.RecordError(err)
		return err
	}

	productID, quantity := c.ProductID, c.Quantity
	checkoutCtx.AddCompensation("release-stock", func(compCtx context.Context) error {
		compCtx, compSpan := checkoutCtx.Tracer.Start(compCtx, "saga.compensation.ReleaseStock")
		defer compSpan.End()
		compSpan.SetAttributes(
			attribute.Int64("product.id", productID),
			attribute.Int("quantity", quantity),
		)

		if err := checkoutCtx.Reservations.Release(compCtx, productID, quantity); err != nil {
			compSpan.RecordError(err, trace.WithAttributes(attribute.Bool("critical.error", true)))
			compSpan.SetStatus(codes.Error, "stock release failed")
			return err
		}
		return nil
	})

	span.AddEvent("stock reserved")
	return h.executeNext(checkoutCtx)
}
