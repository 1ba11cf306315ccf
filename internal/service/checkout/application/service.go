// internal/service/checkout/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockpay/internal/pkg/logger"
	"stockpay/internal/pkg/metrics"
	"stockpay/internal/service/checkout/application/saga"
	"stockpay/internal/service/checkout/domain"
	"stockpay/internal/service/checkout/domain/port"
)

const publishTimeout = 3 * time.Second

// 幂等 key 的前缀。库存归还的 key 需要比结账 key 保留更久，见 IdempotencyRedisAdapter.WithPrefixTTL
const (
	CheckoutClaimPrefix = "checkout:"
	ReleaseClaimPrefix  = "release:"
)

// Dependencies 汇总结账服务的所有出站端口。Idempotency 与 Publisher 可以为 nil。
type Dependencies struct {
	Reservations port.ReservationService
	Catalog      port.Catalog
	Gateway      port.PaymentGateway
	Policy       port.ResultPolicy
	Ledger       domain.PaymentLedger
	Idempotency  port.IdempotencyStore
	Publisher    port.EventPublisher
	Metrics      *metrics.CheckoutMetrics
}

// CheckoutService 编排 预占 -> 支付 -> 记账 的 saga，并在失败时归还库存。
type CheckoutService struct {
	deps                Dependencies
	tracer              trace.Tracer
	paymentTimeout      time.Duration
	compensationTimeout time.Duration
	newID               func() string
}

func NewCheckoutService(deps Dependencies, tracer trace.Tracer, paymentTimeout, compensationTimeout time.Duration) *CheckoutService {
	if deps.Publisher == nil {
		deps.Publisher = noopPublisher{}
	}
	return &CheckoutService{
		deps:                deps,
		tracer:              tracer,
		paymentTimeout:      paymentTimeout,
		compensationTimeout: compensationTimeout,
		newID:               uuid.NewString,
	}
}

// Checkout 执行一次完整的购买。成功时返回落库的支付记录。
//
// 预占失败 (缺货、商品不存在) 直接返回，库存不变；预占之后的任何失败都会归还一次库存，
// 然后返回原始错误。归还也失败时返回 *domain.CompensationError。
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*domain.PaymentRecord, error) {
	ctx, span := s.tracer.Start(ctx, "app.Checkout")
	defer span.End()

	checkout, err := domain.NewCheckout(s.newID(), req.ProductID, req.Quantity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid checkout request")
		s.deps.Metrics.ObserveCheckout("invalid")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("checkout.id", checkout.ID),
		attribute.Int64("product.id", checkout.ProductID),
		attribute.Int("quantity", checkout.Quantity),
	)

	if req.IdempotencyKey != "" && s.deps.Idempotency != nil {
		claimed, err := s.deps.Idempotency.Claim(ctx, CheckoutClaimPrefix+req.IdempotencyKey)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "idempotency check failed")
			return nil, fmt.Errorf("failed to claim idempotency key: %w", err)
		}
		if !claimed {
			span.SetStatus(codes.Error, "duplicate checkout")
			s.deps.Metrics.ObserveCheckout("duplicate")
			return nil, domain.ErrDuplicateCheckout
		}
	}

	sagaCtx := &saga.CheckoutContext{
		Ctx:            ctx,
		Checkout:       checkout,
		Tracer:         s.tracer,
		Metrics:        s.deps.Metrics,
		Reservations:   s.deps.Reservations,
		Catalog:        s.deps.Catalog,
		Gateway:        s.deps.Gateway,
		Policy:         s.deps.Policy,
		Ledger:         s.deps.Ledger,
		PaymentTimeout: s.paymentTimeout,
	}

	if err := s.buildChain().Handle(sagaCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout failed")
		return nil, s.fail(ctx, sagaCtx, err)
	}

	rec := checkout.Payment
	s.deps.Metrics.ObserveCheckout("recorded")
	logger.Ctx(ctx).Info().
		Str("checkout_id", checkout.ID).
		Int64("payment_id", rec.ID).
		Int64("product_id", rec.ProductID).
		Int("quantity", rec.Quantity).
		Str("price", rec.Price.String()).
		Msg("checkout recorded")

	s.publish(ctx, func(ctx context.Context) error {
		return s.deps.Publisher.PaymentRecorded(ctx, &domain.PaymentRecorded{
			CheckoutID: checkout.ID,
			PaymentID:  rec.ID,
			ProductID:  rec.ProductID,
			Quantity:   rec.Quantity,
			Price:      rec.Price,
			ResultCode: rec.ResultCode,
			At:         rec.CreatedAt,
		})
	})
	return rec, nil
}

// fail 把 saga 推进到 FAILED，必要时先执行补偿。
func (s *CheckoutService) fail(ctx context.Context, sagaCtx *saga.CheckoutContext, cause error) error {
	checkout := sagaCtx.Checkout

	if !checkout.NeedsCompensation() {
		_ = checkout.MarkFailed(cause)
		s.deps.Metrics.ObserveCheckout(outcomeLabel(cause))
		s.publishFailed(ctx, checkout, cause, false)
		return cause
	}

	_ = checkout.StartCompensation(cause)

	// 调用方取消或支付超时都不能打断归还
	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
	defer cancel()

	if relErr := sagaCtx.TriggerCompensation(compCtx); relErr != nil {
		compErr := &domain.CompensationError{
			CheckoutID: checkout.ID,
			ProductID:  checkout.ProductID,
			Quantity:   checkout.Quantity,
			Cause:      cause,
			Err:        relErr,
		}
		_ = checkout.MarkFailed(compErr)

		trace.SpanFromContext(ctx).RecordError(compErr, trace.WithAttributes(attribute.Bool("critical.error", true)))
		s.deps.Metrics.IncCompensationFailure()
		s.deps.Metrics.ObserveCheckout("compensation_failed")
		logger.Ctx(ctx).Error().
			Bool("critical", true).
			Err(compErr).
			Str("checkout_id", checkout.ID).
			Int64("product_id", checkout.ProductID).
			Int("quantity", checkout.Quantity).
			Msg("CRITICAL: stock release failed after checkout failure, manual repair required")

		s.publish(compCtx, func(ctx context.Context) error {
			return s.deps.Publisher.CompensationFailed(ctx, &domain.CompensationFailed{
				CheckoutID: checkout.ID,
				ProductID:  checkout.ProductID,
				Quantity:   checkout.Quantity,
				Reason:     relErr.Error(),
				At:         time.Now(),
			})
		})
		return compErr
	}

	_ = checkout.MarkFailed(cause)
	s.deps.Metrics.ObserveCheckout(outcomeLabel(cause))
	logger.Ctx(ctx).Warn().Err(cause).
		Str("checkout_id", checkout.ID).
		Int64("product_id", checkout.ProductID).
		Int("quantity", checkout.Quantity).
		Msg("checkout failed, reserved stock released")
	s.publishFailed(compCtx, checkout, cause, true)
	return cause
}

// ListPayments 返回所有支付记录。
func (s *CheckoutService) ListPayments(ctx context.Context) ([]domain.PaymentRecord, error) {
	ctx, span := s.tracer.Start(ctx, "app.ListPayments")
	defer span.End()

	records, err := s.deps.Ledger.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list payments")
		return nil, err
	}
	return records, nil
}

// RetryRelease 处理补偿失败后重放的归还请求。同一个 CheckoutID 只会归还一次。
func (s *CheckoutService) RetryRelease(ctx context.Context, req ReleaseRequest) error {
	ctx, span := s.tracer.Start(ctx, "app.RetryRelease")
	defer span.End()
	span.SetAttributes(
		attribute.String("checkout.id", req.CheckoutID),
		attribute.Int64("product.id", req.ProductID),
		attribute.Int("quantity", req.Quantity),
	)

	if req.CheckoutID == "" || req.ProductID <= 0 {
		return fmt.Errorf("%w: release request needs checkoutId and productId", domain.ErrInvalidCheckout)
	}
	if req.Quantity < 1 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, req.Quantity)
	}

	key := ReleaseClaimPrefix + req.CheckoutID
	if s.deps.Idempotency != nil {
		claimed, err := s.deps.Idempotency.Claim(ctx, key)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to claim release key: %w", err)
		}
		if !claimed {
			logger.Ctx(ctx).Info().Str("checkout_id", req.CheckoutID).Msg("release already applied, skipping")
			span.AddEvent("duplicate release skipped")
			return nil
		}
	}

	if err := s.deps.Reservations.Release(ctx, req.ProductID, req.Quantity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "release failed")
		if s.deps.Idempotency != nil {
			// 归还没有生效，释放 key 以便再次重放
			if fErr := s.deps.Idempotency.Forget(context.WithoutCancel(ctx), key); fErr != nil {
				logger.Ctx(ctx).Error().Err(fErr).Str("checkout_id", req.CheckoutID).Msg("failed to forget release key")
			}
		}
		return err
	}

	logger.Ctx(ctx).Info().
		Str("checkout_id", req.CheckoutID).
		Int64("product_id", req.ProductID).
		Int("quantity", req.Quantity).
		Msg("replayed stock release applied")
	return nil
}

func (s *CheckoutService) buildChain() saga.Handler {
	chain := new(saga.ReserveHandler)
	chain.
		SetNext(new(saga.PaymentHandler)).
		SetNext(new(saga.RecordPaymentHandler))
	return chain
}

func (s *CheckoutService) publishFailed(ctx context.Context, checkout *domain.Checkout, cause error, compensated bool) {
	s.publish(ctx, func(ctx context.Context) error {
		return s.deps.Publisher.CheckoutFailed(ctx, &domain.CheckoutFailed{
			CheckoutID:  checkout.ID,
			ProductID:   checkout.ProductID,
			Quantity:    checkout.Quantity,
			Reason:      cause.Error(),
			Compensated: compensated,
			At:          time.Now(),
		})
	})
}

// publish 发布事件，失败只记日志。
func (s *CheckoutService) publish(ctx context.Context, fn func(ctx context.Context) error) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := fn(pubCtx); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("failed to publish checkout event")
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, domain.ErrProductNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInventoryBusy):
		return "inventory_busy"
	case errors.Is(err, domain.ErrPaymentFailed):
		return "payment_failed"
	default:
		return "error"
	}
}

type noopPublisher struct{}

func (noopPublisher) PaymentRecorded(context.Context, *domain.PaymentRecorded) error { return nil }

func (noopPublisher) CheckoutFailed(context.Context, *domain.CheckoutFailed) error { return nil }

func (noopPublisher) CompensationFailed(context.Context, *domain.CompensationFailed) error {
	return nil
}
