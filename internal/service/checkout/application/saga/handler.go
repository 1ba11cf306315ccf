package saga

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"stockpay/internal/pkg/logger"
	"stockpay/internal/pkg/metrics"
	"stockpay/internal/service/checkout/domain"
	"stockpay/internal/service/checkout/domain/port"
)

// CheckoutContext 在 Saga 流程中传递上下文数据。
// 所有外部依赖都是端口接口，补偿操作按注册的逆序执行。
type CheckoutContext struct {
	Ctx      context.Context
	Checkout *domain.Checkout
	Tracer   trace.Tracer
	Metrics  *metrics.CheckoutMetrics

	Reservations   port.ReservationService
	Catalog        port.Catalog
	Gateway        port.PaymentGateway
	Policy         port.ResultPolicy
	Ledger         domain.PaymentLedger
	PaymentTimeout time.Duration

	compensations []compensation
	compLock      sync.Mutex
}

type compensation struct {
	name string
	fn   func(ctx context.Context) error
}

// AddCompensation 注册一个补偿操作，后注册的先执行。
func (c *CheckoutContext) AddCompensation(name string, fn func(ctx context.Context) error) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]compensation{{name: name, fn: fn}}, c.compensations...)
}

// TriggerCompensation 执行并清空所有补偿操作，每个补偿最多执行一次，失败也不重试。
// 任何一个补偿失败都会在返回的错误中体现。
func (c *CheckoutContext) TriggerCompensation(ctx context.Context) error {
	c.compLock.Lock()
	pending := c.compensations
	c.compensations = nil
	c.compLock.Unlock()

	logger.Ctx(ctx).Info().
		Str("checkout_id", c.Checkout.ID).
		Int("count", len(pending)).
		Msg("executing compensations")

	var errs []error
	for _, comp := range pending {
		if err := comp.fn(ctx); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("checkout_id", c.Checkout.ID).
				Str("compensation", comp.name).
				Msg("compensation step failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PendingCompensations 返回尚未执行的补偿数量。
func (c *CheckoutContext) PendingCompensations() int {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	return len(c.compensations)
}

// Handler 是责任链中的一个步骤。
type Handler interface {
	SetNext(handler Handler) Handler
	Handle(checkoutCtx *CheckoutContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(checkoutCtx *CheckoutContext) error {
	if h.next != nil {
		return h.next.Handle(checkoutCtx)
	}
	return nil
}
