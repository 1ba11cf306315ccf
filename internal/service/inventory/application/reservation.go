package application

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockpay/internal/pkg/logger"
	"stockpay/internal/pkg/metrics"
	"stockpay/internal/service/inventory/domain"
)

// StockObserver 在库存变化并落库之后收到通知，不能影响预占结果。
type StockObserver interface {
	StockChanged(ctx context.Context, productID int64, remaining int)
}

// ReservationManager 是库存预占与归还的唯一入口。
type ReservationManager struct {
	store     domain.StockStore
	tracer    trace.Tracer
	metrics   *metrics.CheckoutMetrics
	observers []StockObserver
}

type Option func(*ReservationManager)

func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(r *ReservationManager) { r.metrics = m }
}

func WithObserver(o StockObserver) Option {
	return func(r *ReservationManager) { r.observers = append(r.observers, o) }
}

func NewReservationManager(store domain.StockStore, tracer trace.Tracer, opts ...Option) *ReservationManager {
	m := &ReservationManager{store: store, tracer: tracer}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Reserve 原子地扣减库存。库存不足返回 domain.ErrOutOfStock，商品不存在返回 domain.ErrNotFound，
// 两种情况下库存都不会改变。
func (m *ReservationManager) Reserve(ctx context.Context, productID int64, quantity int) error {
	return m.mutate(ctx, "reserve", productID, quantity, func(s *domain.StockRecord) error {
		return s.Reserve(quantity)
	})
}

// Release 原子地归还库存。它不是幂等的，每次成功的 Reserve 最多对应一次 Release。
func (m *ReservationManager) Release(ctx context.Context, productID int64, quantity int) error {
	return m.mutate(ctx, "release", productID, quantity, func(s *domain.StockRecord) error {
		return s.Release(quantity)
	})
}

func (m *ReservationManager) mutate(ctx context.Context, op string, productID int64, quantity int, fn func(*domain.StockRecord) error) error {
	ctx, span := m.tracer.Start(ctx, "inventory."+op)
	defer span.End()
	span.SetAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int("quantity", quantity),
	)

	if quantity < 1 {
		m.metrics.ObserveReservation(op, "invalid")
		span.SetStatus(codes.Error, domain.ErrInvalidQuantity.Error())
		return domain.ErrInvalidQuantity
	}

	updated, err := m.store.Mutate(ctx, productID, fn)
	if err != nil {
		m.metrics.ObserveReservation(op, resultLabel(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Ctx(ctx).Info().Err(err).
			Str("operation", op).
			Int64("product_id", productID).
			Int("quantity", quantity).
			Msg("stock mutation rejected")
		return err
	}

	m.metrics.ObserveReservation(op, "ok")
	span.SetAttributes(attribute.Int("stock.remaining", updated.RemainingStockCount))
	logger.Ctx(ctx).Debug().
		Str("operation", op).
		Int64("product_id", productID).
		Int("quantity", quantity).
		Int("remaining", updated.RemainingStockCount).
		Msg("stock mutated")

	for _, o := range m.observers {
		o.StockChanged(ctx, productID, updated.RemainingStockCount)
	}
	return nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrStockLockTimeout):
		return "lock_timeout"
	default:
		return "error"
	}
}
