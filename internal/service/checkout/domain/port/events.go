package port

import (
	"context"

	"stockpay/internal/service/checkout/domain"
)

// EventPublisher 发布结账领域事件。发布失败不影响结账结果，只记录日志。
type EventPublisher interface {
	PaymentRecorded(ctx context.Context, event *domain.PaymentRecorded) error
	CheckoutFailed(ctx context.Context, event *domain.CheckoutFailed) error
	CompensationFailed(ctx context.Context, event *domain.CompensationFailed) error
}
