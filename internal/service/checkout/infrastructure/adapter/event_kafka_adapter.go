package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"stockpay/internal/pkg/mq"
	"stockpay/internal/service/checkout/domain"
)

// HeaderEventType 标明消息体的事件类型
const HeaderEventType = "event-type"

// EventKafkaAdapter 实现 port.EventPublisher，所有事件写入同一个 topic，以 checkoutId 为 key。
type EventKafkaAdapter struct {
	writer mq.MessageWriter
}

func NewEventKafkaAdapter(writer mq.MessageWriter) *EventKafkaAdapter {
	return &EventKafkaAdapter{writer: writer}
}

func (a *EventKafkaAdapter) PaymentRecorded(ctx context.Context, event *domain.PaymentRecorded) error {
	return a.send(ctx, domain.EventPaymentRecorded, event.CheckoutID, event)
}

func (a *EventKafkaAdapter) CheckoutFailed(ctx context.Context, event *domain.CheckoutFailed) error {
	return a.send(ctx, domain.EventCheckoutFailed, event.CheckoutID, event)
}

func (a *EventKafkaAdapter) CompensationFailed(ctx context.Context, event *domain.CompensationFailed) error {
	return a.send(ctx, domain.EventCompensationFailed, event.CheckoutID, event)
}

func (a *EventKafkaAdapter) send(ctx context.Context, eventType, checkoutID string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	// 调用通用的 mq.ProduceMessage，它会自动处理追踪上下文注入
	return mq.ProduceMessage(ctx, a.writer, []byte(checkoutID), body,
		kafka.Header{Key: HeaderEventType, Value: []byte(eventType)})
}
