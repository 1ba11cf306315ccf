package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"

	"stockpay/internal/pkg/logger"
	"stockpay/internal/pkg/mq"
	"stockpay/internal/service/checkout/application"
	"stockpay/internal/service/checkout/domain"
)

const fetchRetryDelay = time.Second

// MessageReader 是 *kafka.Reader 中消费者用到的方法
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReleaseRetrier 由 application.CheckoutService 实现
type ReleaseRetrier interface {
	RetryRelease(ctx context.Context, req application.ReleaseRequest) error
}

// ReleaseConsumer 消费运维重放的 ReleaseRequested 消息。
// 处理失败的消息转入死信 topic 后照常提交，不阻塞后续消息。
type ReleaseConsumer struct {
	reader   MessageReader
	retrier  ReleaseRetrier
	failures *mq.FailureHandler
	tracer   trace.Tracer
	topic    string
	wg       sync.WaitGroup
}

func NewReleaseConsumer(reader MessageReader, retrier ReleaseRetrier, failures *mq.FailureHandler, tracer trace.Tracer, topic string) *ReleaseConsumer {
	return &ReleaseConsumer{reader: reader, retrier: retrier, failures: failures, tracer: tracer, topic: topic}
}

// Start 启动消费循环，ctx 取消后退出。
func (c *ReleaseConsumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", c.topic).Msg("release consumer started")
		for {
			// 使用 FetchMessage 而不是 ReadMessage，处理完成后再手动提交
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Str("topic", c.topic).Msg("release consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not fetch release message, retrying")
				select {
				case <-ctx.Done():
					return
				case <-time.After(fetchRetryDelay):
				}
				continue
			}

			c.handle(ctx, msg)

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit release message")
			}
		}
	}()
	return nil
}

func (c *ReleaseConsumer) Stop(ctx context.Context) {
	if err := c.reader.Close(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("failed to close release reader")
	}
	c.wg.Wait()
	logger.Ctx(ctx).Info().Str("topic", c.topic).Msg("release consumer stopped")
}

func (c *ReleaseConsumer) handle(parent context.Context, msg kafka.Message) {
	ctx := mq.ExtractTraceContext(parent, msg.Headers)
	ctx, span := c.tracer.Start(ctx, "kafka.ReleaseRequested", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var event domain.ReleaseRequested
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		span.RecordError(err)
		c.failures.Handle(ctx, msg, err)
		return
	}

	err := c.retrier.RetryRelease(ctx, application.ReleaseRequest{
		CheckoutID: event.CheckoutID,
		ProductID:  event.ProductID,
		Quantity:   event.Quantity,
	})
	if err != nil {
		span.RecordError(err)
		c.failures.Handle(ctx, msg, err)
	}
}
