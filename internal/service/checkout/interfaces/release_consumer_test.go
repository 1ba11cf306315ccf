package interfaces

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace/noop"

	"stockpay/internal/pkg/logger"
	"stockpay/internal/pkg/mq"
	"stockpay/internal/service/checkout/application"
)

// chanReader 从 channel 中读取消息，记录提交过的 offset
type chanReader struct {
	msgs      chan kafka.Message
	mu        sync.Mutex
	committed []int64
	closed    bool
}

func newChanReader(msgs ...kafka.Message) *chanReader {
	r := &chanReader{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *chanReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *chanReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *chanReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *chanReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type recordingRetrier struct {
	mu   sync.Mutex
	reqs []application.ReleaseRequest
	err  error
}

func (r *recordingRetrier) RetryRelease(_ context.Context, req application.ReleaseRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return r.err
}

type dltWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *dltWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *dltWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func runConsumer(t *testing.T, reader *chanReader, retrier *recordingRetrier, dlt *dltWriter, expectCommits int) {
	t.Helper()
	c := NewReleaseConsumer(reader, retrier, mq.NewFailureHandler(dlt), noop.NewTracerProvider().Tracer("test"), "stock-release-requests")
	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return reader.commits() == expectCommits })
	cancel()
	c.Stop(context.Background())
}

func TestReleaseConsumerAppliesAndCommits(t *testing.T) {
	reader := newChanReader(kafka.Message{
		Topic:  "stock-release-requests",
		Offset: 3,
		Value:  []byte(`{"checkoutId":"c-1","productId":7,"quantity":4}`),
	})
	retrier := &recordingRetrier{}
	dlt := &dltWriter{}

	runConsumer(t, reader, retrier, dlt, 1)

	if len(retrier.reqs) != 1 {
		t.Fatalf("expected 1 release, got %d", len(retrier.reqs))
	}
	want := application.ReleaseRequest{CheckoutID: "c-1", ProductID: 7, Quantity: 4}
	if retrier.reqs[0] != want {
		t.Errorf("expected %+v, got %+v", want, retrier.reqs[0])
	}
	if dlt.count() != 0 {
		t.Errorf("expected nothing in DLT, got %d", dlt.count())
	}
	if !reader.closed {
		t.Error("expected reader to be closed on stop")
	}
}

func TestReleaseConsumerSendsFailuresToDLT(t *testing.T) {
	reader := newChanReader(
		kafka.Message{Topic: "stock-release-requests", Offset: 1, Value: []byte(`not json`)},
		kafka.Message{Topic: "stock-release-requests", Offset: 2, Value: []byte(`{"checkoutId":"c-2","productId":1,"quantity":1}`)},
	)
	retrier := &recordingRetrier{err: errors.New("inventory down")}
	dlt := &dltWriter{}

	runConsumer(t, reader, retrier, dlt, 2)

	if dlt.count() != 2 {
		t.Fatalf("expected 2 dead letters, got %d", dlt.count())
	}
	var original string
	for _, h := range dlt.msgs[1].Headers {
		if h.Key == mq.HeaderOriginalOffset {
			original = string(h.Value)
		}
	}
	if original != "2" {
		t.Errorf("expected original offset header 2, got %q", original)
	}
}

func TestDLTConsumerLogsCritical(t *testing.T) {
	var buf syncBuffer
	logger.InitWithWriter(&buf, "test", "info")

	reader := newChanReader(kafka.Message{
		Offset: 9,
		Key:    []byte("c-3"),
		Value:  []byte(`{"checkoutId":"c-3"}`),
		Headers: []kafka.Header{
			{Key: mq.HeaderOriginalTopic, Value: []byte("stock-release-requests")},
			{Key: mq.HeaderExceptionMessage, Value: []byte("inventory down")},
		},
	})
	c := NewDLTConsumer(reader, "stock-release-requests-dlt")
	ctx, cancel := context.WithCancel(context.Background())
	_ = c.Start(ctx)
	waitFor(t, func() bool { return reader.commits() == 1 })
	cancel()
	c.Stop(context.Background())

	out := buf.String()
	if !strings.Contains(out, `"critical":true`) || !strings.Contains(out, "inventory down") {
		t.Errorf("expected a critical dead letter log, got %s", out)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
