package infrastructure

import (
	"context"
	"sync"
	"time"

	"stockpay/internal/service/checkout/domain"
)

// MemoryLedger 是进程内的支付记录存储，用于本地运行和测试。
type MemoryLedger struct {
	mu      sync.RWMutex
	nextID  int64
	records []domain.PaymentRecord
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) Record(_ context.Context, rec *domain.PaymentRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	rec.ID = l.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	l.records = append(l.records, *rec)
	return nil
}

func (l *MemoryLedger) List(context.Context) ([]domain.PaymentRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.PaymentRecord, len(l.records))
	copy(out, l.records)
	return out, nil
}
