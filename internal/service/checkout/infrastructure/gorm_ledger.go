package infrastructure

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"stockpay/internal/service/checkout/domain"
)

// GormPaymentLedger 把支付记录写进 MySQL。
type GormPaymentLedger struct {
	db *gorm.DB
}

func NewGormPaymentLedger(db *gorm.DB) *GormPaymentLedger {
	return &GormPaymentLedger{db: db}
}

func (l *GormPaymentLedger) Record(ctx context.Context, rec *domain.PaymentRecord) error {
	model := toPaymentModel(rec)
	if err := l.db.WithContext(ctx).Create(model).Error; err != nil {
		return pkgerrors.Wrap(err, "record payment")
	}
	rec.ID = model.ID
	rec.CreatedAt = model.CreatedAt
	return nil
}

// List 按写入顺序返回全部记录。
func (l *GormPaymentLedger) List(ctx context.Context) ([]domain.PaymentRecord, error) {
	var models []PaymentModel
	if err := l.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "list payments")
	}
	records := make([]domain.PaymentRecord, 0, len(models))
	for i := range models {
		records = append(records, toDomainPaymentRecord(&models[i]))
	}
	return records, nil
}
