package infrastructure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"stockpay/internal/service/checkout/domain"
)

func newMockLedger(t *testing.T) (*GormPaymentLedger, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open gorm: %v", err)
	}
	return NewGormPaymentLedger(db), mock
}

func TestGormLedgerRecordAssignsID(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `payments`").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit()

	rec := &domain.PaymentRecord{
		CheckoutID: "c-1",
		ProductID:  1,
		Quantity:   2,
		Price:      decimal.RequireFromString("19.98"),
		ResultCode: "200",
	}
	if err := ledger.Record(context.Background(), rec); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.ID != 7 {
		t.Errorf("expected id 7, got %d", rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be filled")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGormLedgerRecordError(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `payments`").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := ledger.Record(context.Background(), &domain.PaymentRecord{CheckoutID: "c-1", ProductID: 1, Quantity: 1})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestGormLedgerListOrdersByID(t *testing.T) {
	ledger, mock := newMockLedger(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "checkout_id", "product_id", "quantity", "price", "result_code", "created_at"}).
		AddRow(1, "c-1", 1, 2, "19.98", "200", now).
		AddRow(2, "c-2", 1, 1, "9.99", "200", now)
	mock.ExpectQuery("SELECT \\* FROM `payments` ORDER BY id").WillReturnRows(rows)

	records, err := ledger.List(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].CheckoutID != "c-1" || !records[0].Price.Equal(decimal.RequireFromString("19.98")) {
		t.Errorf("unexpected first record %+v", records[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMemoryLedgerAppendOnly(t *testing.T) {
	ledger := NewMemoryLedger()
	for i := 0; i < 3; i++ {
		if err := ledger.Record(context.Background(), &domain.PaymentRecord{CheckoutID: "c", Quantity: 1}); err != nil {
			t.Fatal(err)
		}
	}
	records, _ := ledger.List(context.Background())
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, r := range records {
		if r.ID != int64(i+1) {
			t.Errorf("expected id %d, got %d", i+1, r.ID)
		}
	}
}
