package saga

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"

	"stockpay/internal/service/checkout/domain"
	"stockpay/internal/service/checkout/domain/port"
)

type stubReservations struct {
	reserveErr error
	releaseErr error
	released   int
}

func (s *stubReservations) Reserve(context.Context, int64, int) error { return s.reserveErr }

func (s *stubReservations) Release(context.Context, int64, int) error {
	s.released++
	return s.releaseErr
}

type stubCatalog struct{ price decimal.Decimal }

func (c stubCatalog) GetProduct(_ context.Context, id int64) (*port.Product, error) {
	return &port.Product{ID: id, Price: c.price}, nil
}

type stubGateway struct {
	code string
	err  error
}

func (g stubGateway) Pay(context.Context, decimal.Decimal) (port.PaymentResult, error) {
	return port.PaymentResult{ResultCode: g.code}, g.err
}

type policyFunc func(port.PaymentResult) (bool, error)

func (f policyFunc) IsSuccess(r port.PaymentResult) (bool, error) { return f(r) }

func newCheckoutContext(t *testing.T, res *stubReservations, gw stubGateway) *CheckoutContext {
	t.Helper()
	c, err := domain.NewCheckout("c-1", 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	return &CheckoutContext{
		Ctx:            context.Background(),
		Checkout:       c,
		Tracer:         noop.NewTracerProvider().Tracer("test"),
		Reservations:   res,
		Catalog:        stubCatalog{price: decimal.RequireFromString("2.50")},
		Gateway:        gw,
		Policy:         policyFunc(func(r port.PaymentResult) (bool, error) { return r.ResultCode == "200", nil }),
		PaymentTimeout: time.Second,
	}
}

func TestCompensationsRunInReverseOrderOnce(t *testing.T) {
	cc := newCheckoutContext(t, &stubReservations{}, stubGateway{})
	var order []string
	cc.AddCompensation("first", func(context.Context) error { order = append(order, "first"); return nil })
	cc.AddCompensation("second", func(context.Context) error { order = append(order, "second"); return errors.New("boom") })

	err := cc.TriggerCompensation(context.Background())
	if err == nil || err.Error() != "boom" {
		t.Errorf("expected joined compensation error, got %v", err)
	}
	if !reflect.DeepEqual(order, []string{"second", "first"}) {
		t.Errorf("expected reverse order, got %v", order)
	}
	if cc.PendingCompensations() != 0 {
		t.Error("expected compensations to be drained")
	}
	if err := cc.TriggerCompensation(context.Background()); err != nil {
		t.Errorf("expected second trigger to be a no-op, got %v", err)
	}
	if len(order) != 2 {
		t.Errorf("expected each compensation to run once, got %v", order)
	}
}

func TestReserveFailureRegistersNoCompensation(t *testing.T) {
	res := &stubReservations{reserveErr: domain.ErrOutOfStock}
	cc := newCheckoutContext(t, res, stubGateway{code: "200"})

	err := new(ReserveHandler).Handle(cc)
	if !errors.Is(err, domain.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
	if cc.PendingCompensations() != 0 {
		t.Error("expected no compensation after a failed reservation")
	}
	if cc.Checkout.State != domain.StateStart {
		t.Errorf("expected START, got %s", cc.Checkout.State)
	}
}

func TestChainPricesAndPays(t *testing.T) {
	res := &stubReservations{}
	cc := newCheckoutContext(t, res, stubGateway{code: "200"})
	chain := new(ReserveHandler)
	chain.SetNext(new(PaymentHandler))

	if err := chain.Handle(cc); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !cc.Checkout.Amount.Equal(decimal.RequireFromString("7.50")) {
		t.Errorf("expected amount 7.50, got %s", cc.Checkout.Amount)
	}
	if cc.Checkout.State != domain.StatePaid {
		t.Errorf("expected PAID, got %s", cc.Checkout.State)
	}
	if cc.PendingCompensations() != 1 {
		t.Errorf("expected the release compensation to be pending, got %d", cc.PendingCompensations())
	}
}

func TestPaymentHandlerClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		gw     stubGateway
		reason string
	}{
		{"gateway error", stubGateway{err: errors.New("connection refused")}, domain.PaymentReasonGatewayError},
		{"timeout", stubGateway{err: context.DeadlineExceeded}, domain.PaymentReasonTimeout},
		{"declined", stubGateway{code: "500"}, domain.PaymentReasonDeclined},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &stubReservations{}
			cc := newCheckoutContext(t, res, tt.gw)
			chain := new(ReserveHandler)
			chain.SetNext(new(PaymentHandler))

			err := chain.Handle(cc)
			var payErr *domain.PaymentError
			if !errors.As(err, &payErr) || payErr.Reason != tt.reason {
				t.Fatalf("expected reason %s, got %v", tt.reason, err)
			}
			if cc.Checkout.State != domain.StateReserved {
				t.Errorf("expected RESERVED after failed payment, got %s", cc.Checkout.State)
			}
			if err := cc.TriggerCompensation(context.Background()); err != nil {
				t.Fatal(err)
			}
			if res.released != 1 {
				t.Errorf("expected exactly one release, got %d", res.released)
			}
		})
	}
}
