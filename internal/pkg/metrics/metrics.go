package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stockpay"

// CheckoutMetrics 汇总库存预占与支付 saga 的指标。所有方法对 nil 接收者安全。
type CheckoutMetrics struct {
	Checkouts            *prometheus.CounterVec
	Reservations         *prometheus.CounterVec
	GatewayLatency       *prometheus.HistogramVec
	CompensationFailures prometheus.Counter
}

// NewCheckoutMetrics 创建并注册指标。reg 为 nil 时使用默认注册表。
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &CheckoutMetrics{
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "total",
			Help:      "Checkouts by final outcome.",
		}, []string{"outcome"}),
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "operations_total",
			Help:      "Reserve and release operations by result.",
		}, []string{"operation", "result"}),
		GatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "gateway_duration_seconds",
			Help:      "Payment gateway round trip latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"result"}),
		CompensationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "compensation_failures_total",
			Help:      "Stock releases that failed after a payment failure and need manual repair.",
		}),
	}
	reg.MustRegister(m.Checkouts, m.Reservations, m.GatewayLatency, m.CompensationFailures)
	return m
}

func (m *CheckoutMetrics) ObserveCheckout(outcome string) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(outcome).Inc()
}

func (m *CheckoutMetrics) ObserveReservation(operation, result string) {
	if m == nil {
		return
	}
	m.Reservations.WithLabelValues(operation, result).Inc()
}

func (m *CheckoutMetrics) ObserveGateway(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.GatewayLatency.WithLabelValues(result).Observe(elapsed.Seconds())
}

func (m *CheckoutMetrics) IncCompensationFailure() {
	if m == nil {
		return
	}
	m.CompensationFailures.Inc()
}
