package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"stockpay/internal/pkg/logger"
	"stockpay/internal/service/checkout/application"
	"stockpay/internal/service/checkout/domain"
)

const idempotencyHeader = "Idempotency-Key"

// CheckoutService 是 HTTP 层依赖的应用服务方法集
type CheckoutService interface {
	Checkout(ctx context.Context, req application.CheckoutRequest) (*domain.PaymentRecord, error)
	ListPayments(ctx context.Context) ([]domain.PaymentRecord, error)
}

// ErrorResponse 是所有错误响应的统一格式
type ErrorResponse struct {
	Status    int       `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// CheckoutHandler 封装了结账服务的 HTTP 处理器
type CheckoutHandler struct {
	service CheckoutService
	tracer  trace.Tracer
}

func NewCheckoutHandler(service CheckoutService, tracer trace.Tracer) *CheckoutHandler {
	return &CheckoutHandler{service: service, tracer: tracer}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *CheckoutHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /payments", h.createPayment)
	mux.HandleFunc("GET /payments", h.listPayments)
}

func (h *CheckoutHandler) createPayment(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "http.CreatePayment", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	var req application.CheckoutRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.IdempotencyKey = r.Header.Get(idempotencyHeader)
	span.SetAttributes(
		attribute.Int64("product.id", req.ProductID),
		attribute.Int("quantity", req.Quantity),
		attribute.Bool("idempotency_key.present", req.IdempotencyKey != ""),
	)

	rec, err := h.service.Checkout(ctx, req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.Ctx(ctx).Error().Err(err).Int("status", status).Msg("checkout request failed")
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *CheckoutHandler) listPayments(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "http.ListPayments", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	records, err := h.service.ListPayments(ctx)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to list payments")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// statusFor 把领域错误映射为 HTTP 状态码。CompensationError 同时包装了支付失败，必须先判断。
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrCompensationFailed):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrDuplicateCheckout):
		return http.StatusConflict
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrOutOfStock),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidCheckout):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInventoryBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrPaymentFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Status: status, Timestamp: time.Now().UTC(), Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
