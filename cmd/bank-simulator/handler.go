package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"stockpay/internal/pkg/logger"
)

type payRequest struct {
	Price decimal.Decimal `json:"price"`
}

type payResponse struct {
	ResultCode string `json:"resultCode"`
}

// bankHandler 模拟一个很慢的银行: 固定延迟后返回配置的结果码
type bankHandler struct {
	tracer     trace.Tracer
	latency    time.Duration
	resultCode string
}

func (h *bankHandler) pay(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "bank.Pay", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("payment.amount", req.Price.String()))

	select {
	case <-time.After(h.latency):
	case <-ctx.Done():
		// 调用方已经放弃
		logger.Ctx(ctx).Warn().Str("price", req.Price.String()).Msg("payment request abandoned by caller")
		return
	}

	logger.Ctx(ctx).Info().Str("price", req.Price.String()).Str("result_code", h.resultCode).Msg("payment processed")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payResponse{ResultCode: h.resultCode})
}
