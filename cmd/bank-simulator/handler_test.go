package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"
)

func TestBankPayReturnsConfiguredCode(t *testing.T) {
	h := &bankHandler{tracer: noop.NewTracerProvider().Tracer("test"), latency: 10 * time.Millisecond, resultCode: "200"}

	started := time.Now()
	rr := httptest.NewRecorder()
	h.pay(rr, httptest.NewRequest(http.MethodPost, "/pay", strings.NewReader(`{"price":"19.98"}`)))

	if time.Since(started) < 10*time.Millisecond {
		t.Error("expected the configured latency to be applied")
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp payResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.ResultCode != "200" {
		t.Errorf("expected resultCode 200, got %q", resp.ResultCode)
	}
}

func TestBankPayStopsWhenCallerGivesUp(t *testing.T) {
	h := &bankHandler{tracer: noop.NewTracerProvider().Tracer("test"), latency: time.Hour, resultCode: "200"}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/pay", strings.NewReader(`{"price":"1"}`)).WithContext(ctx)
	rr := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.pay(rr, req)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after the caller cancelled")
	}
	if rr.Body.Len() != 0 {
		t.Errorf("expected no body for an abandoned request, got %q", rr.Body.String())
	}
}

func TestBankPayRejectsBadBody(t *testing.T) {
	h := &bankHandler{tracer: noop.NewTracerProvider().Tracer("test"), resultCode: "200"}
	rr := httptest.NewRecorder()
	h.pay(rr, httptest.NewRequest(http.MethodPost, "/pay", strings.NewReader(`nope`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
