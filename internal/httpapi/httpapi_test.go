// FILE: httpapi_test.go
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tv-order-executor/executor/internal/engine"
	"github.com/tv-order-executor/executor/internal/notify"
	"github.com/tv-order-executor/executor/internal/portfolio"
	"github.com/tv-order-executor/executor/internal/pricing"
	"github.com/tv-order-executor/executor/internal/registry"
	"github.com/tv-order-executor/executor/internal/xchg"
	"github.com/tv-order-executor/executor/internal/xchg/paper"
)

type capturingNotifier struct {
	messages []string
}

func (c *capturingNotifier) Notify(msg string) { c.messages = append(c.messages, msg) }

func buildTestServer(t *testing.T, executionSecret string, notifier notify.Notifier) *Server {
	t.Helper()
	adapter := paper.New(
		map[string]xchg.Market{
			"BTC/USDT": {Base: "BTC", Quote: "USDT", PricePrecision: 2, AmountPrecision: 6, MinAmount: 0.0001, MinCost: 10},
		},
		xchg.Balance{"USDT": {Free: 1000, Total: 1000}},
	)
	adapter.SetPrice("BTC/USDT", 100)
	p, err := portfolio.New(context.Background(), "BINANCE", adapter, "USDT", []string{"BTC"}, 0.001)
	if err != nil {
		t.Fatalf("building portfolio: %v", err)
	}
	reg := registry.NewForTest(map[string]*portfolio.Portfolio{"BINANCE": p},
		map[string]*engine.Engine{"BINANCE": engine.New(p, pricing.WeightedAverage, nil, notify.NoopNotifier{})})
	return New(reg, notifier, executionSecret)
}

func TestRootReturnsOnline(t *testing.T) {
	s := buildTestServer(t, "", notify.NoopNotifier{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	if rec.Body.String() != "online" {
		t.Fatalf("expected body 'online', got %q", rec.Body.String())
	}
}

func TestBalanceReturnsJSON(t *testing.T) {
	s := buildTestServer(t, "", notify.NoopNotifier{})
	req := httptest.NewRequest(http.MethodGet, "/balance", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("balance response is not valid JSON: %v", err)
	}
	if _, ok := out["total"]; !ok {
		t.Fatal("expected 'total' key in balance response")
	}
}

func TestWebhookWithoutSecretConfiguredAlwaysAccepts(t *testing.T) {
	notifier := &capturingNotifier{}
	s := buildTestServer(t, "", notifier)
	payload := map[string]any{"exchange": "BINANCE", "symbol": "BTCUSDT", "side": "buy", "send_order": true}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(notifier.messages) == 0 {
		t.Fatal("expected the webhook payload to be forwarded as a notification")
	}
}

func TestWebhookRejectsWrongSecret(t *testing.T) {
	notifier := &capturingNotifier{}
	s := buildTestServer(t, "topsecret", notifier)
	payload := map[string]any{"exchange": "BINANCE", "symbol": "BTCUSDT", "side": "buy", "send_order": true, "secret": "wrong"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWebhookAcceptsMatchingSecret(t *testing.T) {
	notifier := &capturingNotifier{}
	s := buildTestServer(t, "topsecret", notifier)
	payload := map[string]any{"exchange": "BINANCE", "symbol": "BTCUSDT", "side": "buy", "send_order": true, "secret": "topsecret"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestWebhookScrubsSecretFromNotification(t *testing.T) {
	notifier := &capturingNotifier{}
	s := buildTestServer(t, "", notifier)
	payload := map[string]any{"exchange": "BINANCE", "symbol": "BTCUSDT", "side": "buy", "send_order": false, "secret": "shh"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	for _, m := range notifier.messages {
		if bytes.Contains([]byte(m), []byte("shh")) {
			t.Fatalf("secret leaked into notification: %s", m)
		}
	}
}

func TestWebhookMalformedBodyStillReturns200(t *testing.T) {
	s := buildTestServer(t, "", notify.NoopNotifier{})
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 even for malformed body, got %d", rec.Code)
	}
}
