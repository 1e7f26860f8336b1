// FILE: registry_test.go
package registry

import (
	"context"
	"testing"

	"github.com/tv-order-executor/executor/internal/engine"
	"github.com/tv-order-executor/executor/internal/notify"
	"github.com/tv-order-executor/executor/internal/portfolio"
	"github.com/tv-order-executor/executor/internal/pricing"
	"github.com/tv-order-executor/executor/internal/xchg"
	"github.com/tv-order-executor/executor/internal/xchg/paper"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	adapter := paper.New(
		map[string]xchg.Market{
			"BTC/USDT": {Base: "BTC", Quote: "USDT", PricePrecision: 2, AmountPrecision: 6, MinAmount: 0.0001, MinCost: 10},
		},
		xchg.Balance{"USDT": {Free: 1000, Total: 1000}, "BTC": {Free: 0, Total: 0}},
	)
	adapter.SetPrice("BTC/USDT", 100)

	p, err := portfolio.New(context.Background(), "BINANCE", adapter, "USDT", []string{"BTC"}, 0.001)
	if err != nil {
		t.Fatalf("building portfolio: %v", err)
	}

	return NewForTest(
		map[string]*portfolio.Portfolio{"BINANCE": p},
		map[string]*engine.Engine{"BINANCE": engine.New(p, pricing.WeightedAverage, nil, notify.NoopNotifier{})},
	)
}

func TestGetPortfolioReturnsConfigured(t *testing.T) {
	r := newTestRegistry(t)
	if r.GetPortfolio("BINANCE") == nil {
		t.Fatal("expected BINANCE portfolio")
	}
	if r.GetPortfolio("KUCOIN") != nil {
		t.Fatal("expected nil portfolio for unconfigured exchange")
	}
}

func TestSendOrderUnconfiguredExchangeIsNoop(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.SendOrder(context.Background(), OrderRequest{Exchange: "KUCOIN", Symbol: "BTCUSDT", Side: xchg.Buy}); err != nil {
		t.Fatalf("expected nil error for unconfigured exchange, got %v", err)
	}
}

func TestGetBalanceReportsPerExchange(t *testing.T) {
	r := newTestRegistry(t)
	result := r.GetBalance(context.Background())
	if _, ok := result.Exchanges["BINANCE"]; !ok {
		t.Fatal("expected BINANCE entry in balance result")
	}
	if _, ok := result.Exchanges["KUCOIN"]; !ok {
		t.Fatal("expected placeholder KUCOIN entry in balance result")
	}
}

func TestIsWorkerRunningFalseInitially(t *testing.T) {
	r := newTestRegistry(t)
	if r.IsWorkerRunning() {
		t.Fatal("expected no workers running on a fresh registry")
	}
}
