// FILE: portfolio_test.go
package portfolio

import (
	"context"
	"testing"

	"github.com/tv-order-executor/executor/internal/xchg"
	"github.com/tv-order-executor/executor/internal/xchg/paper"
)

func newTestPortfolio(t *testing.T, universe []string, balance xchg.Balance) *Portfolio {
	t.Helper()
	markets := make(map[string]xchg.Market, len(universe))
	for _, a := range universe {
		markets[a+"/USDT"] = xchg.Market{Base: a, Quote: "USDT", PricePrecision: 2, AmountPrecision: 6, MinAmount: 0.0001, MinCost: 10}
	}
	adapter := paper.New(markets, balance)
	for _, a := range universe {
		adapter.SetPrice(a+"/USDT", 100)
	}
	p, err := New(context.Background(), "BINANCE", adapter, "USDT", universe, 0.001)
	if err != nil {
		t.Fatalf("building portfolio: %v", err)
	}
	return p
}

func TestNewBuildsEqualWeightAllocation(t *testing.T) {
	p := newTestPortfolio(t, []string{"BTC", "ETH", "SOL"}, xchg.Balance{"USDT": {Free: 1000, Total: 1000}})
	for _, a := range []string{"BTC", "ETH", "SOL"} {
		if w := p.Allocation[a]; w < 0.333 || w > 0.334 {
			t.Fatalf("expected ~1/3 allocation for %s, got %v", a, w)
		}
	}
}

func TestAvailableBaseForFullyUnallocated(t *testing.T) {
	p := newTestPortfolio(t, []string{"BTC", "ETH"}, xchg.Balance{"USDT": {Free: 1000, Total: 1000}})
	if err := p.ComputeHoldingWeight(context.Background()); err != nil {
		t.Fatalf("computing holding weight: %v", err)
	}
	available, err := p.AvailableBaseFor(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("AvailableBaseFor: %v", err)
	}
	if available <= 0 {
		t.Fatalf("expected positive available balance for an unallocated asset, got %v", available)
	}
}

func TestAvailableBaseForAtTargetIsZero(t *testing.T) {
	p := newTestPortfolio(t, []string{"BTC"}, xchg.Balance{
		"USDT": {Free: 0, Total: 0},
		"BTC":  {Free: 10, Total: 10}, // fully allocated: 10 BTC * 100 = 1000, all value in BTC
	})
	if err := p.ComputeHoldingWeight(context.Background()); err != nil {
		t.Fatalf("computing holding weight: %v", err)
	}
	available, err := p.AvailableBaseFor(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("AvailableBaseFor: %v", err)
	}
	if available != 0 {
		t.Fatalf("expected zero available balance once at target, got %v", available)
	}
}

func TestGetPortfolioBalanceFiltersStableAndDust(t *testing.T) {
	p := newTestPortfolio(t, []string{"BTC"}, xchg.Balance{
		"USDT": {Free: 500, Total: 500},
		"BTC":  {Free: 1, Total: 1},
		"BUSD": {Free: 50, Total: 50}, // stable, must not appear in Assets
	})
	report, err := p.GetPortfolioBalance(context.Background())
	if err != nil {
		t.Fatalf("GetPortfolioBalance: %v", err)
	}
	if report.BaseAmount != 500 {
		t.Fatalf("expected base amount 500, got %v", report.BaseAmount)
	}
	if _, ok := report.Assets["BUSD"]; ok {
		t.Fatal("expected stable-coin BUSD to be filtered out of Assets")
	}
	ab, ok := report.Assets["BTC"]
	if !ok {
		t.Fatal("expected BTC entry in Assets")
	}
	if ab.Value != 100 {
		t.Fatalf("expected BTC value 100 (1 * price 100), got %v", ab.Value)
	}
	if report.TotalInBase != 600 {
		t.Fatalf("expected total 600, got %v", report.TotalInBase)
	}
}

func TestMinTradeAmountReadsMarketMetadata(t *testing.T) {
	p := newTestPortfolio(t, []string{"BTC"}, xchg.Balance{"USDT": {Free: 1000, Total: 1000}})
	minAmount, minCost, err := p.MinTradeAmount("BTC")
	if err != nil {
		t.Fatalf("MinTradeAmount: %v", err)
	}
	if minAmount != 0.0001 || minCost != 10 {
		t.Fatalf("unexpected min trade amounts: %v, %v", minAmount, minCost)
	}
}
