// FILE: pricing_test.go
package pricing

import (
	"math"
	"testing"

	"github.com/tv-order-executor/executor/internal/xchg"
)

func book(bids, asks []xchg.PriceLevel) xchg.OrderBookSnapshot {
	return xchg.OrderBookSnapshot{Bids: bids, Asks: asks}
}

func lvl(price, qty float64) xchg.PriceLevel { return xchg.PriceLevel{Price: price, Quantity: qty} }

func approxEqual(t *testing.T, got, want, tol float64, msg string) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Fatalf("%s: got %v want %v", msg, got, want)
	}
}

// Scenario 1: BEST_BID_OR_ASK buy on a fresh book.
func TestBestBidOrAskBuy(t *testing.T) {
	b := book([]xchg.PriceLevel{lvl(100, 1)}, []xchg.PriceLevel{lvl(101, 1)})
	p := CalculateLimitBuyPrice(b, BestBidOrAsk, 0.01, DefaultOrderbookWeights, nil)
	if p != 100 {
		t.Fatalf("want 100, got %v", p)
	}
	// idempotent under repeated call
	p2 := CalculateLimitBuyPrice(b, BestBidOrAsk, 0.01, DefaultOrderbookWeights, nil)
	if p != p2 {
		t.Fatalf("not idempotent: %v vs %v", p, p2)
	}
}

func TestBestBidOrAskSell(t *testing.T) {
	b := book([]xchg.PriceLevel{lvl(100, 1)}, []xchg.PriceLevel{lvl(101, 1)})
	p := CalculateLimitSellPrice(b, BestBidOrAsk, 0.01, DefaultOrderbookWeights, nil)
	if p != 101 {
		t.Fatalf("want 101, got %v", p)
	}
}

// Scenario 2: WEIGHTED_AVERAGE with sample book.
func TestWeightedAverageSample(t *testing.T) {
	bids := []xchg.PriceLevel{
		lvl(42395.58, 0.94637),
		lvl(42395.54, 0.12812),
		lvl(42395.5, 0.17385),
		lvl(42395.42, 0.00098),
		lvl(42395.3, 0.26086),
	}
	asks := []xchg.PriceLevel{
		lvl(42395.59, 16.90171),
		lvl(42395.63, 1),
		lvl(42395.7, 1),
		lvl(42395.8, 1),
		lvl(42395.9, 1),
	}
	b := book(bids, asks)
	weights := []float64{4, 2, 1, 1, 0, 0}

	buyPrice := CalculateLimitBuyPrice(b, WeightedAverage, 0.01, weights, nil)
	if buyPrice != 42395.59 {
		t.Fatalf("buy price: want 42395.59, got %v", buyPrice)
	}

	sellPrice := CalculateLimitSellPrice(b, WeightedAverage, 0.01, weights, nil)
	if sellPrice != 42395.58 {
		t.Fatalf("sell price: want 42395.58, got %v", sellPrice)
	}
}

func TestBetterThanBestPriceNoRedundantReplace(t *testing.T) {
	b := book([]xchg.PriceLevel{lvl(100, 1)}, []xchg.PriceLevel{lvl(101, 1)})
	cur := &CurrentOrder{Price: 100, Remaining: 1}
	p := CalculateLimitBuyPrice(b, BetterThanBestPrice, 0.01, DefaultOrderbookWeights, cur)
	if p != 100 {
		t.Fatalf("should not replace when already at top, got %v", p)
	}
	p2 := CalculateLimitBuyPrice(b, BetterThanBestPrice, 0.01, DefaultOrderbookWeights, nil)
	if p2 != 100.01 {
		t.Fatalf("want 100.01 jump-the-queue, got %v", p2)
	}
}

// Weighted-average buy price never worse than top of book.
func TestWeightedAverageNeverWorseThanTop(t *testing.T) {
	bids := []xchg.PriceLevel{lvl(100, 1), lvl(99.99, 2), lvl(99.98, 3), lvl(99.97, 1), lvl(99.96, 1)}
	asks := []xchg.PriceLevel{lvl(100.01, 1), lvl(100.02, 2), lvl(100.03, 3), lvl(100.04, 1), lvl(100.05, 1)}
	b := book(bids, asks)
	buy := CalculateLimitBuyPrice(b, WeightedAverage, 0.01, DefaultOrderbookWeights, nil)
	if buy < bids[0].Price {
		t.Fatalf("buy price %v worse than top %v", buy, bids[0].Price)
	}
	sell := CalculateLimitSellPrice(b, WeightedAverage, 0.01, DefaultOrderbookWeights, nil)
	if sell > asks[0].Price {
		t.Fatalf("sell price %v worse than top %v", sell, asks[0].Price)
	}
}

// Applying profitability adjustment twice with the same inputs is idempotent.
func TestAdjustPriceForProfitIdempotent(t *testing.T) {
	side := []xchg.PriceLevel{lvl(100, 5), lvl(99.5, 5), lvl(99, 5)}
	p1 := AdjustPriceForProfit(99.8, side, 0.1, true, nil, 1)
	p2 := AdjustPriceForProfit(p1, side, 0.1, true, nil, 1)
	// second call operates on a price already inside the spread; result may
	// legitimately differ only if a better level exists below p1, which it
	// doesn't here, so it must reproduce the same adjusted value or 0.
	if p2 != 0 && p2 != p1 {
		t.Fatalf("not idempotent: %v then %v", p1, p2)
	}
}

func TestQuantizeTickNoFloatDrift(t *testing.T) {
	got := QuantizeTick(100.004999999, 0.01, -1)
	want := 100.00
	approxEqual(t, got, want, 1e-9, "floor quantize")

	got = QuantizeTick(100.0001, 0.01, 1)
	want = 100.01
	approxEqual(t, got, want, 1e-9, "ceil quantize")
}

func TestCalculateInitialBuyAndSellPrices(t *testing.T) {
	b := book([]xchg.PriceLevel{lvl(100, 1)}, []xchg.PriceLevel{lvl(101, 1)})
	price, amount := CalculateInitialBuyPrice(b, 50, 0.01, BestBidOrAsk, DefaultOrderbookWeights)
	if price <= 0 || amount <= 0 {
		t.Fatalf("expected positive price/amount, got %v %v", price, amount)
	}
	sellPrice := CalculateInitialSellPrice(b, 0.5, 0.01, BestBidOrAsk, DefaultOrderbookWeights)
	if sellPrice <= 0 {
		t.Fatalf("expected positive sell price, got %v", sellPrice)
	}
}

func TestCalculateTargetPriceBuySell(t *testing.T) {
	b := book([]xchg.PriceLevel{lvl(100, 1)}, []xchg.PriceLevel{lvl(101, 1)})
	cur := CurrentOrder{Price: 99.9, Remaining: 1}
	buy := CalculateTargetPrice(b, 1, xchg.Buy, cur, 0.01, BestBidOrAsk, DefaultOrderbookWeights)
	if buy == 0 {
		t.Fatalf("expected nonzero target buy price")
	}
	sell := CalculateTargetPrice(b, 1, xchg.Sell, CurrentOrder{Price: 101.1, Remaining: 1}, 0.01, BestBidOrAsk, DefaultOrderbookWeights)
	if sell == 0 {
		t.Fatalf("expected nonzero target sell price")
	}
}
