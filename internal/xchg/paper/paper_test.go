// FILE: paper_test.go
package paper

import (
	"context"
	"testing"

	"github.com/tv-order-executor/executor/internal/xchg"
)

func newTestAdapter() *Adapter {
	markets := map[string]xchg.Market{
		"BTC/USDT": {Base: "BTC", Quote: "USDT", NativeSymbol: "BTCUSDT", PricePrecision: 2, AmountPrecision: 6, MinAmount: 0.0001, MinCost: 10},
	}
	balance := xchg.Balance{"USDT": {Free: 1000, Total: 1000}}
	a := New(markets, balance)
	a.SetPrice("BTC/USDT", 100)
	return a
}

func TestPaperOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter()

	o, err := a.CreateOrder(ctx, "BTC/USDT", xchg.Buy, 1, 100)
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != xchg.StatusOpen {
		t.Fatalf("expected open order, got %v", o.Status)
	}

	got, err := a.FetchOrder(ctx, o.ID, "BTC/USDT")
	if err != nil {
		t.Fatal(err)
	}
	if got.Remaining != 1 {
		t.Fatalf("expected remaining 1, got %v", got.Remaining)
	}

	if err := a.Fill(o.ID, 1, "BTC", "USDT"); err != nil {
		t.Fatal(err)
	}
	got, err = a.FetchOrder(ctx, o.ID, "BTC/USDT")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != xchg.StatusClosed {
		t.Fatalf("expected closed after full fill, got %v", got.Status)
	}

	bal, err := a.FetchBalance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if bal["BTC"].Free != 1 {
		t.Fatalf("expected 1 BTC credited, got %v", bal["BTC"].Free)
	}
	if bal["USDT"].Free != 900 {
		t.Fatalf("expected 900 USDT remaining, got %v", bal["USDT"].Free)
	}
}

func TestPaperCancelOrder(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter()
	o, err := a.CreateOrder(ctx, "BTC/USDT", xchg.Sell, 1, 101)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.CancelOrder(ctx, o.ID, "BTC/USDT", nil); err != nil {
		t.Fatal(err)
	}
	if err := a.CancelOrder(ctx, o.ID, "BTC/USDT", nil); err == nil {
		t.Fatal("expected error cancelling an already-cancelled order")
	}
}

func TestPaperForgetOrderLooksLikeNotFound(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter()
	o, err := a.CreateOrder(ctx, "BTC/USDT", xchg.Buy, 1, 100)
	if err != nil {
		t.Fatal(err)
	}
	a.Forget(o.ID)
	_, err = a.FetchOrder(ctx, o.ID, "BTC/USDT")
	if !xchg.IsKind(err, xchg.KindOrderNotFound) {
		t.Fatalf("expected OrderNotFound after Forget, got %v", err)
	}
}

func TestPaperFetchOrderBookShape(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter()
	book, err := a.FetchOrderBook(ctx, "BTC/USDT", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		t.Fatal("expected non-empty book")
	}
	if book.Bids[0].Price >= book.Asks[0].Price {
		t.Fatalf("bid/ask crossed: %v >= %v", book.Bids[0].Price, book.Asks[0].Price)
	}
}

func TestPaperFetchUnknownSymbolErrors(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter()
	if _, err := a.FetchTicker(ctx, "ETH/USDT"); err == nil {
		t.Fatal("expected error for unset symbol")
	} else if !xchg.IsKind(err, xchg.KindInvalidOrder) {
		t.Fatalf("expected KindInvalidOrder, got %v", err)
	}
}
