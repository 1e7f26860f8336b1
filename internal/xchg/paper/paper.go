// FILE: paper.go
// Package paper implements xchg.Adapter entirely in memory: no network
// calls, a settable per-symbol reference price for tickers and synthetic
// order books, and fills only through the explicit Fill helper. Used
// for dry runs and tests so the engine and portfolio can be exercised
// without real exchange credentials.
package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tv-order-executor/executor/internal/xchg"
)

// Adapter is an in-memory order book and balance simulator.
type Adapter struct {
	mu sync.Mutex

	markets map[string]xchg.Market
	balance xchg.Balance
	prices  map[string]float64
	orders  map[string]*xchg.Order
}

// New returns a paper adapter seeded with the given markets and starting
// balances. A zero-value balance map means every asset starts at 0.
func New(markets map[string]xchg.Market, balance xchg.Balance) *Adapter {
	if balance == nil {
		balance = xchg.Balance{}
	}
	return &Adapter{
		markets: markets,
		balance: balance,
		prices:  make(map[string]float64),
		orders:  make(map[string]*xchg.Order),
	}
}

func (a *Adapter) Name() string { return "paper" }

// SetPrice fixes the reference price used for ticker lookups and synthetic
// order book construction around symbol.
func (a *Adapter) SetPrice(symbol string, price float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prices[symbol] = price
}

func (a *Adapter) LoadMarkets(ctx context.Context) (map[string]xchg.Market, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]xchg.Market, len(a.markets))
	for k, v := range a.markets {
		out[k] = v
	}
	return out, nil
}

func (a *Adapter) FetchBalance(ctx context.Context) (xchg.Balance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(xchg.Balance, len(a.balance))
	for k, v := range a.balance {
		out[k] = v
	}
	return out, nil
}

func (a *Adapter) FetchTicker(ctx context.Context, symbol string) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.prices[symbol]
	if !ok {
		return 0, xchg.NewError("paper", "FetchTicker", xchg.KindInvalidOrder, fmt.Errorf("no price set for %s", symbol))
	}
	return p, nil
}

func (a *Adapter) FetchTickers(ctx context.Context, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		p, err := a.FetchTicker(ctx, s)
		if err != nil {
			continue
		}
		out[s] = p
	}
	return out, nil
}

// FetchOrderBook synthesizes a five-level book straddling the set price by
// one tick per level, with a flat quantity — enough to exercise every
// pricing strategy deterministically in tests.
func (a *Adapter) FetchOrderBook(ctx context.Context, symbol string, limit int) (xchg.OrderBookSnapshot, error) {
	a.mu.Lock()
	price, ok := a.prices[symbol]
	market := a.markets[symbol]
	a.mu.Unlock()
	if !ok {
		return xchg.OrderBookSnapshot{}, xchg.NewError("paper", "FetchOrderBook", xchg.KindInvalidOrder, fmt.Errorf("no price set for %s", symbol))
	}
	tick := market.TickSize()
	if tick <= 0 {
		tick = 0.01
	}
	n := 5
	bids := make([]xchg.PriceLevel, n)
	asks := make([]xchg.PriceLevel, n)
	for i := 0; i < n; i++ {
		bids[i] = xchg.PriceLevel{Price: price - float64(i)*tick, Quantity: 1}
		asks[i] = xchg.PriceLevel{Price: price + float64(i+1)*tick, Quantity: 1}
	}
	return xchg.OrderBookSnapshot{Symbol: symbol, Bids: bids, Asks: asks}, nil
}

// CreateOrder books a resting order; it stays open until CancelOrder or a
// Fill call changes its state (Forget removes it altogether).
func (a *Adapter) CreateOrder(ctx context.Context, symbol string, side xchg.Side, amount, price float64) (xchg.Order, error) {
	if amount <= 0 || price <= 0 {
		return xchg.Order{}, xchg.NewError("paper", "CreateOrder", xchg.KindInvalidOrder, fmt.Errorf("amount and price must be positive"))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	o := &xchg.Order{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Amount:    amount,
		Remaining: amount,
		Status:    xchg.StatusOpen,
	}
	a.orders[o.ID] = o
	return *o, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, id, symbol string, params xchg.CancelParams) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.orders[id]
	if !ok {
		return xchg.NewError("paper", "CancelOrder", xchg.KindOrderNotFound, fmt.Errorf("order %s not found", id))
	}
	if o.Status != xchg.StatusOpen {
		return xchg.NewError("paper", "CancelOrder", xchg.KindOrderNotFound, fmt.Errorf("order %s not open", id))
	}
	o.Status = xchg.StatusCancelled
	return nil
}

func (a *Adapter) FetchOrder(ctx context.Context, id, symbol string) (xchg.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.orders[id]
	if !ok {
		return xchg.Order{}, xchg.NewError("paper", "FetchOrder", xchg.KindOrderNotFound, fmt.Errorf("order %s not found", id))
	}
	return *o, nil
}

func (a *Adapter) FetchOpenOrders(ctx context.Context, symbol string) ([]xchg.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []xchg.Order
	for _, o := range a.orders {
		if o.Symbol == symbol && o.Status == xchg.StatusOpen {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (a *Adapter) HasFetchOrder() bool      { return true }
func (a *Adapter) HasFetchOpenOrders() bool { return true }

// Fill marks amount of order id as executed, moving funds between the
// simulated balances the way a real match would, and closing the order
// once its remaining quantity reaches zero. Test-only helper — no adapter
// in the Adapter interface exposes this; it is called directly on the
// concrete *Adapter from test setup.
func (a *Adapter) Fill(id string, amount float64, base, quote string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.orders[id]
	if !ok {
		return fmt.Errorf("order %s not found", id)
	}
	if amount > o.Remaining {
		amount = o.Remaining
	}
	o.Remaining -= amount
	if o.Remaining <= 1e-12 {
		o.Remaining = 0
		o.Status = xchg.StatusClosed
	}
	cost := amount * o.Price
	bb := a.balance[base]
	qb := a.balance[quote]
	if o.Side == xchg.Buy {
		qb.Free -= cost
		qb.Total -= cost
		bb.Free += amount
		bb.Total += amount
	} else {
		bb.Free -= amount
		bb.Total -= amount
		qb.Free += cost
		qb.Total += cost
	}
	a.balance[base] = bb
	a.balance[quote] = qb
	return nil
}

// Forget removes order id from the simulated book without touching any
// balance, as if the exchange had silently expired or evicted it. Test-only
// helper for exercising the OrderNotFound reconcile path.
func (a *Adapter) Forget(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.orders, id)
}

var _ xchg.Adapter = (*Adapter)(nil)
