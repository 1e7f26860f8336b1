// FILE: engine.go
// Package engine drives one exchange's per-asset limit-order workers: it
// gates whether an order is even worth sending, then hands off to a
// tomb.Tomb-supervised goroutine that places, re-prices, and replaces a
// resting limit order until it is fully filled or told to stop.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"github.com/tv-order-executor/executor/internal/metrics"
	"github.com/tv-order-executor/executor/internal/notify"
	"github.com/tv-order-executor/executor/internal/pricing"
	"github.com/tv-order-executor/executor/internal/portfolio"
	"github.com/tv-order-executor/executor/internal/xchg"
)

// Engine owns the live workers for one exchange's Portfolio.
type Engine struct {
	Portfolio        *portfolio.Portfolio
	Strategy         pricing.Strategy
	OrderbookWeights []float64
	Notifier         notify.Notifier

	mu      sync.Mutex
	workers map[string]*tomb.Tomb
}

// New builds an Engine bound to one Portfolio/exchange.
func New(p *portfolio.Portfolio, strategy pricing.Strategy, weights []float64, notifier notify.Notifier) *Engine {
	return &Engine{
		Portfolio:        p,
		Strategy:         strategy,
		OrderbookWeights: weights,
		Notifier:         notifier,
		workers:          make(map[string]*tomb.Tomb),
	}
}

// IsWorkerRunning reports whether any asset in the universe currently has
// a live worker.
func (e *Engine) IsWorkerRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, asset := range e.Portfolio.Universe {
		if t, ok := e.workers[asset]; ok && t != nil {
			return true
		}
	}
	return false
}

func (e *Engine) cancelParamsFor(side xchg.Side) xchg.CancelParams {
	if e.Portfolio.ExchangeName == "BITKUB" {
		return xchg.CancelParams{"sd": string(side)}
	}
	return nil
}

// SendOrder stops any worker already running for asset, cancels its open
// orders, checks whether the available balance clears the minimum trade
// gates, and spawns a fresh worker if so.
func (e *Engine) SendOrder(ctx context.Context, asset string, side xchg.Side) error {
	e.stopAndJoin(asset)

	symbol := asset + "/" + e.Portfolio.BaseAsset
	if err := e.cancelOpenOrders(ctx, symbol, side); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("failed to cancel open orders before send")
	}

	switch side {
	case xchg.Buy:
		return e.sendBuy(ctx, asset)
	case xchg.Sell:
		return e.sendSell(ctx, asset)
	default:
		return fmt.Errorf("unsupported side %q", side)
	}
}

func (e *Engine) cancelOpenOrders(ctx context.Context, symbol string, side xchg.Side) error {
	if !e.Portfolio.Adapter.HasFetchOpenOrders() {
		return nil
	}
	orders, err := e.Portfolio.Adapter.FetchOpenOrders(ctx, symbol)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if err := e.Portfolio.Adapter.CancelOrder(ctx, o.ID, symbol, e.cancelParamsFor(side)); err != nil {
			log.Warn().Err(err).Str("order_id", o.ID).Str("symbol", symbol).Msg("unable to cancel order")
		}
		time.Sleep(20 * time.Millisecond)
	}
	return nil
}

func (e *Engine) sendBuy(ctx context.Context, asset string) error {
	inUniverse := false
	for _, u := range e.Portfolio.Universe {
		if u == asset {
			inUniverse = true
			break
		}
	}
	if !inUniverse {
		msg := fmt.Sprintf("%s is not in the universe", asset)
		log.Warn().Str("asset", asset).Msg(msg)
		e.Notifier.Notify(msg)
		return nil
	}

	if err := e.Portfolio.ComputeHoldingWeight(ctx); err != nil {
		return err
	}
	available, err := e.Portfolio.AvailableBaseFor(ctx, asset)
	if err != nil {
		return err
	}
	baseAmount := available * (1 - e.Portfolio.Fee)

	price, err := e.Portfolio.GetPrice(ctx, asset)
	if err != nil {
		return err
	}
	amount := 0.0
	if price > 0 {
		amount = baseAmount / price
	}
	log.Info().Str("asset", asset).Float64("available_balance", baseAmount).
		Float64("price", price).Float64("amount", amount).Msg("buy candidate")

	minAmount, minCost, err := e.Portfolio.MinTradeAmount(asset)
	if err != nil {
		return err
	}
	if (minAmount > 0 && amount > minAmount) || (minCost > 0 && baseAmount > minCost*1.2) {
		e.startWorker(asset, xchg.Buy, baseAmount)
	}
	return nil
}

func (e *Engine) sendSell(ctx context.Context, asset string) error {
	if err := e.Portfolio.ComputeHoldingWeight(ctx); err != nil {
		return err
	}
	quoteAmount, err := e.Portfolio.GetBalance(ctx, asset)
	if err != nil {
		return err
	}
	price, err := e.Portfolio.GetPrice(ctx, asset)
	if err != nil {
		return err
	}
	log.Info().Str("asset", asset).Float64("holding_weight", e.Portfolio.HoldingWeight(asset)).
		Float64("price", price).Float64("sell_amount", quoteAmount).Msg("sell candidate")

	minAmount, minCost, err := e.Portfolio.MinTradeAmount(asset)
	if err != nil {
		return err
	}
	if (minAmount > 0 && quoteAmount > minAmount) || (minCost > 0 && quoteAmount*price > minCost*1.2) {
		e.startWorker(asset, xchg.Sell, quoteAmount)
	}
	return nil
}

// stopAndJoin signals asset's worker (if any) to stop and blocks until it
// has exited, mirroring the stop-flag-then-poll handshake this style of
// worker pool uses elsewhere in the corpus.
func (e *Engine) stopAndJoin(asset string) {
	e.mu.Lock()
	t, ok := e.workers[asset]
	e.mu.Unlock()
	if !ok || t == nil {
		return
	}
	log.Info().Str("asset", asset).Msg("worker running, stopping it")
	t.Kill(nil)
	_ = t.Wait()
}

func (e *Engine) startWorker(asset string, side xchg.Side, amount float64) {
	var t tomb.Tomb
	e.mu.Lock()
	e.workers[asset] = &t
	e.mu.Unlock()
	metrics.SetWorkerRunning(e.Portfolio.ExchangeName, asset, true)

	t.Go(func() error {
		err := e.runWorker(&t, asset, side, amount)
		e.mu.Lock()
		e.workers[asset] = nil
		e.mu.Unlock()
		metrics.SetWorkerRunning(e.Portfolio.ExchangeName, asset, false)
		return err
	})
}
