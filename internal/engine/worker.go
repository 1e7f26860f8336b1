// FILE: worker.go
// The per-asset limit-order state machine: place an order priced off the
// book, then loop re-pricing and replacing it against a fresh book until
// it is fully filled or the tomb is killed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"github.com/tv-order-executor/executor/internal/metrics"
	"github.com/tv-order-executor/executor/internal/pricing"
	"github.com/tv-order-executor/executor/internal/xchg"
)

const orderBookRefreshDelay = 750 * time.Millisecond
const pollDelay = 20 * time.Millisecond

// maxConsecutiveErrors bounds how many times in a row a worker retries the
// same failing operation (order-book fetch, order status refresh, order
// creation) before giving up and exiting. errorBackoffDelay is the pause
// between those retries, long enough that a flapping exchange doesn't turn
// into a busy loop.
const maxConsecutiveErrors = 8
const errorBackoffDelay = time.Second

// errWorkerStopped is returned internally by retry helpers when the tomb
// died mid-backoff, so callers can tell "stop requested" apart from
// "exhausted retries" without treating the former as any kind of failure.
var errWorkerStopped = errors.New("worker stopped")

// sleepOrDie waits for d unless t is killed first, returning true if the
// tomb died during the wait.
func sleepOrDie(t *tomb.Tomb, d time.Duration) bool {
	select {
	case <-t.Dying():
		return true
	case <-time.After(d):
		return false
	}
}

// runWorker is the worker goroutine body started by startWorker. amount is
// a base-asset budget for buys, a quote-asset (asset-to-sell) quantity for
// sells.
func (e *Engine) runWorker(t *tomb.Tomb, asset string, side xchg.Side, amount float64) error {
	ctx := context.Background()
	symbol := asset + "/" + e.Portfolio.BaseAsset
	market, ok := e.Portfolio.Market(asset)
	if !ok {
		return fmt.Errorf("no market metadata for %s", symbol)
	}
	tick := market.TickSize()

	book, err := e.Portfolio.Adapter.FetchOrderBook(ctx, symbol, 0)
	if err != nil {
		return err
	}

	var price, remaining float64
	if side == xchg.Buy {
		price, remaining = pricing.CalculateInitialBuyPrice(book, amount, tick, e.Strategy, e.OrderbookWeights)
	} else {
		price = pricing.CalculateInitialSellPrice(book, amount, tick, e.Strategy, e.OrderbookWeights)
		remaining = amount
	}
	if price <= 0 || remaining <= 0 {
		log.Warn().Str("asset", asset).Msg("no profitable initial price found, abandoning order")
		return nil
	}

	order, err := e.createLimitOrder(ctx, symbol, side, remaining, price)
	if err != nil {
		return err
	}
	if order == nil {
		return nil
	}
	e.Notifier.Notify(fmt.Sprintf("%s order placed: %s %.8f @ %.8f", symbol, side, remaining, price))

	if sleepOrDie(t, orderBookRefreshDelay) {
		return nil
	}

	var bookErrors int
	var statusErrors int
	for {
		select {
		case <-t.Dying():
			return nil
		default:
		}

		book, err := e.Portfolio.Adapter.FetchOrderBook(ctx, symbol, 0)
		if err != nil {
			bookErrors++
			log.Warn().Err(err).Str("symbol", symbol).Int("consecutive_errors", bookErrors).Msg("failed to refresh order book")
			if bookErrors >= maxConsecutiveErrors {
				msg := fmt.Sprintf("%s: giving up after %d consecutive order book failures: %v", symbol, bookErrors, err)
				e.Notifier.Notify(msg)
				return err
			}
			if sleepOrDie(t, errorBackoffDelay) {
				return nil
			}
			continue
		}
		bookErrors = 0

		current := pricing.CurrentOrder{Price: order.Price, Remaining: order.Remaining}
		targetPrice := pricing.CalculateTargetPrice(book, order.Remaining, side, current, tick, e.Strategy, e.OrderbookWeights)
		targetPrice = pricing.QuantizeTick(targetPrice, tick, 0)

		if targetPrice != order.Price {
			targetAmount := order.Remaining
			if side == xchg.Buy && targetPrice > 0 {
				targetAmount = order.Remaining * order.Price / targetPrice
			}
			updated, err := e.updateOrder(ctx, symbol, side, order, targetPrice, targetAmount)
			if err != nil {
				log.Warn().Err(err).Str("symbol", symbol).Msg("failed to update order")
			}
			if updated == nil {
				order, remaining, err = e.completeOrReplace(ctx, t, asset, side, targetPrice)
				if err == errWorkerStopped {
					return nil
				}
				if err != nil {
					return err
				}
				if order == nil {
					e.notifyFilled(asset, symbol, side, amount)
					return nil
				}
			} else {
				order = updated
			}
			if sleepOrDie(t, orderBookRefreshDelay) {
				return nil
			}
			continue
		}

		refreshed, err := e.refreshOrderStatus(ctx, order, symbol)
		if err != nil {
			statusErrors++
			log.Warn().Err(err).Str("symbol", symbol).Int("consecutive_errors", statusErrors).Msg("failed to refresh order status")
			if statusErrors >= maxConsecutiveErrors {
				msg := fmt.Sprintf("%s: giving up after %d consecutive order status failures: %v", symbol, statusErrors, err)
				e.Notifier.Notify(msg)
				return err
			}
			if sleepOrDie(t, errorBackoffDelay) {
				return nil
			}
			continue
		}
		statusErrors = 0
		if refreshed == nil {
			order, remaining, err = e.completeOrReplace(ctx, t, asset, side, targetPrice)
			if err == errWorkerStopped {
				return nil
			}
			if err != nil {
				return err
			}
			if order == nil {
				e.notifyFilled(asset, symbol, side, amount)
				return nil
			}
			if sleepOrDie(t, orderBookRefreshDelay) {
				return nil
			}
			continue
		}
		order = refreshed
		if sleepOrDie(t, pollDelay) {
			return nil
		}
	}
}

// completeOrReplace calls handleOrderCompletion and, if placing the
// replacement order fails, keeps retrying it with a backoff instead of
// reporting the order as filled: a create failure and "nothing left to
// trade" must never look the same to the caller. It gives up and returns
// the last error once maxConsecutiveErrors straight attempts have failed.
func (e *Engine) completeOrReplace(ctx context.Context, t *tomb.Tomb, asset string, side xchg.Side, targetPrice float64) (*xchg.Order, float64, error) {
	var errs int
	for {
		order, remaining, err := e.handleOrderCompletion(ctx, asset, side, targetPrice)
		if err == nil {
			return order, remaining, nil
		}
		errs++
		log.Error().Err(err).Str("asset", asset).Int("consecutive_errors", errs).Msg("failed to create replacement order")
		if errs >= maxConsecutiveErrors {
			msg := fmt.Sprintf("%s %s: giving up after %d consecutive failures to create an order: %v", asset, side, errs, err)
			e.Notifier.Notify(msg)
			return nil, 0, err
		}
		if sleepOrDie(t, errorBackoffDelay) {
			return nil, 0, errWorkerStopped
		}
	}
}

func (e *Engine) notifyFilled(asset, symbol string, side xchg.Side, amount float64) {
	unit := asset
	if side == xchg.Buy {
		unit = e.Portfolio.BaseAsset
	}
	msg := fmt.Sprintf("Order is fully matched, %s %s => %.8f %s", side, symbol, amount, unit)
	log.Info().Str("symbol", symbol).Msg(msg)
	e.Notifier.Notify(msg)
	metrics.OrdersFilled.WithLabelValues(e.Portfolio.ExchangeName, asset, string(side)).Inc()
}

func (e *Engine) createLimitOrder(ctx context.Context, symbol string, side xchg.Side, amount, price float64) (*xchg.Order, error) {
	asset := strings.TrimSuffix(symbol, "/"+e.Portfolio.BaseAsset)
	if market, ok := e.Portfolio.Market(asset); ok {
		amount = market.RoundAmount(amount)
	}
	o, err := e.Portfolio.Adapter.CreateOrder(ctx, symbol, side, amount, price)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("failed to create limit order")
		e.Notifier.Notify(fmt.Sprintf("failed to create limit order: %v", err))
		metrics.OrderErrors.WithLabelValues(e.Portfolio.ExchangeName, asset, xchg.KindOf(err).String()).Inc()
		return nil, err
	}
	metrics.OrdersPlaced.WithLabelValues(e.Portfolio.ExchangeName, asset, string(side)).Inc()
	return &o, nil
}

func (e *Engine) refreshOrderStatus(ctx context.Context, order *xchg.Order, symbol string) (*xchg.Order, error) {
	fresh, err := e.Portfolio.Adapter.FetchOrder(ctx, order.ID, symbol)
	if err != nil {
		if xchg.IsKind(err, xchg.KindOrderNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if fresh.Status == xchg.StatusClosed {
		return nil, nil
	}
	return &fresh, nil
}

func (e *Engine) updateOrder(ctx context.Context, symbol string, side xchg.Side, order *xchg.Order, targetPrice, targetAmount float64) (*xchg.Order, error) {
	asset := strings.TrimSuffix(symbol, "/"+e.Portfolio.BaseAsset)
	metrics.OrdersReplaced.WithLabelValues(e.Portfolio.ExchangeName, asset, string(side)).Inc()
	if err := e.Portfolio.Adapter.CancelOrder(ctx, order.ID, symbol, e.cancelParamsFor(side)); err != nil {
		log.Error().Err(err).Str("order_id", order.ID).Msg("failed to cancel order, sweeping open orders")
		orders, ferr := e.Portfolio.Adapter.FetchOpenOrders(ctx, symbol)
		if ferr == nil {
			for _, o := range orders {
				if o.Side != side {
					continue
				}
				if cerr := e.Portfolio.Adapter.CancelOrder(ctx, o.ID, symbol, e.cancelParamsFor(side)); cerr != nil {
					log.Error().Err(cerr).Str("order_id", o.ID).Msg("failed to cancel order during sweep")
				}
				time.Sleep(pollDelay)
			}
		}
		return nil, nil
	}

	if market, ok := e.Portfolio.Market(asset); ok {
		targetAmount = market.RoundAmount(targetAmount)
	}
	o, err := e.Portfolio.Adapter.CreateOrder(ctx, symbol, side, targetAmount, targetPrice)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("failed to place replacement order")
		e.Notifier.Notify(fmt.Sprintf("failed to update order: %v, %s, %s, %.8f, %.8f", err, symbol, side, targetAmount, targetPrice))
		return nil, nil
	}
	return &o, nil
}

// handleOrderCompletion checks whether anything remains to trade for asset
// after an order vanished (cancel, not-found, or fully filled); if so it
// places a fresh order for the remainder.
func (e *Engine) handleOrderCompletion(ctx context.Context, asset string, side xchg.Side, targetPrice float64) (*xchg.Order, float64, error) {
	remaining, err := e.remainingAmount(ctx, asset, side, targetPrice)
	if err != nil {
		return nil, 0, err
	}
	if remaining == 0 {
		return nil, 0, nil
	}
	symbol := asset + "/" + e.Portfolio.BaseAsset
	order, err := e.createLimitOrder(ctx, symbol, side, remaining, targetPrice)
	if err != nil {
		return nil, 0, err
	}
	return order, remaining, nil
}

func (e *Engine) remainingAmount(ctx context.Context, asset string, side xchg.Side, targetPrice float64) (float64, error) {
	minAmount, minCost, err := e.Portfolio.MinTradeAmount(asset)
	if err != nil {
		return 0, err
	}
	if side == xchg.Buy {
		available, err := e.Portfolio.AvailableBaseFor(ctx, asset)
		if err != nil {
			return 0, err
		}
		baseBalance := available * (1 - e.Portfolio.Fee)
		if targetPrice <= 0 {
			return 0, nil
		}
		remaining := baseBalance / targetPrice
		if (minAmount > 0 && remaining < minAmount) || (minCost > 0 && baseBalance < minCost) {
			return 0, nil
		}
		return remaining, nil
	}
	quoteBalance, err := e.Portfolio.GetBalance(ctx, asset)
	if err != nil {
		return 0, err
	}
	if (minAmount > 0 && quoteBalance < minAmount) || (minCost > 0 && quoteBalance*targetPrice < minCost) {
		return 0, nil
	}
	return quoteBalance, nil
}
