// FILE: pricing.go
// Package pricing holds pure, deterministic limit-order price functions.
// Every pricing function here takes an order book snapshot and returns a
// price (QuantizeTick only snaps a price to a tick); none of them touch the
// network or mutate anything. The weighted-average
// sum is accumulated in float64 deliberately, matching how the book's own
// quantities arrive; only the final quantization to tick size goes through
// shopspring/decimal so the emitted price never drifts off a tick boundary.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/tv-order-executor/executor/internal/xchg"
)

// Strategy selects which of the three limit-order pricing algorithms to use.
type Strategy string

const (
	BestBidOrAsk        Strategy = "best_bid_or_ask"
	BetterThanBestPrice Strategy = "better_than_best_price"
	WeightedAverage     Strategy = "weighted_average"
)

// DefaultOrderbookWeights is the configuration default for the weighted
// average strategy when no override is supplied.
var DefaultOrderbookWeights = []float64{4, 2, 1, 1, 0, 0}

// CurrentOrder is the in-flight order to subtract from the book before
// pricing, so its own resting quantity doesn't bias the result.
type CurrentOrder struct {
	Price     float64
	Remaining float64
}

// QuantizeTick rounds p to the nearest tick using exact decimal arithmetic.
// dir<0 rounds down (floor), dir>0 rounds up (ceil), dir==0 rounds to
// nearest (the mode used for the adjusted and re-priced order prices).
func QuantizeTick(p, tick float64, dir int) float64 {
	if tick <= 0 {
		return p
	}
	dp := decimal.NewFromFloat(p)
	dt := decimal.NewFromFloat(tick)
	units := dp.Div(dt)
	var q decimal.Decimal
	switch {
	case dir < 0:
		q = units.Floor()
	case dir > 0:
		q = units.Ceil()
	default:
		q = units.Round(0)
	}
	return q.Mul(dt).InexactFloat64()
}

// CalculateLimitBuyPrice returns the price to place (or re-place) a resting
// buy at, given the book and the chosen strategy.
func CalculateLimitBuyPrice(book xchg.OrderBookSnapshot, strategy Strategy, tick float64, weights []float64, current *CurrentOrder) float64 {
	bids := book.Bids
	if len(bids) == 0 {
		return 0
	}
	switch strategy {
	case BestBidOrAsk:
		return bids[0].Price
	case BetterThanBestPrice:
		if current != nil && current.Price == bids[0].Price {
			return bids[0].Price
		}
		return bids[0].Price + tick
	case WeightedAverage:
		return calculateWeightedAveragePrice(bids, tick, true, weights, current)
	default:
		return bids[0].Price
	}
}

// CalculateLimitSellPrice returns the price to place (or re-place) a
// resting sell at, given the book and the chosen strategy.
func CalculateLimitSellPrice(book xchg.OrderBookSnapshot, strategy Strategy, tick float64, weights []float64, current *CurrentOrder) float64 {
	asks := book.Asks
	if len(asks) == 0 {
		return 0
	}
	switch strategy {
	case BestBidOrAsk:
		return asks[0].Price
	case BetterThanBestPrice:
		if current != nil && current.Price == asks[0].Price {
			return asks[0].Price
		}
		return asks[0].Price - tick
	case WeightedAverage:
		return calculateWeightedAveragePrice(asks, tick, false, weights, current)
	default:
		return asks[0].Price
	}
}

// calculateWeightedAveragePrice blends the top few book levels into one
// price: iterate the first len(weights)-1 levels, skipping (treating as absent)
// any level at the current order's own price once its remaining quantity
// is subtracted and the residue is below 1% of remaining; accumulate a
// weighted sum, synthesize a "best" level one tick outside the first
// non-skipped level, and round the result away from the market.
func calculateWeightedAveragePrice(levels []xchg.PriceLevel, tick float64, isBuy bool, weights []float64, current *CurrentOrder) float64 {
	if len(weights) == 0 {
		weights = DefaultOrderbookWeights
	}
	var weightedPriceSum, weightedQuantitySum float64
	wi := 0
	firstLevel := -1

	n := len(weights) - 1
	if n > len(levels) {
		n = len(levels)
	}
	for i := 0; i < n; i++ {
		price, qty := levels[i].Price, levels[i].Quantity
		if current != nil && price == current.Price {
			qty -= current.Remaining
			if qty < current.Remaining*0.01 {
				continue
			}
		}
		if firstLevel == -1 {
			firstLevel = i
		}
		weightedPriceSum += price * qty * weights[wi+1]
		weightedQuantitySum += qty * weights[wi+1]
		wi++
	}

	if firstLevel == -1 {
		// every level was skipped as our own order; fall back to the
		// top of book so the caller never divides by zero.
		firstLevel = 0
	}

	var adjustedBestPrice float64
	if isBuy {
		adjustedBestPrice = levels[firstLevel].Price + tick
	} else {
		adjustedBestPrice = levels[firstLevel].Price - tick
	}

	var restWeightSum float64
	for _, w := range weights[1:] {
		restWeightSum += w
	}
	var adjustedBestQuantity float64
	if restWeightSum != 0 {
		adjustedBestQuantity = weightedQuantitySum / restWeightSum
	}
	weightedPriceSum += adjustedBestPrice * adjustedBestQuantity * weights[0]
	weightedQuantitySum += adjustedBestQuantity * weights[0]

	if weightedQuantitySum == 0 {
		return levels[firstLevel].Price
	}
	avg := weightedPriceSum / weightedQuantitySum

	// Round away from the market: buy always moves to the NEXT tick above
	// (floor+1, not ceil, so an exact multiple of tick still advances one
	// full tick); sell floors to the tick at or below.
	if isBuy {
		return floorTicks(avg, tick).Add(decimal.NewFromFloat(1)).Mul(decimal.NewFromFloat(tick)).InexactFloat64()
	}
	return floorTicks(avg, tick).Mul(decimal.NewFromFloat(tick)).InexactFloat64()
}

// floorTicks returns floor(p/tick) as an exact decimal integer.
func floorTicks(p, tick float64) decimal.Decimal {
	return decimal.NewFromFloat(p).Div(decimal.NewFromFloat(tick)).Floor()
}

// AdjustPriceForProfit scans the book side from the top for the first
// level strictly better than price (lower for buy, higher for sell) with
// quantity >= quantityThreshold, and returns that level's price moved one
// tick inside the spread; when no level qualifies, price itself is returned
// (quantized). When current is supplied, its remaining is first subtracted
// from any level sitting at its own price, and every level whose quantity
// is then <= quantityThreshold is skipped entirely.
func AdjustPriceForProfit(price float64, side []xchg.PriceLevel, tick float64, isBuy bool, current *CurrentOrder, quantityThreshold float64) float64 {
	adjusted := price
	for _, lvl := range side {
		obPrice, obQty := lvl.Price, lvl.Quantity
		if current != nil {
			if obPrice == current.Price {
				obQty -= current.Remaining
			}
			if obQty <= quantityThreshold {
				continue
			}
		}
		if isBuy {
			if obPrice < price && obQty >= quantityThreshold {
				adjusted = obPrice + tick
				break
			}
		} else {
			if obPrice > price && obQty >= quantityThreshold {
				adjusted = obPrice - tick
				break
			}
		}
	}
	dir := 0
	return QuantizeTick(adjusted, tick, dir)
}

// CalculateInitialBuyPrice prices a fresh buy from the book, converts the
// base-currency budget to an amount at that price, applies the
// profitability adjustment once using that amount (not the raw budget) as
// the 1% quantity threshold, and converts the budget again at the adjusted
// price. No adjustment pass runs before the first amount is derived.
func CalculateInitialBuyPrice(book xchg.OrderBookSnapshot, baseAmount, tick float64, strategy Strategy, weights []float64) (price, amount float64) {
	price = CalculateLimitBuyPrice(book, strategy, tick, weights, nil)
	if price <= 0 {
		return 0, 0
	}
	amount = baseAmount / price
	price = AdjustPriceForProfit(price, book.Bids, tick, true, nil, amount*0.01)
	if price <= 0 {
		return price, amount
	}
	amount = baseAmount / price
	return price, amount
}

// CalculateInitialSellPrice prices a fresh sell from the book. The amount
// sold is fixed (quote-asset units); only price is computed.
func CalculateInitialSellPrice(book xchg.OrderBookSnapshot, quoteAmount, tick float64, strategy Strategy, weights []float64) float64 {
	price := CalculateLimitSellPrice(book, strategy, tick, weights, nil)
	return AdjustPriceForProfit(price, book.Asks, tick, false, nil, quoteAmount*0.01)
}

// CalculateTargetPrice recomputes the price for an in-flight order given a
// fresh book and the order's own remaining size as the quantity threshold
// basis.
func CalculateTargetPrice(book xchg.OrderBookSnapshot, remaining float64, side xchg.Side, current CurrentOrder, tick float64, strategy Strategy, weights []float64) float64 {
	if side == xchg.Buy {
		target := CalculateLimitBuyPrice(book, strategy, tick, weights, &current)
		return AdjustPriceForProfit(target, book.Bids, tick, true, &current, remaining*0.01)
	}
	target := CalculateLimitSellPrice(book, strategy, tick, weights, &current)
	return AdjustPriceForProfit(target, book.Asks, tick, false, &current, remaining*0.01)
}
