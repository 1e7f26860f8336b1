// FILE: types.go
// Package xchg — shared exchange-facing types used by the engine, portfolio,
// and registry. Every concrete adapter (binance, bitkub, paper) normalizes
// its own wire shapes into these before returning to a caller; raw exchange
// payloads never leak past this package boundary.
package xchg

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the side of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderStatus is the engine's view of an order's lifecycle state.
type OrderStatus string

const (
	StatusOpen      OrderStatus = "open"
	StatusClosed    OrderStatus = "closed"
	StatusCancelled OrderStatus = "cancelled"
)

// Market describes one tradable symbol: identifier pair, native rendering,
// and the precision/minimum metadata every order must respect.
type Market struct {
	Base, Quote string
	NativeSymbol string // exchange-native form, e.g. "BTCUSDT" or "THB_BTC"

	PricePrecision  int // integer decimal places of the price tick (see TickSize)
	AmountPrecision int
	MinAmount       float64
	MinCost         float64
}

// Symbol renders the engine-canonical "BASE/QUOTE" form.
func (m Market) Symbol() string { return m.Base + "/" + m.Quote }

// TickSize derives the minimum price increment from PricePrecision as
// 10^(-precision). A PricePrecision below 1 is returned as-is, so 0 (not
// configured) gives a tick of 0, which QuantizeTick treats as "no
// quantization". PricePrecision is an int, so a fractional tick size such
// as 0.05 cannot be expressed.
func (m Market) TickSize() float64 {
	return precisionToTick(float64(m.PricePrecision))
}

// AmountStep derives the minimum amount increment from AmountPrecision, the
// same way TickSize derives the price increment from PricePrecision.
func (m Market) AmountStep() float64 {
	return precisionToTick(float64(m.AmountPrecision))
}

// RoundAmount floors amount down to the nearest AmountStep, so an order
// never asks the exchange to trade a finer quantity than the market allows.
// A zero-or-negative step (precision not configured) leaves amount as-is.
func (m Market) RoundAmount(amount float64) float64 {
	step := m.AmountStep()
	if step <= 0 {
		return amount
	}
	units := decimal.NewFromFloat(amount).Div(decimal.NewFromFloat(step)).Floor()
	return units.Mul(decimal.NewFromFloat(step)).InexactFloat64()
}

func precisionToTick(precision float64) float64 {
	if precision < 1 {
		return precision
	}
	t := 1.0
	for i := 0; i < int(precision); i++ {
		t /= 10
	}
	return t
}

// PriceLevel is one (price, quantity) entry in an order book side.
type PriceLevel struct {
	Price    float64
	Quantity float64
}

// OrderBookSnapshot is bids descending by price, asks ascending by price.
type OrderBookSnapshot struct {
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// AssetBalance is one entry of a Balance map: free is spendable, total =
// free + used.
type AssetBalance struct {
	Free, Used, Total float64
}

// Balance maps asset symbol (e.g. "BTC", "USDT") to its balance.
type Balance map[string]AssetBalance

// Order is the engine's normalized view of a resting or historical order.
// Raw preserves the exchange-native payload for debugging; callers must
// never parse it directly — heterogeneous raw shapes are the adapter's
// problem, not the engine's.
type Order struct {
	ID        string
	Symbol    string
	Side      Side
	Price     float64
	Amount    float64
	Remaining float64
	Status    OrderStatus
	Raw       map[string]any
}

// CancelParams carries adapter-specific parameters a CancelOrder call may
// need (e.g. Bitkub's required order-side hint). Adapters that don't need
// any of it ignore the map entirely.
type CancelParams map[string]any
