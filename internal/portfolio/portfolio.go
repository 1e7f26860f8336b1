// FILE: portfolio.go
// Package portfolio tracks one exchange's equal-weight asset universe:
// balances, holding weights against the target allocation, and the
// available-base-balance redistribution that decides how much of the
// base asset a new buy may spend.
package portfolio

import (
	"context"
	"fmt"
	"sync"

	"github.com/tv-order-executor/executor/internal/metrics"
	"github.com/tv-order-executor/executor/internal/xchg"
)

var stableQuotes = map[string]bool{"USDT": true, "BUSD": true, "USD": true, "THB": true}

// AssetBalance is one line of a portfolio balance report.
type AssetBalance struct {
	Amount float64
	Price  float64
	Value  float64
	Weight float64 // only populated when the balance holds more than one non-stable asset and a holding weight has been computed for this one
}

// BalanceReport is the full portfolio snapshot returned by
// GetPortfolioBalance: the base asset amount, one entry per held
// non-stable asset worth >= 1 unit of the base asset, and a running total.
type BalanceReport struct {
	BaseAsset   string
	BaseAmount  float64
	Assets      map[string]AssetBalance
	TotalInBase float64
}

// Portfolio is one exchange's equal-weight universe and cached market
// metadata.
type Portfolio struct {
	ExchangeName string
	Adapter      xchg.Adapter
	BaseAsset    string
	Universe     []string
	Fee          float64
	Allocation   map[string]float64

	mu                 sync.Mutex
	markets            map[string]xchg.Market
	holdingWeight      map[string]float64
	totalHoldingWeight float64
}

// New builds a Portfolio with an equal-weight allocation across universe
// and loads the exchange's market metadata.
func New(ctx context.Context, exchangeName string, adapter xchg.Adapter, baseAsset string, universe []string, fee float64) (*Portfolio, error) {
	markets, err := adapter.LoadMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading markets for %s: %w", exchangeName, err)
	}
	allocation := make(map[string]float64, len(universe))
	for _, asset := range universe {
		allocation[asset] = 1.0 / float64(len(universe))
	}
	return &Portfolio{
		ExchangeName:  exchangeName,
		Adapter:       adapter,
		BaseAsset:     baseAsset,
		Universe:      universe,
		Fee:           fee,
		Allocation:    allocation,
		markets:       markets,
		holdingWeight: make(map[string]float64),
	}, nil
}

// Market returns the cached market metadata for asset/BaseAsset.
func (p *Portfolio) Market(asset string) (xchg.Market, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.markets[asset+"/"+p.BaseAsset]
	return m, ok
}

// GetBalance returns the free balance of one asset.
func (p *Portfolio) GetBalance(ctx context.Context, asset string) (float64, error) {
	bal, err := p.Adapter.FetchBalance(ctx)
	if err != nil {
		return 0, err
	}
	return bal[asset].Free, nil
}

// GetPrice returns the last price of asset quoted in BaseAsset.
func (p *Portfolio) GetPrice(ctx context.Context, asset string) (float64, error) {
	return p.Adapter.FetchTicker(ctx, asset+"/"+p.BaseAsset)
}

// GetNPrice returns last prices for a set of assets, keyed by asset (not
// by the full BASE/QUOTE symbol); assets with no ticker are omitted.
func (p *Portfolio) GetNPrice(ctx context.Context, assets []string) (map[string]float64, error) {
	symbols := make([]string, len(assets))
	for i, a := range assets {
		symbols[i] = a + "/" + p.BaseAsset
	}
	tickers, err := p.Adapter.FetchTickers(ctx, symbols)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(assets))
	for _, a := range assets {
		if price, ok := tickers[a+"/"+p.BaseAsset]; ok {
			out[a] = price
		}
	}
	return out, nil
}

// ComputeHoldingWeight recomputes each universe asset's share of total
// portfolio value (including the idle base-asset balance).
func (p *Portfolio) ComputeHoldingWeight(ctx context.Context) error {
	baseBalance, err := p.GetBalance(ctx, p.BaseAsset)
	if err != nil {
		return err
	}
	prices, err := p.GetNPrice(ctx, p.Universe)
	if err != nil {
		return err
	}

	totalValue := baseBalance
	marketValue := make(map[string]float64, len(p.Universe))
	for _, asset := range p.Universe {
		bal, err := p.GetBalance(ctx, asset)
		if err != nil {
			return err
		}
		price := prices[asset]
		marketValue[asset] = bal * price
		totalValue += marketValue[asset]
	}

	weights := make(map[string]float64, len(marketValue))
	p.mu.Lock()
	p.totalHoldingWeight = 0
	p.holdingWeight = make(map[string]float64, len(marketValue))
	for asset, value := range marketValue {
		var w float64
		if totalValue > 0 {
			w = value / totalValue
		}
		p.holdingWeight[asset] = w
		p.totalHoldingWeight += w
		weights[asset] = w
	}
	p.mu.Unlock()

	metrics.PortfolioValue.WithLabelValues(p.ExchangeName).Set(totalValue)
	for asset, w := range weights {
		metrics.HoldingWeight.WithLabelValues(p.ExchangeName, asset).Set(w)
	}
	return nil
}

// HoldingWeight returns the last computed holding weight for asset.
func (p *Portfolio) HoldingWeight(asset string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.holdingWeight[asset]
}

// AvailableBaseFor returns how much of the base asset balance a new buy of
// asset may spend: zero once holding weight is within 1% of target
// allocation, otherwise the share of idle (unallocated) base balance
// proportional to how far under-allocated asset is.
func (p *Portfolio) AvailableBaseFor(ctx context.Context, asset string) (float64, error) {
	p.mu.Lock()
	holding := p.holdingWeight[asset]
	target := p.Allocation[asset]
	available := 1 - p.totalHoldingWeight
	p.mu.Unlock()

	if holding > target*0.99 {
		return 0, nil
	}
	if target <= holding {
		return 0, nil
	}
	baseBalance, err := p.GetBalance(ctx, p.BaseAsset)
	if err != nil {
		return 0, err
	}
	w := (target - holding) / available
	if w > 1 {
		w = 1
	}
	return w * baseBalance, nil
}

// MinTradeAmount returns the exchange's minimum order amount and minimum
// notional cost for asset/BaseAsset.
func (p *Portfolio) MinTradeAmount(asset string) (minAmount, minCost float64, err error) {
	m, ok := p.Market(asset)
	if !ok {
		return 0, 0, fmt.Errorf("no market metadata for %s/%s", asset, p.BaseAsset)
	}
	return m.MinAmount, m.MinCost, nil
}

// GetPortfolioBalance reports the current balance of the base asset plus
// every non-stable-coin holding worth at least 1 unit of the base asset.
func (p *Portfolio) GetPortfolioBalance(ctx context.Context) (BalanceReport, error) {
	if len(p.Universe) > 1 {
		if err := p.ComputeHoldingWeight(ctx); err != nil {
			return BalanceReport{}, err
		}
	}
	balances, err := p.Adapter.FetchBalance(ctx)
	if err != nil {
		return BalanceReport{}, err
	}

	report := BalanceReport{BaseAsset: p.BaseAsset, Assets: make(map[string]AssetBalance)}
	report.BaseAmount = round2(balances[p.BaseAsset].Free)
	total := report.BaseAmount

	var assetList []string
	for asset := range balances {
		if stableQuotes[asset] {
			continue
		}
		assetList = append(assetList, asset)
	}
	prices, err := p.GetNPrice(ctx, assetList)
	if err != nil {
		return BalanceReport{}, err
	}

	for _, asset := range assetList {
		price, ok := prices[asset]
		if !ok {
			continue
		}
		amount := balances[asset].Free
		if amount <= 0.00005 {
			amount = 0
		}
		value := round2(amount * price)
		if value < 1 {
			continue
		}
		ab := AssetBalance{Amount: amount, Price: price, Value: value}
		if len(assetList) > 1 {
			if w, ok := p.holdingWeightSnapshot(asset); ok {
				ab.Weight = round2(w)
			}
		}
		report.Assets[asset] = ab
		total += amount * price
	}
	report.TotalInBase = round2(total)
	return report, nil
}

func (p *Portfolio) holdingWeightSnapshot(asset string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.holdingWeight[asset]
	return w, ok
}

func round2(v float64) float64 {
	const scale = 100
	return float64(int64(v*scale+sign(v)*0.5)) / scale
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
