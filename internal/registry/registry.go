// FILE: registry.go
// Package registry owns the set of configured exchanges: it builds one
// adapter, Portfolio and Engine per exchange that has credentials, and
// fans balance/order requests out across them.
package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tv-order-executor/executor/internal/config"
	"github.com/tv-order-executor/executor/internal/engine"
	"github.com/tv-order-executor/executor/internal/notify"
	"github.com/tv-order-executor/executor/internal/portfolio"
	"github.com/tv-order-executor/executor/internal/pricing"
	"github.com/tv-order-executor/executor/internal/xchg"
	"github.com/tv-order-executor/executor/internal/xchg/binance"
	"github.com/tv-order-executor/executor/internal/xchg/bitkub"
)

// exchangeList mirrors the set of exchanges the executor knows how to
// build an adapter for; KUCOIN has no adapter yet and is skipped with a
// log line, same as an unreachable exchange would be.
var exchangeList = []string{"BINANCE", "KUCOIN", "BITKUB"}

// OrderRequest is the shape of a webhook order instruction once decoded.
type OrderRequest struct {
	Exchange string
	Symbol   string
	Side     xchg.Side
}

// Registry holds one Engine/Portfolio per configured exchange.
type Registry struct {
	cfg       *config.Config
	notifier  notify.Notifier
	strategy  pricing.Strategy
	portfolio map[string]*portfolio.Portfolio
	engine    map[string]*engine.Engine
}

// New builds adapters, portfolios and engines for every exchange in cfg
// that carries both an API key and secret. Exchanges with no credentials
// are left out entirely, matching the executor's "skip what isn't
// configured" boot behavior.
func New(ctx context.Context, cfg *config.Config, notifier notify.Notifier) (*Registry, error) {
	r := &Registry{
		cfg:       cfg,
		notifier:  notifier,
		strategy:  pricing.WeightedAverage,
		portfolio: make(map[string]*portfolio.Portfolio),
		engine:    make(map[string]*engine.Engine),
	}

	for _, name := range exchangeList {
		exCfg, hasConfig := cfg.Exchanges[name]
		if !hasConfig {
			log.Info().Str("exchange", name).Msg("no config for exchange, skipping")
			continue
		}
		if !cfg.HasCredentials(name) {
			log.Info().Str("exchange", name).Msg("no credentials for exchange, skipping")
			continue
		}

		adapter, err := r.buildAdapter(name)
		if err != nil {
			log.Error().Err(err).Str("exchange", name).Msg("unable to build adapter")
			continue
		}

		p, err := portfolio.New(ctx, name, adapter, exCfg.BaseAsset, exCfg.Universe, exCfg.Fee)
		if err != nil {
			log.Error().Err(err).Str("exchange", name).Msg("unable to build portfolio")
			continue
		}
		r.portfolio[name] = p
		r.engine[name] = engine.New(p, r.strategy, cfg.OrderbookWeights, notifier)
	}
	return r, nil
}

// NewForTest builds a Registry directly from pre-constructed portfolios and
// engines, bypassing adapter construction and config loading. Exported for
// use by other packages' tests that need a Registry wired to a paper
// adapter instead of live exchange credentials.
func NewForTest(portfolios map[string]*portfolio.Portfolio, engines map[string]*engine.Engine) *Registry {
	return &Registry{
		cfg:       &config.Config{},
		notifier:  notify.NoopNotifier{},
		strategy:  pricing.WeightedAverage,
		portfolio: portfolios,
		engine:    engines,
	}
}

func (r *Registry) buildAdapter(name string) (xchg.Adapter, error) {
	creds := r.cfg.Credentials[name]
	switch name {
	case "BINANCE":
		return binance.New(creds.APIKey, creds.APISecret, ""), nil
	case "BITKUB":
		return bitkub.New(creds.APIKey, creds.APISecret, ""), nil
	default:
		return nil, fmt.Errorf("unsupported exchange %q", name)
	}
}

// GetPortfolio returns the Portfolio for name, or nil if name isn't
// configured.
func (r *Registry) GetPortfolio(name string) *portfolio.Portfolio {
	return r.portfolio[name]
}

// SendOrder dispatches a webhook-decoded order to the named exchange's
// Engine, if one is configured.
func (r *Registry) SendOrder(ctx context.Context, req OrderRequest) error {
	e, ok := r.engine[req.Exchange]
	if !ok {
		log.Warn().Str("exchange", req.Exchange).Msg("order received for unconfigured exchange")
		return nil
	}
	p := r.portfolio[req.Exchange]
	asset := strings.ReplaceAll(req.Symbol, p.BaseAsset, "")
	return e.SendOrder(ctx, asset, req.Side)
}

// BalanceResult is the aggregated response of GetBalance: a running total
// per base asset across every configured exchange, plus the per-exchange
// breakdown (or an error placeholder string when an exchange call fails).
type BalanceResult struct {
	Total     map[string]float64 `json:"total"`
	Exchanges map[string]any     `json:"exchanges"`
}

// GetBalance fetches every configured exchange's portfolio balance. A
// failing exchange contributes an "Error" placeholder instead of aborting
// the whole response, since one broken exchange shouldn't hide the rest.
func (r *Registry) GetBalance(ctx context.Context) BalanceResult {
	total := make(map[string]float64)
	exchanges := make(map[string]any)

	for _, name := range exchangeList {
		p, ok := r.portfolio[name]
		if !ok {
			exchanges[name] = "Cannot connect"
			continue
		}
		report, err := p.GetPortfolioBalance(ctx)
		if err != nil {
			log.Error().Err(err).Str("exchange", name).Msg("failed to fetch portfolio balance")
			exchanges[name] = "Error"
			continue
		}
		exchanges[name] = report
		total[report.BaseAsset] += report.TotalInBase
	}
	for k, v := range total {
		total[k] = round2(v)
	}
	return BalanceResult{Total: total, Exchanges: exchanges}
}

// IsWorkerRunning reports whether any configured exchange currently has an
// active rebalancing worker.
func (r *Registry) IsWorkerRunning() bool {
	for _, e := range r.engine {
		if e.IsWorkerRunning() {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	const scale = 100
	sign := 1.0
	if v < 0 {
		sign = -1
	}
	return float64(int64(v*scale+sign*0.5)) / scale
}
