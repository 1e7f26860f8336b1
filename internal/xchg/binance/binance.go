// FILE: binance.go
// Package binance implements xchg.Adapter against Binance Spot's REST API
// using direct HMAC request signing — no HTTP client library, matching
// how this corpus talks to exchange REST endpoints everywhere else.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tv-order-executor/executor/internal/xchg"
)

// Adapter talks to Binance Spot over signed REST calls.
type Adapter struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	recvWindow int64
	hc         *http.Client
}

// New builds a Binance adapter. baseURL defaults to the production API
// host when empty.
func New(apiKey, apiSecret, baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	return &Adapter{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    strings.TrimRight(baseURL, "/"),
		recvWindow: 5000,
		hc:         &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *Adapter) Name() string { return "BINANCE" }

func (a *Adapter) sign(q url.Values) string {
	mac := hmac.New(sha256.New, []byte(a.apiSecret))
	_, _ = io.WriteString(mac, q.Encode())
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *Adapter) classify(op string, statusCode int, body []byte) error {
	msg := strings.ToLower(string(body))
	switch {
	case statusCode == 401 || statusCode == 403 || strings.Contains(msg, "invalid api-key") || strings.Contains(msg, "signature"):
		return xchg.NewError("BINANCE", op, xchg.KindAuthError, fmt.Errorf("%s", body))
	case strings.Contains(msg, "unknown order"):
		return xchg.NewError("BINANCE", op, xchg.KindOrderNotFound, fmt.Errorf("%s", body))
	case strings.Contains(msg, "insufficient balance") || strings.Contains(msg, "account has insufficient"):
		return xchg.NewError("BINANCE", op, xchg.KindInsufficientFunds, fmt.Errorf("%s", body))
	case statusCode == 429 || statusCode == 418:
		return xchg.NewError("BINANCE", op, xchg.KindRateLimited, fmt.Errorf("%s", body))
	case statusCode >= 500:
		return xchg.NewError("BINANCE", op, xchg.KindExchangeUnavailable, fmt.Errorf("%s", body))
	case statusCode >= 400:
		return xchg.NewError("BINANCE", op, xchg.KindInvalidOrder, fmt.Errorf("%s", body))
	default:
		return xchg.NewError("BINANCE", op, xchg.KindTransient, fmt.Errorf("%s", body))
	}
}

func (a *Adapter) request(ctx context.Context, op, method, path string, q url.Values, signed bool) ([]byte, error) {
	if q == nil {
		q = url.Values{}
	}
	if signed {
		q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		if a.recvWindow > 0 {
			q.Set("recvWindow", strconv.FormatInt(a.recvWindow, 10))
		}
		q.Set("signature", a.sign(q))
	}

	var req *http.Request
	var err error
	if method == http.MethodGet || method == http.MethodDelete {
		req, err = http.NewRequestWithContext(ctx, method, a.baseURL+path+"?"+q.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, a.baseURL+path, strings.NewReader(q.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, xchg.NewError("BINANCE", op, xchg.KindTransient, err)
	}
	if a.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", a.apiKey)
	}

	res, err := a.hc.Do(req)
	if err != nil {
		return nil, xchg.NewError("BINANCE", op, xchg.KindTransient, err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode/100 != 2 {
		return nil, a.classify(op, res.StatusCode, body)
	}
	return body, nil
}

func (a *Adapter) LoadMarkets(ctx context.Context) (map[string]xchg.Market, error) {
	body, err := a.request(ctx, "LoadMarkets", http.MethodGet, "/api/v3/exchangeInfo", nil, false)
	if err != nil {
		return nil, err
	}
	var ex struct {
		Symbols []struct {
			Symbol     string `json:"symbol"`
			BaseAsset  string `json:"baseAsset"`
			QuoteAsset string `json:"quoteAsset"`
			Filters    []struct {
				FilterType  string `json:"filterType"`
				StepSize    string `json:"stepSize"`
				TickSize    string `json:"tickSize"`
				MinNotional string `json:"minNotional"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &ex); err != nil {
		return nil, xchg.NewError("BINANCE", "LoadMarkets", xchg.KindTransient, err)
	}

	out := make(map[string]xchg.Market, len(ex.Symbols))
	for _, s := range ex.Symbols {
		m := xchg.Market{Base: s.BaseAsset, Quote: s.QuoteAsset, NativeSymbol: s.Symbol}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				m.PricePrecision = tickToPrecision(f.TickSize)
			case "LOT_SIZE":
				m.AmountPrecision = tickToPrecision(f.StepSize)
				if f.StepSize != "" {
					m.MinAmount, _ = strconv.ParseFloat(f.StepSize, 64)
				}
			case "MIN_NOTIONAL", "NOTIONAL":
				if f.MinNotional != "" {
					m.MinCost, _ = strconv.ParseFloat(f.MinNotional, 64)
				}
			}
		}
		out[m.Symbol()] = m
	}
	return out, nil
}

// tickToPrecision converts a decimal step-size string like "0.00100000"
// into the integer count of decimal places actually significant.
func tickToPrecision(step string) int {
	if step == "" {
		return 2
	}
	v, err := strconv.ParseFloat(step, 64)
	if err != nil || v <= 0 {
		return 2
	}
	s := strings.TrimRight(strings.TrimRight(step, "0"), ".")
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

func (a *Adapter) FetchBalance(ctx context.Context) (xchg.Balance, error) {
	body, err := a.request(ctx, "FetchBalance", http.MethodGet, "/api/v3/account", url.Values{}, true)
	if err != nil {
		return nil, err
	}
	var acc struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &acc); err != nil {
		return nil, xchg.NewError("BINANCE", "FetchBalance", xchg.KindTransient, err)
	}
	out := make(xchg.Balance, len(acc.Balances))
	for _, b := range acc.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		out[strings.ToUpper(b.Asset)] = xchg.AssetBalance{Free: free, Used: locked, Total: free + locked}
	}
	return out, nil
}

func symbolToNative(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

func (a *Adapter) FetchTicker(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("symbol", symbolToNative(symbol))
	body, err := a.request(ctx, "FetchTicker", http.MethodGet, "/api/v3/ticker/price", q, false)
	if err != nil {
		return 0, err
	}
	var p struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return 0, xchg.NewError("BINANCE", "FetchTicker", xchg.KindTransient, err)
	}
	return strconv.ParseFloat(p.Price, 64)
}

func (a *Adapter) FetchTickers(ctx context.Context, symbols []string) (map[string]float64, error) {
	body, err := a.request(ctx, "FetchTickers", http.MethodGet, "/api/v3/ticker/price", nil, false)
	if err != nil {
		return nil, err
	}
	var all []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &all); err != nil {
		return nil, xchg.NewError("BINANCE", "FetchTickers", xchg.KindTransient, err)
	}
	want := make(map[string]string, len(symbols))
	for _, s := range symbols {
		want[symbolToNative(s)] = s
	}
	out := make(map[string]float64)
	for _, e := range all {
		symbol, ok := want[e.Symbol]
		if !ok {
			continue
		}
		if p, err := strconv.ParseFloat(e.Price, 64); err == nil {
			out[symbol] = p
		}
	}
	return out, nil
}

func (a *Adapter) FetchOrderBook(ctx context.Context, symbol string, limit int) (xchg.OrderBookSnapshot, error) {
	if limit <= 0 || limit > 5000 {
		limit = 50
	}
	q := url.Values{}
	q.Set("symbol", symbolToNative(symbol))
	q.Set("limit", strconv.Itoa(limit))
	body, err := a.request(ctx, "FetchOrderBook", http.MethodGet, "/api/v3/depth", q, false)
	if err != nil {
		return xchg.OrderBookSnapshot{}, err
	}
	var raw struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return xchg.OrderBookSnapshot{}, xchg.NewError("BINANCE", "FetchOrderBook", xchg.KindTransient, err)
	}
	book := xchg.OrderBookSnapshot{Symbol: symbol, Timestamp: time.Now().UTC()}
	book.Bids = parseLevels(raw.Bids)
	book.Asks = parseLevels(raw.Asks)
	return book, nil
}

func parseLevels(raw [][2]string) []xchg.PriceLevel {
	out := make([]xchg.PriceLevel, 0, len(raw))
	for _, r := range raw {
		p, err1 := strconv.ParseFloat(r[0], 64)
		q, err2 := strconv.ParseFloat(r[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, xchg.PriceLevel{Price: p, Quantity: q})
	}
	return out
}

func (a *Adapter) CreateOrder(ctx context.Context, symbol string, side xchg.Side, amount, price float64) (xchg.Order, error) {
	q := url.Values{}
	q.Set("symbol", symbolToNative(symbol))
	q.Set("side", strings.ToUpper(string(side)))
	q.Set("type", "LIMIT")
	q.Set("timeInForce", "GTC")
	q.Set("quantity", strconv.FormatFloat(amount, 'f', -1, 64))
	q.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
	q.Set("newOrderRespType", "ACK")

	body, err := a.request(ctx, "CreateOrder", http.MethodPost, "/api/v3/order", q, true)
	if err != nil {
		return xchg.Order{}, err
	}
	var resp struct {
		OrderID int64 `json:"orderId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return xchg.Order{}, xchg.NewError("BINANCE", "CreateOrder", xchg.KindTransient, err)
	}
	return xchg.Order{
		ID:        strconv.FormatInt(resp.OrderID, 10),
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Amount:    amount,
		Remaining: amount,
		Status:    xchg.StatusOpen,
	}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, id, symbol string, params xchg.CancelParams) error {
	q := url.Values{}
	q.Set("symbol", symbolToNative(symbol))
	q.Set("orderId", id)
	_, err := a.request(ctx, "CancelOrder", http.MethodDelete, "/api/v3/order", q, true)
	return err
}

func (a *Adapter) FetchOrder(ctx context.Context, id, symbol string) (xchg.Order, error) {
	q := url.Values{}
	q.Set("symbol", symbolToNative(symbol))
	q.Set("orderId", id)
	body, err := a.request(ctx, "FetchOrder", http.MethodGet, "/api/v3/order", q, true)
	if err != nil {
		return xchg.Order{}, err
	}
	var o struct {
		OrderID     int64  `json:"orderId"`
		Side        string `json:"side"`
		Price       string `json:"price"`
		OrigQty     string `json:"origQty"`
		ExecutedQty string `json:"executedQty"`
		Status      string `json:"status"`
	}
	if err := json.Unmarshal(body, &o); err != nil {
		return xchg.Order{}, xchg.NewError("BINANCE", "FetchOrder", xchg.KindTransient, err)
	}
	price, _ := strconv.ParseFloat(o.Price, 64)
	amount, _ := strconv.ParseFloat(o.OrigQty, 64)
	executed, _ := strconv.ParseFloat(o.ExecutedQty, 64)
	return xchg.Order{
		ID:        strconv.FormatInt(o.OrderID, 10),
		Symbol:    symbol,
		Side:      xchg.Side(strings.ToLower(o.Side)),
		Price:     price,
		Amount:    amount,
		Remaining: amount - executed,
		Status:    mapStatus(o.Status),
	}, nil
}

func mapStatus(s string) xchg.OrderStatus {
	switch s {
	case "NEW", "PARTIALLY_FILLED":
		return xchg.StatusOpen
	case "CANCELED", "EXPIRED", "REJECTED":
		return xchg.StatusCancelled
	case "FILLED":
		return xchg.StatusClosed
	default:
		return xchg.StatusClosed
	}
}

func (a *Adapter) FetchOpenOrders(ctx context.Context, symbol string) ([]xchg.Order, error) {
	q := url.Values{}
	q.Set("symbol", symbolToNative(symbol))
	body, err := a.request(ctx, "FetchOpenOrders", http.MethodGet, "/api/v3/openOrders", q, true)
	if err != nil {
		return nil, err
	}
	var list []struct {
		OrderID     int64  `json:"orderId"`
		Side        string `json:"side"`
		Price       string `json:"price"`
		OrigQty     string `json:"origQty"`
		ExecutedQty string `json:"executedQty"`
		Status      string `json:"status"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, xchg.NewError("BINANCE", "FetchOpenOrders", xchg.KindTransient, err)
	}
	out := make([]xchg.Order, 0, len(list))
	for _, o := range list {
		price, _ := strconv.ParseFloat(o.Price, 64)
		amount, _ := strconv.ParseFloat(o.OrigQty, 64)
		executed, _ := strconv.ParseFloat(o.ExecutedQty, 64)
		out = append(out, xchg.Order{
			ID:        strconv.FormatInt(o.OrderID, 10),
			Symbol:    symbol,
			Side:      xchg.Side(strings.ToLower(o.Side)),
			Price:     price,
			Amount:    amount,
			Remaining: amount - executed,
			Status:    mapStatus(o.Status),
		})
	}
	return out, nil
}

func (a *Adapter) HasFetchOrder() bool      { return true }
func (a *Adapter) HasFetchOpenOrders() bool { return true }

var _ xchg.Adapter = (*Adapter)(nil)
