// FILE: bitkub.go
// Package bitkub implements xchg.Adapter against Bitkub's REST API.
// Bitkub's native symbol is "QUOTE_BASE" (e.g. "THB_BTC"), the reverse of
// this package's Base/Quote convention, and its private signing scheme
// signs the literal request path plus body with HMAC-SHA256, sent as the
// X-BTK-SIGN header alongside a millisecond X-BTK-TIMESTAMP.
package bitkub

import (
	"bytes"
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

// Adapter talks to Bitkub over its v3 REST API.
type Adapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	hc        *http.Client
}

func New(apiKey, apiSecret, baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = "https://api.bitkub.com"
	}
	return &Adapter{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		hc:        &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *Adapter) Name() string { return "BITKUB" }

// nativeSymbol renders the engine's "BASE/QUOTE" form as Bitkub's native
// "QUOTE_BASE" identifier.
func nativeSymbol(symbol string) string {
	parts := strings.SplitN(symbol, "/", 2)
	if len(parts) != 2 {
		return symbol
	}
	return strings.ToUpper(parts[1]) + "_" + strings.ToUpper(parts[0])
}

func (a *Adapter) classify(op string, errCode int, statusCode int) error {
	switch errCode {
	case 2, 3, 5, 6, 7, 8, 9:
		return xchg.NewError("BITKUB", op, xchg.KindAuthError, fmt.Errorf("bitkub error code %d", errCode))
	case 11, 12, 13, 14, 22:
		return xchg.NewError("BITKUB", op, xchg.KindInvalidOrder, fmt.Errorf("bitkub error code %d", errCode))
	case 18:
		return xchg.NewError("BITKUB", op, xchg.KindInsufficientFunds, fmt.Errorf("bitkub error code %d", errCode))
	case 21:
		return xchg.NewError("BITKUB", op, xchg.KindOrderNotFound, fmt.Errorf("bitkub error code %d", errCode))
	case 30:
		return xchg.NewError("BITKUB", op, xchg.KindRateLimited, fmt.Errorf("bitkub error code %d", errCode))
	}
	switch {
	case statusCode == 429 || statusCode == 418:
		return xchg.NewError("BITKUB", op, xchg.KindRateLimited, fmt.Errorf("http %d", statusCode))
	case statusCode >= 500:
		return xchg.NewError("BITKUB", op, xchg.KindExchangeUnavailable, fmt.Errorf("http %d", statusCode))
	default:
		return xchg.NewError("BITKUB", op, xchg.KindTransient, fmt.Errorf("http %d, bitkub error code %d", statusCode, errCode))
	}
}

func (a *Adapter) sign(message string) string {
	mac := hmac.New(sha256.New, []byte(a.apiSecret))
	_, _ = io.WriteString(mac, message)
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *Adapter) publicGet(ctx context.Context, op, path string, q url.Values) ([]byte, error) {
	u := a.baseURL + "/" + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, xchg.NewError("BITKUB", op, xchg.KindTransient, err)
	}
	return a.do(op, req)
}

// privatePost signs and POSTs a JSON body, matching the exchange's signing
// convention of timestamp + method + "/" + path + body.
func (a *Adapter) privatePost(ctx context.Context, op, path string, payload map[string]any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	payload["ts"] = ts
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, xchg.NewError("BITKUB", op, xchg.KindTransient, err)
	}
	sigString := ts + "POST" + "/" + path + string(body)
	sig := a.sign(sigString)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/"+path, bytes.NewReader(body))
	if err != nil {
		return nil, xchg.NewError("BITKUB", op, xchg.KindTransient, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-BTK-TIMESTAMP", ts)
	req.Header.Set("X-BTK-APIKEY", a.apiKey)
	req.Header.Set("X-BTK-SIGN", sig)
	return a.do(op, req)
}

func (a *Adapter) do(op string, req *http.Request) ([]byte, error) {
	res, err := a.hc.Do(req)
	if err != nil {
		return nil, xchg.NewError("BITKUB", op, xchg.KindTransient, err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode/100 != 2 {
		return nil, a.classify(op, 0, res.StatusCode)
	}
	var envelope struct {
		Error int `json:"error"`
	}
	_ = json.Unmarshal(body, &envelope)
	if envelope.Error != 0 {
		return nil, a.classify(op, envelope.Error, res.StatusCode)
	}
	return body, nil
}

func (a *Adapter) LoadMarkets(ctx context.Context) (map[string]xchg.Market, error) {
	body, err := a.publicGet(ctx, "LoadMarkets", "api/market/symbols", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result []struct {
			Symbol string `json:"symbol"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, xchg.NewError("BITKUB", "LoadMarkets", xchg.KindTransient, err)
	}
	out := make(map[string]xchg.Market, len(resp.Result))
	for _, r := range resp.Result {
		parts := strings.SplitN(r.Symbol, "_", 2)
		if len(parts) != 2 {
			continue
		}
		quote, base := parts[0], parts[1]
		m := xchg.Market{
			Base: base, Quote: quote, NativeSymbol: r.Symbol,
			PricePrecision: 2, AmountPrecision: 8, MinCost: 10,
		}
		out[m.Symbol()] = m
	}
	return out, nil
}

func (a *Adapter) FetchBalance(ctx context.Context) (xchg.Balance, error) {
	body, err := a.privatePost(ctx, "FetchBalance", "api/v3/market/balances", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result map[string]struct {
			Available float64 `json:"available"`
			Reserved  float64 `json:"reserved"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, xchg.NewError("BITKUB", "FetchBalance", xchg.KindTransient, err)
	}
	out := make(xchg.Balance, len(resp.Result))
	for asset, v := range resp.Result {
		out[strings.ToUpper(asset)] = xchg.AssetBalance{Free: v.Available, Used: v.Reserved, Total: v.Available + v.Reserved}
	}
	return out, nil
}

func (a *Adapter) FetchTicker(ctx context.Context, symbol string) (float64, error) {
	tickers, err := a.FetchTickers(ctx, []string{symbol})
	if err != nil {
		return 0, err
	}
	p, ok := tickers[symbol]
	if !ok {
		return 0, xchg.NewError("BITKUB", "FetchTicker", xchg.KindInvalidOrder, fmt.Errorf("no ticker for %s", symbol))
	}
	return p, nil
}

func (a *Adapter) FetchTickers(ctx context.Context, symbols []string) (map[string]float64, error) {
	body, err := a.publicGet(ctx, "FetchTickers", "api/market/ticker", nil)
	if err != nil {
		return nil, err
	}
	var raw map[string]struct {
		Last float64 `json:"last"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, xchg.NewError("BITKUB", "FetchTickers", xchg.KindTransient, err)
	}
	want := make(map[string]string, len(symbols))
	for _, s := range symbols {
		want[nativeSymbol(s)] = s
	}
	out := make(map[string]float64)
	for native, v := range raw {
		if symbol, ok := want[native]; ok {
			out[symbol] = v.Last
		}
	}
	return out, nil
}

func (a *Adapter) FetchOrderBook(ctx context.Context, symbol string, limit int) (xchg.OrderBookSnapshot, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	q := url.Values{}
	q.Set("sym", nativeSymbol(symbol))
	q.Set("lmt", strconv.Itoa(limit))
	body, err := a.publicGet(ctx, "FetchOrderBook", "api/market/depth", q)
	if err != nil {
		return xchg.OrderBookSnapshot{}, err
	}
	var raw struct {
		Bids [][2]float64 `json:"bids"`
		Asks [][2]float64 `json:"asks"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return xchg.OrderBookSnapshot{}, xchg.NewError("BITKUB", "FetchOrderBook", xchg.KindTransient, err)
	}
	book := xchg.OrderBookSnapshot{Symbol: symbol, Timestamp: time.Now().UTC()}
	for _, b := range raw.Bids {
		book.Bids = append(book.Bids, xchg.PriceLevel{Price: b[0], Quantity: b[1]})
	}
	for _, ask := range raw.Asks {
		book.Asks = append(book.Asks, xchg.PriceLevel{Price: ask[0], Quantity: ask[1]})
	}
	return book, nil
}

func (a *Adapter) CreateOrder(ctx context.Context, symbol string, side xchg.Side, amount, price float64) (xchg.Order, error) {
	native := nativeSymbol(symbol)
	amt := amount
	if side == xchg.Buy {
		amt = amount * price // bitkub's bid amount is quote-currency spend
	}
	payload := map[string]any{
		"sym": native,
		"amt": amt,
		"rat": price,
		"typ": "limit",
	}
	path := "api/v3/market/place-ask"
	if side == xchg.Buy {
		path = "api/v3/market/place-bid"
	}
	body, err := a.privatePost(ctx, "CreateOrder", path, payload)
	if err != nil {
		return xchg.Order{}, err
	}
	var resp struct {
		Result struct {
			ID  string  `json:"id"`
			Rat float64 `json:"rat"`
			Rec float64 `json:"rec"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return xchg.Order{}, xchg.NewError("BITKUB", "CreateOrder", xchg.KindTransient, err)
	}
	return xchg.Order{
		ID:        resp.Result.ID,
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Amount:    amount,
		Remaining: amount,
		Status:    xchg.StatusOpen,
	}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, id, symbol string, params xchg.CancelParams) error {
	payload := map[string]any{
		"sym": nativeSymbol(symbol),
		"id":  id,
	}
	if params != nil {
		if sd, ok := params["sd"]; ok {
			payload["sd"] = sd
		}
	}
	_, err := a.privatePost(ctx, "CancelOrder", "api/v3/market/cancel-order", payload)
	return err
}

func (a *Adapter) FetchOrder(ctx context.Context, id, symbol string) (xchg.Order, error) {
	payload := map[string]any{
		"sym": nativeSymbol(symbol),
		"id":  id,
	}
	body, err := a.privatePost(ctx, "FetchOrder", "api/v3/market/order-info", payload)
	if err != nil {
		return xchg.Order{}, err
	}
	var resp struct {
		Result struct {
			ID        string  `json:"id"`
			Side      string  `json:"side"`
			Rate      float64 `json:"rate"`
			Amount    float64 `json:"amount"`
			Remaining float64 `json:"remaining"`
			Status    string  `json:"status"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return xchg.Order{}, xchg.NewError("BITKUB", "FetchOrder", xchg.KindTransient, err)
	}
	return xchg.Order{
		ID:        resp.Result.ID,
		Symbol:    symbol,
		Side:      xchg.Side(resp.Result.Side),
		Price:     resp.Result.Rate,
		Amount:    resp.Result.Amount,
		Remaining: resp.Result.Remaining,
		Status:    mapStatus(resp.Result.Status),
	}, nil
}

func mapStatus(s string) xchg.OrderStatus {
	switch s {
	case "filled":
		return xchg.StatusClosed
	case "cancelled":
		return xchg.StatusCancelled
	default:
		return xchg.StatusOpen
	}
}

func (a *Adapter) FetchOpenOrders(ctx context.Context, symbol string) ([]xchg.Order, error) {
	payload := map[string]any{"sym": nativeSymbol(symbol)}
	body, err := a.privatePost(ctx, "FetchOpenOrders", "api/v3/market/my-open-orders", payload)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result []struct {
			ID     string  `json:"id"`
			Side   string  `json:"side"`
			Rate   float64 `json:"rate"`
			Amount float64 `json:"amount"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, xchg.NewError("BITKUB", "FetchOpenOrders", xchg.KindTransient, err)
	}
	out := make([]xchg.Order, 0, len(resp.Result))
	for _, o := range resp.Result {
		out = append(out, xchg.Order{
			ID:        o.ID,
			Symbol:    symbol,
			Side:      xchg.Side(o.Side),
			Price:     o.Rate,
			Amount:    o.Amount,
			Remaining: o.Amount,
			Status:    xchg.StatusOpen,
		})
	}
	return out, nil
}

func (a *Adapter) HasFetchOrder() bool      { return true }
func (a *Adapter) HasFetchOpenOrders() bool { return true }

var _ xchg.Adapter = (*Adapter)(nil)
