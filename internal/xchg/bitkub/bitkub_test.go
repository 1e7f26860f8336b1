// FILE: bitkub_test.go
package bitkub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tv-order-executor/executor/internal/xchg"
)

func TestNativeSymbolConversion(t *testing.T) {
	if got := nativeSymbol("BTC/THB"); got != "THB_BTC" {
		t.Fatalf("want THB_BTC, got %s", got)
	}
}

func TestFetchBalanceSignsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-BTK-APIKEY") != "key" {
			t.Fatalf("missing api key header")
		}
		if r.Header.Get("X-BTK-SIGN") == "" {
			t.Fatalf("missing signature header")
		}
		if r.Header.Get("X-BTK-TIMESTAMP") == "" {
			t.Fatalf("missing timestamp header")
		}
		w.Write([]byte(`{"error":0,"result":{"THB":{"available":1000.5,"reserved":0}}}`))
	}))
	defer srv.Close()

	a := New("key", "secret", srv.URL)
	bal, err := a.FetchBalance(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if bal["THB"].Free != 1000.5 {
		t.Fatalf("want 1000.5, got %v", bal["THB"].Free)
	}
}

func TestFetchOrderBookNativeSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sym") != "THB_BTC" {
			t.Fatalf("expected THB_BTC, got %s", r.URL.Query().Get("sym"))
		}
		w.Write([]byte(`{"error":0,"bids":[[100.0,1.0]],"asks":[[101.0,2.0]]}`))
	}))
	defer srv.Close()

	a := New("key", "secret", srv.URL)
	book, err := a.FetchOrderBook(context.Background(), "BTC/THB", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(book.Bids) != 1 || book.Bids[0].Price != 100.0 {
		t.Fatalf("unexpected bids: %+v", book.Bids)
	}
}

func TestErrorCodeClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":18}`))
	}))
	defer srv.Close()

	a := New("key", "secret", srv.URL)
	_, err := a.FetchBalance(context.Background())
	if !xchg.IsKind(err, xchg.KindInsufficientFunds) {
		t.Fatalf("expected KindInsufficientFunds, got %v", err)
	}
}
