package zerox

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"NOLA-Exchange/internal/upstream"
)

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	fetcher := upstream.NewHTTPFetcher(Name, upstream.NewGuard(time.Second), upstream.WithHeader(APIKeyHeader, "zx-key"))
	return NewClient(srv.URL, "", fetcher)
}

func request() upstream.QuoteRequest {
	return upstream.QuoteRequest{
		From:     "0x2791bca1f2de4661ed88a30c99a7a9449aa84174",
		To:       "0x0000000000000000000000000000000000001010",
		Amount:   big.NewInt(100_000_000),
		Slippage: 1,
	}
}

func TestGetQuote(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(APIKeyHeader) != "zx-key" {
			t.Errorf("missing api key header")
		}
		q := r.URL.Query()
		if q.Get("slippagePercentage") != "0.01" || q.Get("sellAmount") != "100000000" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{
			"buyAmount":"50000000000000000000",
			"to":"0xDef1C0ded9bec7F1a1670819833240f027b25EfF",
			"data":"0x415565b0",
			"value":"0",
			"gas":"250000",
			"allowanceTarget":"0xDef1C0ded9bec7F1a1670819833240f027b25EfF"
		}`))
	})

	res := client.GetQuote(context.Background(), request())
	if !res.OK() {
		t.Fatalf("unexpected failure: %v", res.Err)
	}
	q := res.Quote
	if q.ToAmount.String() != "50000000000000000000" {
		t.Fatalf("unexpected buy amount %s", q.ToAmount)
	}
	if q.GasEstimate != 250000 || q.Spender != "0xdef1c0ded9bec7f1a1670819833240f027b25eff" {
		t.Fatalf("unexpected quote %+v", q)
	}
}

func TestGetQuoteValidationErrors(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"validationErrors":[{"field":"sellAmount","reason":"INSUFFICIENT_ASSET_LIQUIDITY"}]}`))
	})
	res := client.GetQuote(context.Background(), request())
	if res.OK() || res.Err.Reason != upstream.ReasonBadStatus {
		t.Fatalf("expected bad_status, got %+v", res.Err)
	}
}

func TestGetQuoteHTTPError(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":100,"reason":"Validation Failed"}`))
	})
	res := client.GetQuote(context.Background(), request())
	if res.OK() || res.Err.Reason != upstream.ReasonBadStatus {
		t.Fatalf("expected bad_status, got %+v", res.Err)
	}
}
