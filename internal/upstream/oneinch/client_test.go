package oneinch

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"NOLA-Exchange/internal/upstream"
)

const (
	usdc  = "0x2791bca1f2de4661ed88a30c99a7a9449aa84174"
	wmatc = "0x0d500b1d8e8ef31e21c99d1db9a6444d3adf1270"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	if cfg.ChainID == 0 {
		cfg.ChainID = 137
	}
	cfg.USDC = usdc
	fetcher := upstream.NewHTTPFetcher(Name, upstream.NewGuard(time.Second))
	return NewClient(cfg, fetcher, func(addr string) int32 {
		if addr == usdc {
			return 6
		}
		return 18
	})
}

func TestGetQuoteParsesQuoteEndpoint(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/137/quote" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("amount") != "100000000" {
			t.Errorf("unexpected amount %s", r.URL.Query().Get("amount"))
		}
		_, _ = w.Write([]byte(`{"toTokenAmount":"50000000000000000000","estimatedGas":180000}`))
	}, Config{})

	res := client.GetQuote(context.Background(), upstream.QuoteRequest{
		From: usdc, To: wmatc, Amount: big.NewInt(100_000_000), Slippage: 1,
	})
	if !res.OK() {
		t.Fatalf("unexpected failure: %v", res.Err)
	}
	if res.Quote.ToAmount.String() != "50000000000000000000" || res.Quote.GasEstimate != 180000 {
		t.Fatalf("unexpected quote %+v", res.Quote)
	}
	if res.Quote.Source != Name {
		t.Fatalf("unexpected source %s", res.Quote.Source)
	}
}

func TestGetQuoteUsesSwapEndpointWithSigner(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/137/swap" || r.URL.Query().Get("fromAddress") == "" {
			t.Errorf("expected swap endpoint, got %s", r.URL.String())
		}
		if r.URL.Query().Get("slippage") != "1" {
			t.Errorf("unexpected slippage %s", r.URL.Query().Get("slippage"))
		}
		_, _ = w.Write([]byte(`{"toTokenAmount":"7","tx":{"to":"0x1111111254FB6C44BAC0BED2854E76F90643097D","data":"0xabcd","value":"0","gas":210000}}`))
	}, Config{FromAddress: "0x00000000000000000000000000000000000000aa"})

	res := client.GetQuote(context.Background(), upstream.QuoteRequest{
		From: usdc, To: wmatc, Amount: big.NewInt(1), Slippage: 1,
	})
	if !res.OK() {
		t.Fatalf("unexpected failure: %v", res.Err)
	}
	q := res.Quote
	if q.To != "0x1111111254fb6c44bac0bed2854e76f90643097d" || q.Spender != q.To {
		t.Fatalf("unexpected router %s / %s", q.To, q.Spender)
	}
	if q.Data != "0xabcd" || q.GasEstimate != 210000 || q.Value.Sign() != 0 {
		t.Fatalf("unexpected tx fields %+v", q)
	}
}

func TestGetQuoteSoftFailures(t *testing.T) {
	cases := map[string]struct {
		body   string
		reason upstream.Reason
	}{
		"error payload": {`{"statusCode":400,"description":"insufficient liquidity"}`, upstream.ReasonBadStatus},
		"missing":       {`{"fromTokenAmount":"1"}`, upstream.ReasonMissingField},
		"zero":          {`{"toTokenAmount":"0"}`, upstream.ReasonInvalidValue},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}, Config{})
			res := client.GetQuote(context.Background(), upstream.QuoteRequest{
				From: usdc, To: wmatc, Amount: big.NewInt(1), Slippage: 1,
			})
			if res.OK() || res.Err.Reason != tc.reason {
				t.Fatalf("expected %s, got %+v", tc.reason, res.Err)
			}
		})
	}
}

func TestGetPriceQuotesOneUnitIntoUSDC(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("toTokenAddress") != usdc {
			t.Errorf("price must be quoted into usdc, got %s", q.Get("toTokenAddress"))
		}
		if q.Get("amount") != "1000000000000000000" {
			t.Errorf("expected one full token, got %s", q.Get("amount"))
		}
		_, _ = w.Write([]byte(`{"toTokenAmount":"845000"}`))
	}, Config{})

	res := client.GetPrice(context.Background(), wmatc)
	if !res.OK() {
		t.Fatalf("unexpected failure: %v", res.Err)
	}
	if res.Point.USD != 0.845 || res.Point.Token != wmatc {
		t.Fatalf("unexpected price point %+v", res.Point)
	}
}
