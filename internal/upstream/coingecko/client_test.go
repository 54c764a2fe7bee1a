package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"NOLA-Exchange/internal/upstream"
)

const weth = "0x7ceb23fd6bc0add59e62ac25578270cff1b9f619"

func TestGetPrice(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   float64
		reason upstream.Reason
	}{
		{name: "ok", status: 200, body: `{"` + weth + `":{"usd":2412.55}}`, want: 2412.55},
		{name: "missing token", status: 200, body: `{}`, reason: upstream.ReasonMissingField},
		{name: "zero", status: 200, body: `{"` + weth + `":{"usd":0}}`, reason: upstream.ReasonInvalidValue},
		{name: "string value", status: 200, body: `{"` + weth + `":{"usd":"12"}}`, reason: upstream.ReasonInvalidValue},
		{name: "throttled", status: 429, body: `{"status":{"error_code":429}}`, reason: upstream.ReasonRateLimited},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/simple/token_price/polygon-pos" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if r.URL.Query().Get("contract_addresses") != weth {
					t.Errorf("address must be lower-cased, got %s", r.URL.Query().Get("contract_addresses"))
				}
				if r.Header.Get(DemoKeyHeader) != "cg-key" {
					t.Errorf("missing demo key header")
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			fetcher := upstream.NewHTTPFetcher(Name, upstream.NewGuard(time.Second), upstream.WithHeader(KeyHeader(false), "cg-key"))
			client := NewClient(srv.URL, "polygon-pos", fetcher)
			res := client.GetPrice(context.Background(), "0x7CEB23FD6BC0ADD59E62AC25578270CFF1B9F619")

			if tc.reason != "" {
				if res.OK() || res.Err.Reason != tc.reason {
					t.Fatalf("expected %s, got %+v", tc.reason, res.Err)
				}
				return
			}
			if !res.OK() || res.Point.USD != tc.want || res.Point.Token != weth {
				t.Fatalf("unexpected result %+v", res)
			}
		})
	}
}
