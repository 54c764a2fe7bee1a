package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"NOLA-Exchange/internal/aggregator"
	"NOLA-Exchange/internal/intent"
	"NOLA-Exchange/internal/marketdata"
	"NOLA-Exchange/internal/swap"
	"NOLA-Exchange/internal/token"
	"NOLA-Exchange/internal/upstream"
	"NOLA-Exchange/internal/web3"
)

const (
	usdc  = "0x2791bca1f2de4661ed88a30c99a7a9449aa84174"
	weth  = "0x7ceb23fd6bc0add59e62ac25578270cff1b9f619"
	matic = "0x0000000000000000000000000000000000001010"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type stubPrices struct {
	point upstream.PricePoint
	ok    bool
}

func (s stubPrices) GetTokenPriceUSD(_ context.Context, addr string) (upstream.PricePoint, bool, error) {
	if _, err := token.NormalizeAddress(addr); err != nil {
		return upstream.PricePoint{}, false, err
	}
	return s.point, s.ok, nil
}

type stubQuotes struct {
	err error
}

func (s stubQuotes) GetQuote(_ context.Context, req upstream.QuoteRequest) (upstream.Quote, error) {
	if s.err != nil {
		return upstream.Quote{}, s.err
	}
	amount, _ := new(big.Int).SetString("1500000000000000000", 10)
	return upstream.Quote{
		Source:      "zerox",
		FromToken:   req.From,
		ToToken:     req.To,
		FromAmount:  req.Amount,
		ToAmount:    amount,
		To:          "0xdef1c0ded9bec7f1a1670819833240f027b25eff",
		Data:        "0xd9627aa4",
		Spender:     "0xdef1c0ded9bec7f1a1670819833240f027b25eff",
		GasEstimate: 210_000,
		CreatedAt:   now,
	}, nil
}

type stubChain struct{ err error }

func (s stubChain) FetchChainSnapshot(context.Context) (web3.ChainSnapshot, error) {
	if s.err != nil {
		return web3.ChainSnapshot{}, s.err
	}
	return web3.ChainSnapshot{Name: "polygon", ChainID: "0x89", BlockNumber: "0x10"}, nil
}

func (stubChain) Close() {}

func newTestServer(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	if deps.Tokens == nil {
		registry, err := token.NewStaticRegistry(
			token.Token{Address: matic, Symbol: "MATIC", Name: "Polygon", Decimals: 18},
			[]token.Token{
				{Address: usdc, Symbol: "USDC", Name: "USD Coin", Decimals: 6},
				{Address: weth, Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18},
			},
		)
		if err != nil {
			t.Fatalf("registry: %v", err)
		}
		deps.Tokens = registry
	}
	return NewServer(":0", deps).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var decoded map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode %s: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func TestTokensSearch(t *testing.T) {
	h := newTestServer(t, Deps{})
	rec, body := do(t, h, http.MethodGet, "/api/v1/tokens?q=usd", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	tokens := body["tokens"].([]any)
	if len(tokens) != 1 || tokens[0].(map[string]any)["symbol"] != "USDC" {
		t.Fatalf("unexpected tokens %v", tokens)
	}
}

func TestPriceEndpoint(t *testing.T) {
	point := upstream.PricePoint{Token: usdc, USD: 0.9998, Timestamp: now}
	h := newTestServer(t, Deps{Prices: stubPrices{point: point, ok: true}})
	rec, body := do(t, h, http.MethodGet, "/api/v1/price?token="+usdc, "")
	if rec.Code != http.StatusOK || body["price"].(float64) != 0.9998 || int64(body["timestamp"].(float64)) != now.UnixMilli() {
		t.Fatalf("unexpected response %d %v", rec.Code, body)
	}

	h = newTestServer(t, Deps{Prices: stubPrices{}})
	rec, body = do(t, h, http.MethodGet, "/api/v1/price?token="+usdc, "")
	if rec.Code != http.StatusOK || body["price"] != nil {
		t.Fatalf("missing price must be null with 200, got %d %v", rec.Code, body)
	}

	rec, _ = do(t, h, http.MethodGet, "/api/v1/price?token=not-an-address", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid address, got %d", rec.Code)
	}
}

func TestQuoteEndpoint(t *testing.T) {
	h := newTestServer(t, Deps{Quotes: stubQuotes{}})
	rec, body := do(t, h, http.MethodGet, "/api/v1/quote?from="+usdc+"&to="+weth+"&amount=1000000", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %v", rec.Code, body)
	}
	if body["toAmount"] != "1500000000000000000" || body["toAmountHuman"] != "1.5" {
		t.Fatalf("unexpected amounts %v", body)
	}
	if body["minOutputHuman"] != "1.485" || body["slippage"].(float64) != aggregator.DefaultSlippage {
		t.Fatalf("unexpected min output %v", body)
	}
	if body["source"] != "zerox" {
		t.Fatalf("unexpected source %v", body["source"])
	}
}

func TestQuoteEndpointErrors(t *testing.T) {
	h := newTestServer(t, Deps{Quotes: stubQuotes{err: aggregator.ErrQuoteUnavailable}})
	rec, body := do(t, h, http.MethodGet, "/api/v1/quote?from="+usdc+"&to="+weth+"&amount=1000000", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	errBody := body["error"].(map[string]any)
	if errBody["message"] != "no route" || errBody["code"] != "QUOTE_UNAVAILABLE" {
		t.Fatalf("unexpected error body %v", errBody)
	}

	for _, target := range []string{
		"/api/v1/quote?from=" + usdc + "&to=" + weth + "&amount=abc",
		"/api/v1/quote?from=" + usdc + "&to=" + usdc + "&amount=1",
		"/api/v1/quote?from=" + usdc + "&to=" + weth + "&amount=1&slippage=99",
		"/api/v1/quote?from=" + usdc + "&to=" + weth + "&amount=1&slippage=NaN",
		"/api/v1/quote?from=" + usdc + "&to=" + weth + "&amount=1&slippage=Inf",
	} {
		rec, _ := do(t, h, http.MethodGet, target, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

type submitQuoter struct{}

func (submitQuoter) ExecutableQuote(ctx context.Context, req upstream.QuoteRequest) (upstream.Quote, error) {
	return stubQuotes{}.GetQuote(ctx, req)
}

func TestSwapLifecycleEndpoints(t *testing.T) {
	store := intent.NewMemoryStore()
	svc := intent.NewService(store, intent.NewMemoryQueue(8), submitQuoter{}, intent.WithServiceClock(func() time.Time { return now }))
	h := newTestServer(t, Deps{Intents: svc})

	rec, body := do(t, h, http.MethodPost, "/api/v1/swaps", `{"from":"`+usdc+`","to":"`+weth+`","amount":"1000000","slippage":0.5}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %v", rec.Code, body)
	}
	id := body["id"].(string)
	if body["state"] != string(swap.StateIdle) || body["slippage"].(float64) != 0.5 {
		t.Fatalf("unexpected intent %v", body)
	}

	rec, body = do(t, h, http.MethodGet, "/api/v1/swaps/"+id, "")
	if rec.Code != http.StatusOK || body["id"] != id {
		t.Fatalf("unexpected detail %d %v", rec.Code, body)
	}

	rec, body = do(t, h, http.MethodGet, "/api/v1/swaps?state=Idle&limit=5", "")
	if rec.Code != http.StatusOK || len(body["swaps"].([]any)) != 1 {
		t.Fatalf("unexpected list %d %v", rec.Code, body)
	}

	rec, _ = do(t, h, http.MethodGet, "/api/v1/swaps/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec, _ = do(t, h, http.MethodPost, "/api/v1/swaps", `{"from":"`+usdc+`","to":"`+weth+`","amount":"0"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero amount, got %d", rec.Code)
	}

	rec, _ = do(t, h, http.MethodPost, "/api/v1/swaps", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestSwapEndpointsWithoutSigner(t *testing.T) {
	h := newTestServer(t, Deps{})
	rec, _ := do(t, h, http.MethodPost, "/api/v1/swaps", `{}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMarketEndpoint(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "majors.json"), []byte(`{"ts":1714564800000,"payload":[{"id":"bitcoin"}]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	h := newTestServer(t, Deps{Market: marketdata.NewReader(dir)})

	rec, body := do(t, h, http.MethodGet, "/api/v1/market/majors", "")
	if rec.Code != http.StatusOK || body["ok"] != true || body["source"] != "cache" {
		t.Fatalf("unexpected response %d %v", rec.Code, body)
	}
	if data := body["data"].([]any); data[0].(map[string]any)["id"] != "bitcoin" {
		t.Fatalf("unexpected data %v", body["data"])
	}

	rec, body = do(t, h, http.MethodGet, "/api/v1/market/global", "")
	if rec.Code != http.StatusServiceUnavailable || body["msg"] != "no cache yet" {
		t.Fatalf("expected no cache yet, got %d %v", rec.Code, body)
	}

	rec, _ = do(t, h, http.MethodGet, "/api/v1/market/unknown", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown snapshot, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, Deps{Chain: stubChain{}})
	rec, body := do(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health %d %v", rec.Code, body)
	}
	if body["chain"].(map[string]any)["chain_id"] != "0x89" {
		t.Fatalf("unexpected chain %v", body["chain"])
	}

	rec, _ = do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `nola_http_requests_total{code="200",handler="healthz",method="GET"}`) {
		t.Fatalf("metrics missing healthz series:\n%s", rec.Body.String())
	}

	svc := intent.NewService(intent.NewMemoryStore(), intent.NewMemoryQueue(8), submitQuoter{}, intent.WithServiceClock(func() time.Time { return now }))
	if _, err := svc.Submit(context.Background(), intent.SubmitRequest{From: usdc, To: weth, Amount: "1000000"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h = newTestServer(t, Deps{Chain: stubChain{}, Intents: svc})
	rec, body = do(t, h, http.MethodGet, "/healthz", "")
	intents, _ := body["intents"].(map[string]any)
	if rec.Code != http.StatusOK || intents["total"].(float64) != 1 || intents["by_state"].(map[string]any)["Idle"].(float64) != 1 {
		t.Fatalf("unexpected intent stats %d %v", rec.Code, body)
	}

	h = newTestServer(t, Deps{Chain: stubChain{err: context.DeadlineExceeded}})
	rec, body = do(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Fatalf("unexpected degraded health %d %v", rec.Code, body)
	}
}
