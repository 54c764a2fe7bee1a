package token

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "NOLA-Exchange/internal/errors"
)

const (
	maticAddr = "0x0000000000000000000000000000000000001010"
	usdcAddr  = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
)

func TestRegistryLoadInjectsNativeAndDedupes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tokens": []map[string]any{
				{"address": usdcAddr, "symbol": "USDC", "name": "USD Coin", "decimals": 6},
				{"address": "0x2791bca1f2de4661ed88a30c99a7a9449aa84174", "symbol": "USDC", "name": "dup", "decimals": 6},
				{"address": "0x7ceb23fd6bc0add59e62ac25578270cff1b9f619", "symbol": "WETH", "name": "Wrapped Ether", "logo": "weth.png"},
				{"address": "not-an-address", "symbol": "BAD"},
			},
		})
	}))
	defer srv.Close()

	reg, err := NewRegistry(Source{URL: srv.URL}, Token{Address: maticAddr, Symbol: "MATIC", Name: "Polygon"})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if reg.Len() != 3 {
		t.Fatalf("expected 3 tokens (usdc, weth, matic), got %d", reg.Len())
	}
	usdc, ok := reg.Lookup("0x2791BCA1F2DE4661ED88A30C99A7A9449AA84174")
	if !ok || usdc.Decimals != 6 || usdc.Name != "USD Coin" {
		t.Fatalf("unexpected usdc lookup: %+v ok=%v", usdc, ok)
	}
	weth, _ := reg.Lookup("0x7ceb23fd6bc0add59e62ac25578270cff1b9f619")
	if weth.Decimals != DefaultDecimals || weth.LogoURI != "weth.png" {
		t.Fatalf("unexpected weth defaults: %+v", weth)
	}
	if !reg.IsNative("0x0000000000000000000000000000000000001010") {
		t.Fatalf("native token not recognised")
	}
	if got := reg.DecimalsOf("0x000000000000000000000000000000000000dead"); got != DefaultDecimals {
		t.Fatalf("unknown token decimals = %d", got)
	}
}

func TestRegistrySearch(t *testing.T) {
	reg, err := NewStaticRegistry(
		Token{Address: maticAddr, Symbol: "MATIC", Name: "Polygon"},
		[]Token{
			{Address: usdcAddr, Symbol: "USDC", Name: "USD Coin", Decimals: 6},
			{Address: "0xc2132d05d31c914a87c6611c10748aeb04b58e8f", Symbol: "USDT", Name: "Tether USD", Decimals: 6},
		},
	)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	if got := reg.Search("usd"); len(got) != 2 {
		t.Fatalf("expected 2 usd matches, got %d", len(got))
	}
	if got := reg.Search("polygon"); len(got) != 1 || got[0].Symbol != "MATIC" {
		t.Fatalf("unexpected polygon search: %+v", got)
	}
	if got := reg.Search("  "); len(got) != 3 {
		t.Fatalf("empty query should return every token, got %d", len(got))
	}
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress(" " + usdcAddr + " ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "0x2791bca1f2de4661ed88a30c99a7a9449aa84174" {
		t.Fatalf("unexpected normalized address %s", got)
	}
	for _, bad := range []string{"", "0x123", "2791Bca1f2de4661ED88A30C99A7a9449Aa84174zz"} {
		_, err := NormalizeAddress(bad)
		if xerrors.CodeOf(err) != xerrors.CodeInvalidInput {
			t.Fatalf("expected invalid input for %q, got %v", bad, err)
		}
	}
}

func TestUnitsConversion(t *testing.T) {
	raw, err := ParseUnits("100", 6)
	if err != nil {
		t.Fatalf("parse units: %v", err)
	}
	if raw.String() != "100000000" {
		t.Fatalf("unexpected raw amount %s", raw)
	}
	fifty, _ := new(big.Int).SetString("50000000000000000000", 10)
	if got := FormatUnits(fifty, 18); got != "50" {
		t.Fatalf("unexpected formatted amount %s", got)
	}
	if _, err := ParseAmount("0"); xerrors.CodeOf(err) != xerrors.CodeInvalidInput {
		t.Fatalf("zero amount must be rejected, got %v", err)
	}
	if _, err := ParseAmount("1.5"); err == nil {
		t.Fatalf("fractional raw amount must be rejected")
	}
	if got := ScaleToFloat(big.NewInt(1_234_500), 6); got != 1.2345 {
		t.Fatalf("unexpected scaled value %v", got)
	}
}
