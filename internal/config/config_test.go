package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nola.json")
	if err := os.WriteFile(path, []byte(`{"chain":{"chain_config":"chain.yaml"}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected server address %q", cfg.Server.Address)
	}
	if got := cfg.Providers.ProviderTimeout(); got != 3*time.Second {
		t.Fatalf("unexpected provider timeout %s", got)
	}
	if got := cfg.Cache.QuoteTTL(); got != 10*time.Second {
		t.Fatalf("unexpected quote ttl %s", got)
	}
	if got := cfg.Cache.PriceTTL(); got != 30*time.Second {
		t.Fatalf("unexpected price ttl %s", got)
	}
	if len(cfg.Providers.PriceOrder) != 3 || cfg.Providers.PriceOrder[0] != "oneinch" {
		t.Fatalf("unexpected price order %v", cfg.Providers.PriceOrder)
	}
	if len(cfg.Providers.QuoteOrder) != 2 || cfg.Providers.QuoteOrder[1] != "zerox" {
		t.Fatalf("unexpected quote order %v", cfg.Providers.QuoteOrder)
	}
	if cfg.Chain.ChainConfig != filepath.Join(dir, "chain.yaml") {
		t.Fatalf("chain config not resolved against config dir: %s", cfg.Chain.ChainConfig)
	}
	if cfg.MarketData.Dir != filepath.Join(dir, "cached") {
		t.Fatalf("unexpected market data dir %s", cfg.MarketData.Dir)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nola.json")
	content := `{"providers":{"zerox":{"api_key_env":"NOLA_TEST_ZEROX_KEY"}},"chain":{"signer_key_env":"NOLA_TEST_SIGNER"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	env := "NOLA_TEST_ZEROX_KEY=zx-123\nNOLA_TEST_SIGNER=abcd\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("NOLA_TEST_ZEROX_KEY")
		os.Unsetenv("NOLA_TEST_SIGNER")
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Providers.ZeroX.APIKey != "zx-123" {
		t.Fatalf("api key not loaded from env: %q", cfg.Providers.ZeroX.APIKey)
	}
	if cfg.Chain.SignerKey != "abcd" {
		t.Fatalf("signer key not loaded from env: %q", cfg.Chain.SignerKey)
	}
}

func TestLoadRejectsEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
