package web3

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadChainDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.yaml")
	content := `chains:
  polygon:
    type: evm
    rpc_url: https://polygon-rpc.com
    chain_id: 137
    description: Polygon PoS mainnet
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	defs, err := LoadChainDefinitions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	polygon, ok := defs.Chains["polygon"]
	if !ok || polygon.ChainID != 137 || polygon.RPCURL != "https://polygon-rpc.com" {
		t.Fatalf("unexpected definitions %+v", defs)
	}

	missing, err := LoadChainDefinitions(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil || len(missing.Chains) != 0 {
		t.Fatalf("absent file should yield no chains, got %+v %v", missing, err)
	}
}

func TestLoadChainDefinitionsRequiresRPC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.yaml")
	if err := os.WriteFile(path, []byte("chains:\n  broken:\n    type: evm\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadChainDefinitions(path); err == nil {
		t.Fatalf("expected missing rpc_url error")
	}
}
