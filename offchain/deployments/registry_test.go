package deployments

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Abdullah1738/itheum-agent/offchain/solana"
)

func TestLoadAndFindByName_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deployments.json")
	if err := os.WriteFile(path, []byte(`{
  "schema_version": 1,
  "deployments": [
    {
      "name": "devnet-1",
      "cluster": "devnet",
      "rpc_url": "http://127.0.0.1:8899",
      "api_base": "http://127.0.0.1:4000",
      "token_mint": "iTHSaXjdqFtcnLK4EFEs7mqYQbJb6B7GostqWbBQwaV",
      "token_decimals": 9,
      "collection_address": "ETRT3kRcn5k4yigqj7Q2j9Zvi7vkKhwD4tzw8H3GPJuc"
    }
  ]
}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d, err := r.FindByName("devnet-1")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	if d.Cluster != "devnet" || d.TokenDecimals != 9 || d.TokenMint.Base58() != "iTHSaXjdqFtcnLK4EFEs7mqYQbJb6B7GostqWbBQwaV" {
		t.Fatalf("unexpected deployment: %+v", d)
	}
	if d.NativeMint != solana.NativeMint || d.JupiterQuoteAPI != DefaultJupiterQuoteAPI {
		t.Fatalf("defaults not applied: %+v", d)
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deployments.yaml")
	if err := os.WriteFile(path, []byte(`
schema_version: 1
deployments:
  - name: mainnet
    rpc_url: https://rpc.example
    api_base: https://api.example
    token_mint: So11111111111111111111111111111111111111112
    collection_address: ETRT3kRcn5k4yigqj7Q2j9Zvi7vkKhwD4tzw8H3GPJuc
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	merged := Builtin().Merge(r)
	d, err := merged.FindByName("mainnet")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	if d.RPCURL != "https://rpc.example" || d.TokenMint != solana.NativeMint {
		t.Fatalf("file deployment must replace builtin: %+v", d)
	}
	if _, err := merged.FindByName("devnet"); err != nil {
		t.Fatalf("builtin devnet lost in merge: %v", err)
	}
}

func TestFindByName_NotFound(t *testing.T) {
	_, err := Builtin().FindByName("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestValidate_Builtin(t *testing.T) {
	d, err := Builtin().FindByName("mainnet")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	// The API base is operator supplied.
	if err := d.Validate(); err == nil {
		t.Fatalf("expected api_base error")
	}
	d.APIBase = "https://api.example"
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
