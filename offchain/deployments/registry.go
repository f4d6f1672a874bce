// Package deployments names the per-network identifiers the settlement flow
// depends on: token mint, collection address, native mint, endpoints.
package deployments

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Abdullah1738/itheum-agent/offchain/solana"
)

var ErrNotFound = errors.New("deployment not found")

const (
	DefaultJupiterQuoteAPI = "https://quote-api.jup.ag/v6"
	DefaultJupiterPriceAPI = "https://api.jup.ag/price/v2"
	DefaultIPFSGateway     = "https://gateway.lighthouse.storage/ipfs/"
	DefaultExplorerTxURL   = "https://solscan.io/tx/"
)

type Registry struct {
	SchemaVersion int          `json:"schema_version" yaml:"schema_version"`
	Deployments   []Deployment `json:"deployments" yaml:"deployments"`
}

type Deployment struct {
	Name    string `json:"name" yaml:"name"`
	Cluster string `json:"cluster,omitempty" yaml:"cluster,omitempty"`
	RPCURL  string `json:"rpc_url,omitempty" yaml:"rpc_url,omitempty"`

	// APIBase serves payment-check, storage, IPNS and mint endpoints.
	APIBase string `json:"api_base,omitempty" yaml:"api_base,omitempty"`
	// MarshalAPIBase serves data stream encryption.
	MarshalAPIBase string `json:"marshal_api_base,omitempty" yaml:"marshal_api_base,omitempty"`

	TokenMint         solana.Pubkey `json:"token_mint" yaml:"token_mint"`
	TokenDecimals     uint8         `json:"token_decimals" yaml:"token_decimals"`
	CollectionAddress solana.Pubkey `json:"collection_address" yaml:"collection_address"`
	NativeMint        solana.Pubkey `json:"native_mint" yaml:"native_mint"`
	NativeDecimals    uint8         `json:"native_decimals" yaml:"native_decimals"`

	JupiterQuoteAPI string `json:"jupiter_quote_api,omitempty" yaml:"jupiter_quote_api,omitempty"`
	JupiterPriceAPI string `json:"jupiter_price_api,omitempty" yaml:"jupiter_price_api,omitempty"`
	IPFSGateway     string `json:"ipfs_gateway,omitempty" yaml:"ipfs_gateway,omitempty"`
	ExplorerTxURL   string `json:"explorer_tx_url,omitempty" yaml:"explorer_tx_url,omitempty"`
}

// Builtin returns the deployments compiled into the binary.
func Builtin() Registry {
	itheumMint := solana.MustParsePubkey("iTHSaXjdqFtcnLK4EFEs7mqYQbJb6B7GostqWbBQwaV")
	collection := solana.MustParsePubkey("ETRT3kRcn5k4yigqj7Q2j9Zvi7vkKhwD4tzw8H3GPJuc")
	return Registry{
		SchemaVersion: 1,
		Deployments: []Deployment{
			{
				Name:              "mainnet",
				Cluster:           "mainnet-beta",
				RPCURL:            "https://api.mainnet-beta.solana.com",
				TokenMint:         itheumMint,
				TokenDecimals:     9,
				CollectionAddress: collection,
				NativeMint:        solana.NativeMint,
				NativeDecimals:    9,
			},
			{
				Name:              "devnet",
				Cluster:           "devnet",
				RPCURL:            "https://api.devnet.solana.com",
				TokenMint:         itheumMint,
				TokenDecimals:     9,
				CollectionAddress: collection,
				NativeMint:        solana.NativeMint,
				NativeDecimals:    9,
			},
		},
	}
}

// Load reads a registry file; .json files are decoded as JSON, anything
// else as YAML.
func Load(path string) (Registry, error) {
	var out Registry
	path = strings.TrimSpace(path)
	if path == "" {
		return Registry{}, errors.New("path required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Registry{}, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(raw, &out)
	} else {
		err = yaml.Unmarshal(raw, &out)
	}
	if err != nil {
		return Registry{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

func (r Registry) FindByName(name string) (Deployment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Deployment{}, errors.New("name required")
	}
	for _, d := range r.Deployments {
		if d.Name == name {
			return d.WithDefaults(), nil
		}
	}
	return Deployment{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Merge overlays other on r; deployments with the same name are replaced.
func (r Registry) Merge(other Registry) Registry {
	byName := make(map[string]Deployment, len(r.Deployments)+len(other.Deployments))
	for _, d := range r.Deployments {
		byName[d.Name] = d
	}
	for _, d := range other.Deployments {
		byName[d.Name] = d
	}
	out := Registry{SchemaVersion: r.SchemaVersion, Deployments: make([]Deployment, 0, len(byName))}
	if other.SchemaVersion > out.SchemaVersion {
		out.SchemaVersion = other.SchemaVersion
	}
	for _, d := range byName {
		out.Deployments = append(out.Deployments, d)
	}
	sort.Slice(out.Deployments, func(i, j int) bool { return out.Deployments[i].Name < out.Deployments[j].Name })
	return out
}

func (d Deployment) WithDefaults() Deployment {
	if d.NativeMint.IsZero() {
		d.NativeMint = solana.NativeMint
	}
	if d.NativeDecimals == 0 {
		d.NativeDecimals = 9
	}
	if d.JupiterQuoteAPI == "" {
		d.JupiterQuoteAPI = DefaultJupiterQuoteAPI
	}
	if d.JupiterPriceAPI == "" {
		d.JupiterPriceAPI = DefaultJupiterPriceAPI
	}
	if d.IPFSGateway == "" {
		d.IPFSGateway = DefaultIPFSGateway
	}
	if d.ExplorerTxURL == "" {
		d.ExplorerTxURL = DefaultExplorerTxURL
	}
	return d
}

func (d Deployment) Validate() error {
	var errs []error
	if d.TokenMint.IsZero() {
		errs = append(errs, errors.New("token_mint required"))
	}
	if d.CollectionAddress.IsZero() {
		errs = append(errs, errors.New("collection_address required"))
	}
	if strings.TrimSpace(d.RPCURL) == "" {
		errs = append(errs, errors.New("rpc_url required"))
	}
	if strings.TrimSpace(d.APIBase) == "" {
		errs = append(errs, errors.New("api_base required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("deployment %q: %w", d.Name, err)
	}
	return nil
}
