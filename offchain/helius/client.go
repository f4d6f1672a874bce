// Package helius estimates compute-unit prices through Helius'
// getPriorityFeeEstimate RPC extension.
package helius

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/Abdullah1738/itheum-agent/internal/httpx"
	"github.com/Abdullah1738/itheum-agent/offchain/solana"
	"github.com/Abdullah1738/itheum-agent/protocol"
)

var (
	ErrMissingAPIKey = errors.New("missing helius api key")
	ErrRPCError      = errors.New("helius rpc error")
	ErrUnknownLevel  = errors.New("unknown priority level")
)

type Cluster string

const (
	ClusterMainnet Cluster = "mainnet"
	ClusterDevnet  Cluster = "devnet"
)

func RPCURL(cluster Cluster, apiKey string) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "", ErrMissingAPIKey
	}
	var host string
	switch cluster {
	case ClusterMainnet, "mainnet-beta":
		host = "https://mainnet.helius-rpc.com"
	case ClusterDevnet:
		host = "https://devnet.helius-rpc.com"
	default:
		return "", fmt.Errorf("unsupported helius cluster: %q", cluster)
	}
	u, err := url.Parse(host)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("api-key", apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ClientFromEnv prefers HELIUS_RPC_URL, then HELIUS_API_KEY with
// HELIUS_CLUSTER (default mainnet).
func ClientFromEnv() (*Client, error) {
	if raw := strings.TrimSpace(os.Getenv("HELIUS_RPC_URL")); raw != "" {
		return NewClient(raw, nil), nil
	}
	cluster := Cluster(strings.TrimSpace(os.Getenv("HELIUS_CLUSTER")))
	if cluster == "" {
		cluster = ClusterMainnet
	}
	rpcURL, err := RPCURL(cluster, os.Getenv("HELIUS_API_KEY"))
	if err != nil {
		return nil, err
	}
	return NewClient(rpcURL, nil), nil
}

type PriorityLevel string

const (
	PriorityMin       PriorityLevel = "Min"
	PriorityLow       PriorityLevel = "Low"
	PriorityMedium    PriorityLevel = "Medium"
	PriorityHigh      PriorityLevel = "High"
	PriorityVeryHigh  PriorityLevel = "VeryHigh"
	PriorityUnsafeMax PriorityLevel = "UnsafeMax"
)

var levels = []PriorityLevel{PriorityMin, PriorityLow, PriorityMedium, PriorityHigh, PriorityVeryHigh, PriorityUnsafeMax}

// ParsePriorityLevel matches s case-insensitively against the known levels.
func ParsePriorityLevel(s string) (PriorityLevel, error) {
	s = strings.TrimSpace(s)
	for _, l := range levels {
		if strings.EqualFold(s, string(l)) {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

type PriorityFeeOptions struct {
	PriorityLevel               PriorityLevel `json:"priorityLevel,omitempty"`
	IncludeAllPriorityFeeLevels bool          `json:"includeAllPriorityFeeLevels,omitempty"`
	LookbackSlots               int           `json:"lookbackSlots,omitempty"`
	Recommended                 bool          `json:"recommended,omitempty"`
}

type PriorityFeeLevels struct {
	Min       float64 `json:"min,omitempty"`
	Low       float64 `json:"low,omitempty"`
	Medium    float64 `json:"medium,omitempty"`
	High      float64 `json:"high,omitempty"`
	VeryHigh  float64 `json:"veryHigh,omitempty"`
	UnsafeMax float64 `json:"unsafeMax,omitempty"`
}

type PriorityFeeEstimate struct {
	// MicroLamports is the compute-unit price for SetComputeUnitPrice.
	MicroLamports uint64
	Levels        *PriorityFeeLevels
}

type Client struct {
	rpcURL string
	http   *httpx.Client
}

func NewClient(rpcURL string, httpClient *http.Client) *Client {
	return &Client{rpcURL: strings.TrimSpace(rpcURL), http: httpx.New(httpClient)}
}

// EstimateByAccounts returns the estimated compute-unit price for a
// transaction writing the given accounts.
func (c *Client) EstimateByAccounts(ctx context.Context, accounts []solana.Pubkey, opts PriorityFeeOptions) (PriorityFeeEstimate, error) {
	if len(accounts) == 0 {
		return PriorityFeeEstimate{}, fmt.Errorf("%w: account keys required", protocol.ErrValidation)
	}
	keys := make([]string, len(accounts))
	for i, a := range accounts {
		keys[i] = a.Base58()
	}
	params := map[string]any{
		"accountKeys": keys,
		"options":     opts,
	}
	var out struct {
		PriorityFeeEstimate float64            `json:"priorityFeeEstimate"`
		PriorityFeeLevels   *PriorityFeeLevels `json:"priorityFeeLevels,omitempty"`
	}
	if err := c.rpcCall(ctx, "getPriorityFeeEstimate", []any{params}, &out); err != nil {
		return PriorityFeeEstimate{}, err
	}
	return PriorityFeeEstimate{
		MicroLamports: ceilUint64(out.PriorityFeeEstimate),
		Levels:        out.PriorityFeeLevels,
	}, nil
}

// PriorityFee is EstimateByAccounts at level, reduced to the price.
func (c *Client) PriorityFee(ctx context.Context, level PriorityLevel, accounts []solana.Pubkey) (uint64, error) {
	est, err := c.EstimateByAccounts(ctx, accounts, PriorityFeeOptions{PriorityLevel: level})
	if err != nil {
		return 0, err
	}
	return est.MicroLamports, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) rpcCall(ctx context.Context, method string, params any, out any) error {
	if c == nil || c.rpcURL == "" {
		return errors.New("empty helius rpc url")
	}
	var resp rpcResponse
	req := rpcRequest{JSONRPC: "2.0", ID: "1", Method: method, Params: params}
	if err := c.http.PostJSON(ctx, c.rpcURL, nil, req, &resp); err != nil {
		return fmt.Errorf("helius %s: %w", method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%w: %s: code=%d message=%s", ErrRPCError, method, resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Result) == 0 {
		return fmt.Errorf("%w: helius %s: missing result", protocol.ErrMalformedResponse, method)
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("%w: helius %s: %w", protocol.ErrMalformedResponse, method, err)
	}
	return nil
}

func ceilUint64(v float64) uint64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= float64(math.MaxUint64) {
		return math.MaxUint64
	}
	return uint64(math.Ceil(v))
}
