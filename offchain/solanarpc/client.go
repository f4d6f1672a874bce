package solanarpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Abdullah1738/itheum-agent/offchain/helius"
	"github.com/Abdullah1738/itheum-agent/offchain/solana"
	"github.com/Abdullah1738/itheum-agent/protocol"
)

var (
	ErrMissingRPCURL = errors.New("missing rpc url")
	ErrRPCError      = errors.New("solana rpc error")
)

type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrRPCError.Error(), e.Code, e.Message)
}

// Unwrap reports both the rpc category and the generic network category.
func (e *RPCError) Unwrap() []error { return []error{ErrRPCError, protocol.ErrNetwork} }

// IsAccountNotFound reports whether err is the node telling us the queried
// account has never been created.
func IsAccountNotFound(err error) bool {
	var re *RPCError
	if !errors.As(err, &re) {
		return false
	}
	msg := strings.ToLower(re.Message)
	return strings.Contains(msg, "could not find account") || strings.Contains(msg, "account does not exist")
}

type Client struct {
	rpcURL string
	http   *http.Client

	maxAttempts    int
	backoffInitial time.Duration
	backoffMax     time.Duration
}

func New(rpcURL string, httpClient *http.Client) *Client {
	rpcURL = strings.TrimSpace(rpcURL)
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		rpcURL:         rpcURL,
		http:           httpClient,
		maxAttempts:    7,
		backoffInitial: 1 * time.Second,
		backoffMax:     10 * time.Second,
	}
}

func (c *Client) URL() string { return c.rpcURL }

func ClientFromEnv() (*Client, error) {
	if raw := strings.TrimSpace(os.Getenv("SOLANA_RPC_URL")); raw != "" {
		return New(raw, nil), nil
	}
	if raw := strings.TrimSpace(os.Getenv("HELIUS_RPC_URL")); raw != "" {
		return New(raw, nil), nil
	}
	apiKey := strings.TrimSpace(os.Getenv("HELIUS_API_KEY"))
	cluster := helius.Cluster(strings.TrimSpace(os.Getenv("HELIUS_CLUSTER")))
	if cluster == "" {
		cluster = helius.ClusterMainnet
	}
	if apiKey == "" {
		return nil, ErrMissingRPCURL
	}
	u, err := helius.RPCURL(cluster, apiKey)
	if err != nil {
		return nil, err
	}
	return New(u, nil), nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func isRateLimitedRPCError(code int, message string) bool {
	if code == 429 || code == -32429 {
		return true
	}
	msg := strings.ToLower(strings.TrimSpace(message))
	return strings.Contains(msg, "rate") && strings.Contains(msg, "limit")
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoffInitial
	b.MaxInterval = c.backoffMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	attempts := c.maxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// rpcCall retries rate limiting and undecodable envelopes; everything else
// is returned on the first attempt.
func (c *Client) rpcCall(ctx context.Context, method string, params any, out any) error {
	if c == nil {
		return errors.New("nil rpc client")
	}
	if strings.TrimSpace(c.rpcURL) == "" {
		return ErrMissingRPCURL
	}

	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      "1",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	var result json.RawMessage
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqBody))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %s: %w", protocol.ErrNetwork, method, err))
		}
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		_ = resp.Body.Close()
		if readErr != nil {
			return backoff.Permanent(fmt.Errorf("%w: %s: %w", protocol.ErrNetwork, method, readErr))
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w: http status=%d", ErrRPCError, protocol.ErrNetwork, resp.StatusCode)
		}

		var rr rpcResponse
		if err := json.Unmarshal(raw, &rr); err != nil {
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return backoff.Permanent(fmt.Errorf("%w: %w: %s http status=%d", ErrRPCError, protocol.ErrNetwork, method, resp.StatusCode))
			}
			return fmt.Errorf("%w: decode rpc response: %w", protocol.ErrMalformedResponse, err)
		}
		if rr.Error != nil {
			rerr := &RPCError{Code: rr.Error.Code, Message: rr.Error.Message}
			if isRateLimitedRPCError(rr.Error.Code, rr.Error.Message) {
				return rerr
			}
			return backoff.Permanent(rerr)
		}
		result = rr.Result
		return nil
	}
	if err := backoff.Retry(op, c.newBackOff(ctx)); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if len(result) == 0 {
		return fmt.Errorf("%w: %s: empty result", protocol.ErrMalformedResponse, method)
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("%w: %s: decode result: %w", protocol.ErrMalformedResponse, method, err)
	}
	return nil
}

func (c *Client) LatestBlockhash(ctx context.Context) ([32]byte, error) {
	var out [32]byte
	var resp struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.rpcCall(ctx, "getLatestBlockhash", []any{map[string]any{"commitment": "confirmed"}}, &resp); err != nil {
		return out, err
	}

	bh, err := solana.ParsePubkey(resp.Value.Blockhash)
	if err != nil {
		return out, fmt.Errorf("%w: invalid blockhash: %w", protocol.ErrMalformedResponse, err)
	}
	copy(out[:], bh[:])
	return out, nil
}

func (c *Client) SendTransaction(ctx context.Context, tx []byte, skipPreflight bool) (string, error) {
	if len(tx) == 0 {
		return "", errors.New("empty tx")
	}
	b64 := base64.StdEncoding.EncodeToString(tx)
	var resp string
	params := []any{
		b64,
		map[string]any{
			"encoding":      "base64",
			"skipPreflight": skipPreflight,
		},
	}
	if err := c.rpcCall(ctx, "sendTransaction", params, &resp); err != nil {
		return "", err
	}
	return resp, nil
}

// SignatureStatus is one entry of getSignatureStatuses. Err is the raw
// on-chain execution error and is nil for a successful transaction.
type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

// Failed reports whether the transaction landed with an execution error.
func (s *SignatureStatus) Failed() bool {
	if s == nil {
		return false
	}
	e := strings.TrimSpace(string(s.Err))
	return e != "" && e != "null"
}

// SignatureStatus returns nil without error when the node does not know the
// signature yet.
func (c *Client) SignatureStatus(ctx context.Context, signature string) (*SignatureStatus, error) {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return nil, errors.New("signature required")
	}
	var resp struct {
		Value []*SignatureStatus `json:"value"`
	}
	params := []any{
		[]string{signature},
		map[string]any{"searchTransactionHistory": false},
	}
	if err := c.rpcCall(ctx, "getSignatureStatuses", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Value) != 1 {
		return nil, fmt.Errorf("%w: getSignatureStatuses returned %d entries", protocol.ErrMalformedResponse, len(resp.Value))
	}
	return resp.Value[0], nil
}

type TokenAmount struct {
	Amount         string `json:"amount"`
	Decimals       uint8  `json:"decimals"`
	UIAmountString string `json:"uiAmountString"`
}

func (c *Client) TokenAccountBalance(ctx context.Context, account solana.Pubkey) (TokenAmount, error) {
	var resp struct {
		Value TokenAmount `json:"value"`
	}
	params := []any{
		account.Base58(),
		map[string]any{"commitment": "confirmed"},
	}
	if err := c.rpcCall(ctx, "getTokenAccountBalance", params, &resp); err != nil {
		return TokenAmount{}, err
	}
	return resp.Value, nil
}

// MultipleAccountsBase64 returns account data in key order. Missing accounts
// yield a nil entry.
func (c *Client) MultipleAccountsBase64(ctx context.Context, keys []solana.Pubkey) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	addrs := make([]string, len(keys))
	for i, k := range keys {
		addrs[i] = k.Base58()
	}

	type accountItem struct {
		Data []string `json:"data"`
	}
	var resp struct {
		Value []*accountItem `json:"value"`
	}
	params := []any{
		addrs,
		map[string]any{
			"encoding":   "base64",
			"commitment": "confirmed",
		},
	}
	if err := c.rpcCall(ctx, "getMultipleAccounts", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Value) != len(keys) {
		return nil, fmt.Errorf("%w: getMultipleAccounts returned %d entries for %d keys", protocol.ErrMalformedResponse, len(resp.Value), len(keys))
	}

	out := make([][]byte, len(keys))
	for i, it := range resp.Value {
		if it == nil {
			continue
		}
		if len(it.Data) < 1 {
			return nil, fmt.Errorf("%w: account %s missing data", protocol.ErrMalformedResponse, addrs[i])
		}
		b, err := base64.StdEncoding.DecodeString(it.Data[0])
		if err != nil {
			return nil, fmt.Errorf("%w: account %s: %w", protocol.ErrMalformedResponse, addrs[i], err)
		}
		out[i] = b
	}
	return out, nil
}

func (c *Client) BalanceLamports(ctx context.Context, pubkey string) (uint64, error) {
	pubkey = strings.TrimSpace(pubkey)
	if pubkey == "" {
		return 0, errors.New("pubkey required")
	}
	var resp struct {
		Value uint64 `json:"value"`
	}
	if err := c.rpcCall(ctx, "getBalance", []any{pubkey, map[string]any{"commitment": "confirmed"}}, &resp); err != nil {
		return 0, err
	}
	return resp.Value, nil
}
