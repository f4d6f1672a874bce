// Package jupiter talks to the Jupiter swap aggregator's v6 quote API.
package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Abdullah1738/itheum-agent/internal/httpx"
	"github.com/Abdullah1738/itheum-agent/offchain/solana"
	"github.com/Abdullah1738/itheum-agent/protocol"
)

const DefaultBaseURL = "https://quote-api.jup.ag/v6"

type Client struct {
	baseURL string
	http    *httpx.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: baseURL, http: httpx.New(httpClient)}
}

type QuoteRequest struct {
	InputMint   solana.Pubkey
	OutputMint  solana.Pubkey
	Amount      uint64
	SlippageBps protocol.Bps
}

// Quote returns the aggregator's quote verbatim. It is only ever passed
// back to SwapInstructions.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (json.RawMessage, error) {
	if req.Amount == 0 {
		return nil, fmt.Errorf("%w: quote amount must be > 0", protocol.ErrValidation)
	}
	if !req.SlippageBps.IsValid() {
		return nil, fmt.Errorf("%w: %w", protocol.ErrValidation, protocol.ErrInvalidBps)
	}
	q := url.Values{}
	q.Set("inputMint", req.InputMint.Base58())
	q.Set("outputMint", req.OutputMint.Base58())
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("slippageBps", strconv.FormatUint(uint64(req.SlippageBps), 10))

	var raw json.RawMessage
	if err := c.http.GetJSON(ctx, c.baseURL+"/quote?"+q.Encode(), nil, &raw); err != nil {
		return nil, err
	}
	if err := checkQuote(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func checkQuote(raw json.RawMessage) error {
	var head struct {
		OutAmount string `json:"outAmount"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return fmt.Errorf("%w: quote: %w", protocol.ErrMalformedResponse, err)
	}
	if head.Error != "" {
		return fmt.Errorf("%w: quote: %s", protocol.ErrNoInstructions, head.Error)
	}
	if head.OutAmount == "" {
		return fmt.Errorf("%w: quote missing outAmount", protocol.ErrMalformedResponse)
	}
	return nil
}

type AccountDescriptor struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// InstructionDescriptor is an instruction as the aggregator serializes it;
// Data is base64.
type InstructionDescriptor struct {
	ProgramID string              `json:"programId"`
	Accounts  []AccountDescriptor `json:"accounts"`
	Data      string              `json:"data"`
}

func (d InstructionDescriptor) Decode() (solana.Instruction, error) {
	programID, err := solana.ParsePubkey(d.ProgramID)
	if err != nil {
		return solana.Instruction{}, fmt.Errorf("%w: program id %q: %w", protocol.ErrMalformedResponse, d.ProgramID, err)
	}
	accounts := make([]solana.AccountMeta, 0, len(d.Accounts))
	for i, a := range d.Accounts {
		pk, err := solana.ParsePubkey(a.Pubkey)
		if err != nil {
			return solana.Instruction{}, fmt.Errorf("%w: account %d %q: %w", protocol.ErrMalformedResponse, i, a.Pubkey, err)
		}
		accounts = append(accounts, solana.AccountMeta{Pubkey: pk, IsSigner: a.IsSigner, IsWritable: a.IsWritable})
	}
	data, err := base64.StdEncoding.DecodeString(d.Data)
	if err != nil {
		return solana.Instruction{}, fmt.Errorf("%w: instruction data: %w", protocol.ErrMalformedResponse, err)
	}
	return solana.Instruction{ProgramID: programID, Accounts: accounts, Data: data}, nil
}

type SwapInstructions struct {
	ComputeBudgetInstructions   []InstructionDescriptor `json:"computeBudgetInstructions"`
	SetupInstructions           []InstructionDescriptor `json:"setupInstructions"`
	SwapInstruction             *InstructionDescriptor  `json:"swapInstruction"`
	CleanupInstruction          *InstructionDescriptor  `json:"cleanupInstruction"`
	AddressLookupTableAddresses []string                `json:"addressLookupTableAddresses"`
	Error                       string                  `json:"error,omitempty"`
}

// Ordered lists the instructions in execution order: compute budget, setup,
// swap, then cleanup when present. Nothing is reordered or deduplicated.
func (s SwapInstructions) Ordered() []InstructionDescriptor {
	out := make([]InstructionDescriptor, 0, len(s.ComputeBudgetInstructions)+len(s.SetupInstructions)+2)
	out = append(out, s.ComputeBudgetInstructions...)
	out = append(out, s.SetupInstructions...)
	if s.SwapInstruction != nil {
		out = append(out, *s.SwapInstruction)
	}
	if s.CleanupInstruction != nil {
		out = append(out, *s.CleanupInstruction)
	}
	return out
}

func (s SwapInstructions) LookupTableAddresses() ([]solana.Pubkey, error) {
	out := make([]solana.Pubkey, 0, len(s.AddressLookupTableAddresses))
	for _, a := range s.AddressLookupTableAddresses {
		pk, err := solana.ParsePubkey(a)
		if err != nil {
			return nil, fmt.Errorf("%w: lookup table %q: %w", protocol.ErrMalformedResponse, a, err)
		}
		out = append(out, pk)
	}
	return out, nil
}

type swapInstructionsRequest struct {
	QuoteResponse json.RawMessage `json:"quoteResponse"`
	UserPublicKey string          `json:"userPublicKey"`
}

func (c *Client) SwapInstructions(ctx context.Context, quote json.RawMessage, user solana.Pubkey) (SwapInstructions, error) {
	if len(bytes.TrimSpace(quote)) == 0 {
		return SwapInstructions{}, fmt.Errorf("%w: empty quote", protocol.ErrValidation)
	}
	var out SwapInstructions
	body := swapInstructionsRequest{QuoteResponse: quote, UserPublicKey: user.Base58()}
	if err := c.http.PostJSON(ctx, c.baseURL+"/swap-instructions", nil, body, &out); err != nil {
		return SwapInstructions{}, err
	}
	if out.Error != "" {
		return SwapInstructions{}, fmt.Errorf("%w: %s", protocol.ErrNoInstructions, out.Error)
	}
	if out.SwapInstruction == nil {
		return SwapInstructions{}, fmt.Errorf("%w: missing swap instruction", protocol.ErrNoInstructions)
	}
	return out, nil
}
