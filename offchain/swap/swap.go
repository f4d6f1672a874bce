// Package swap buys the settlement token with native currency through the
// swap aggregator and lands the resulting transaction.
package swap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Abdullah1738/itheum-agent/internal/tracing"
	"github.com/Abdullah1738/itheum-agent/offchain/jupiter"
	"github.com/Abdullah1738/itheum-agent/offchain/solana"
	"github.com/Abdullah1738/itheum-agent/offchain/txsubmit"
	"github.com/Abdullah1738/itheum-agent/protocol"
)

var ErrSwapFailed = errors.New("swap failed")

type Aggregator interface {
	Quote(ctx context.Context, req jupiter.QuoteRequest) (json.RawMessage, error)
	SwapInstructions(ctx context.Context, quote json.RawMessage, user solana.Pubkey) (jupiter.SwapInstructions, error)
}

type AccountReader interface {
	MultipleAccountsBase64(ctx context.Context, keys []solana.Pubkey) ([][]byte, error)
}

type Submitter interface {
	Submit(ctx context.Context, req txsubmit.Request) (string, error)
	Payer() solana.Pubkey
}

type Config struct {
	InputMint     solana.Pubkey
	InputDecimals uint8
	OutputMint    solana.Pubkey
	// InputBuffer over-provisions the swap input against slippage and price
	// drift between quote and execution.
	InputBuffer decimal.Decimal
	SlippageBps protocol.Bps
	// PriorityFee is skipped when the aggregator already prices compute.
	PriorityFee uint64
	// MinInputAmount is the smallest swap input in base units. Shortfalls
	// that round below it buy this much instead.
	MinInputAmount uint64
}

func DefaultInputBuffer() decimal.Decimal { return decimal.RequireFromString("0.10") }

const (
	DefaultSlippageBps protocol.Bps = 50
	// DefaultMinInputAmount is 0.0001 SOL.
	DefaultMinInputAmount uint64 = 100_000
)

type Orchestrator struct {
	agg       Aggregator
	accounts  AccountReader
	submitter Submitter
	cfg       Config
	log       *slog.Logger
}

func New(agg Aggregator, accounts AccountReader, submitter Submitter, cfg Config, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{agg: agg, accounts: accounts, submitter: submitter, cfg: cfg, log: log}
}

// InputAmount is floor(native * 10^decimals * (1 + buffer)).
func InputAmount(native decimal.Decimal, decimals uint8, buffer decimal.Decimal) (uint64, error) {
	return protocol.ToSubUnitsFloor(protocol.WithBuffer(native, buffer), decimals)
}

func failed(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSwapFailed, step, err)
}

// Swap spends about native whole units of the input mint (plus the input
// buffer) and returns the confirmed swap signature.
func (o *Orchestrator) Swap(ctx context.Context, native decimal.Decimal) (sig string, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "swap.Swap", trace.WithAttributes(
		attribute.String("native_amount", native.String()),
	))
	defer span.End()
	defer func() {
		if err != nil {
			_ = tracing.RecordError(span, err)
			return
		}
		tracing.OK(span)
	}()

	if !native.IsPositive() {
		return "", failed("input amount", fmt.Errorf("%w: swap amount must be positive, got %s", protocol.ErrValidation, native))
	}
	amount, err := InputAmount(native, o.cfg.InputDecimals, o.cfg.InputBuffer)
	if err != nil {
		return "", failed("input amount", fmt.Errorf("%w: %w", protocol.ErrValidation, err))
	}
	if amount < o.cfg.MinInputAmount {
		o.log.Debug("raising swap input to minimum", "input_amount", amount, "min_input_amount", o.cfg.MinInputAmount)
		amount = o.cfg.MinInputAmount
	}
	if amount == 0 {
		return "", failed("input amount", fmt.Errorf("%w: swap amount rounds to zero", protocol.ErrValidation))
	}
	span.SetAttributes(attribute.Int64("input_amount", int64(amount)))

	user := o.submitter.Payer()
	quote, err := o.agg.Quote(ctx, jupiter.QuoteRequest{
		InputMint:   o.cfg.InputMint,
		OutputMint:  o.cfg.OutputMint,
		Amount:      amount,
		SlippageBps: o.cfg.SlippageBps,
	})
	if err != nil {
		return "", failed("quote", err)
	}
	o.log.Debug("swap quoted", "input_amount", amount)

	resp, err := o.agg.SwapInstructions(ctx, quote, user)
	if err != nil {
		return "", failed("swap instructions", err)
	}
	descriptors := resp.Ordered()
	if len(descriptors) == 0 {
		return "", failed("swap instructions", protocol.ErrNoInstructions)
	}

	fee := o.cfg.PriorityFee
	ixs := make([]solana.Instruction, 0, len(descriptors))
	for i, d := range descriptors {
		ix, err := d.Decode()
		if err != nil {
			return "", failed(fmt.Sprintf("decode instruction %d", i), err)
		}
		if fee > 0 && solana.IsSetComputeUnitPrice(ix) {
			o.log.Debug("aggregator sets compute unit price, skipping priority fee", "priority_fee", fee)
			fee = 0
		}
		ixs = append(ixs, ix)
	}

	tableKeys, err := resp.LookupTableAddresses()
	if err != nil {
		return "", failed("lookup tables", err)
	}
	tables, err := ResolveLookupTables(ctx, o.accounts, tableKeys)
	if err != nil {
		return "", failed("lookup tables", err)
	}
	if len(tables) < len(tableKeys) {
		o.log.Warn("dropped unresolved lookup tables", "requested", len(tableKeys), "resolved", len(tables))
	}

	sig, err = o.submitter.Submit(ctx, txsubmit.Request{
		Instructions: ixs,
		PriorityFee:  fee,
		LookupTables: tables,
	})
	if err != nil {
		return "", failed("submit", err)
	}
	return sig, nil
}

// ResolveLookupTables fetches and decodes lookup tables in one batch.
// Addresses with no account are dropped; a found account that does not
// decode is an error.
func ResolveLookupTables(ctx context.Context, reader AccountReader, keys []solana.Pubkey) ([]solana.LookupTable, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	data, err := reader.MultipleAccountsBase64(ctx, keys)
	if err != nil {
		return nil, err
	}
	if len(data) != len(keys) {
		return nil, fmt.Errorf("%w: %d accounts for %d lookup tables", protocol.ErrMalformedResponse, len(data), len(keys))
	}
	out := make([]solana.LookupTable, 0, len(keys))
	for i, raw := range data {
		if raw == nil {
			continue
		}
		lt, err := solana.ParseAddressLookupTable(keys[i], raw)
		if err != nil {
			return nil, fmt.Errorf("lookup table %s: %w", keys[i], err)
		}
		out = append(out, lt)
	}
	return out, nil
}
