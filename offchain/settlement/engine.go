// Package settlement pays for priced operations in the settlement token,
// buying any shortfall with native currency first.
//
// A single Engine does not coordinate concurrent HandlePayment calls against
// the same wallet; callers serialize them.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Abdullah1738/itheum-agent/internal/tracing"
	"github.com/Abdullah1738/itheum-agent/offchain/solana"
	"github.com/Abdullah1738/itheum-agent/offchain/solanarpc"
	"github.com/Abdullah1738/itheum-agent/offchain/txsubmit"
	"github.com/Abdullah1738/itheum-agent/protocol"
	"github.com/Abdullah1738/itheum-agent/result"
)

var (
	ErrSettlementFailed = errors.New("settlement failed")
	// ErrInsufficientBalance means the balance still falls short of the
	// transfer after any purchase.
	ErrInsufficientBalance = errors.New("insufficient token balance")
)

const DefaultPriorityFee uint64 = 50_000

type BalanceReader interface {
	TokenAccountBalance(ctx context.Context, account solana.Pubkey) (solanarpc.TokenAmount, error)
}

type Oracle interface {
	Cost(ctx context.Context) (decimal.Decimal, error)
	TokenPriceIn(ctx context.Context, mint, vs solana.Pubkey) (decimal.Decimal, error)
}

type Swapper interface {
	Swap(ctx context.Context, native decimal.Decimal) (string, error)
}

type Submitter interface {
	Submit(ctx context.Context, req txsubmit.Request) (string, error)
	Payer() solana.Pubkey
}

type Deps struct {
	Ledger    BalanceReader
	Oracle    Oracle
	Swapper   Swapper
	Submitter Submitter
	// Journal is optional.
	Journal Journal
}

type Config struct {
	TokenMint         solana.Pubkey
	TokenDecimals     uint8
	CollectionAddress solana.Pubkey
	NativeMint        solana.Pubkey
	Buffer            decimal.Decimal
	PriorityFee       uint64
	// ExplorerTxURL prefixes signatures in log lines.
	ExplorerTxURL string
}

func (c Config) Validate() error {
	var errs []error
	if c.TokenMint.IsZero() {
		errs = append(errs, errors.New("token mint required"))
	}
	if c.CollectionAddress.IsZero() {
		errs = append(errs, errors.New("collection address required"))
	}
	if c.NativeMint.IsZero() {
		errs = append(errs, errors.New("native mint required"))
	}
	if c.Buffer.IsNegative() {
		errs = append(errs, errors.New("buffer must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: settlement config: %w", protocol.ErrValidation, err)
	}
	return nil
}

type Engine struct {
	deps  Deps
	cfg   Config
	owner solana.Pubkey
	log   *slog.Logger
	now   func() time.Time

	mu      sync.Mutex
	balance uint64
}

func New(deps Deps, cfg Config, log *slog.Logger) (*Engine, error) {
	if deps.Ledger == nil || deps.Oracle == nil || deps.Swapper == nil || deps.Submitter == nil {
		return nil, fmt.Errorf("%w: settlement: ledger, oracle, swapper and submitter are required", protocol.ErrValidation)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		deps:  deps,
		cfg:   cfg,
		owner: deps.Submitter.Payer(),
		log:   log,
		now:   time.Now,
	}, nil
}

func (e *Engine) Owner() solana.Pubkey { return e.owner }

// Balance returns the balance observed by the last successful sync.
func (e *Engine) Balance() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// FetchBalance reads the owner's token account balance in base units. An
// account that does not exist reads as zero; any other lookup failure is an
// error.
func (e *Engine) FetchBalance(ctx context.Context) result.Result[uint64] {
	ata, err := solana.FindAssociatedTokenAddress(e.owner, e.cfg.TokenMint)
	if err != nil {
		return result.Err[uint64](fmt.Errorf("token account: %w", err))
	}
	amt, err := e.deps.Ledger.TokenAccountBalance(ctx, ata)
	if err != nil {
		if solanarpc.IsAccountNotFound(err) {
			e.log.Debug("token account missing, balance is zero", "account", ata)
			return result.Ok[uint64](0)
		}
		return result.Err[uint64](fmt.Errorf("token balance: %w", err))
	}
	raw := strings.TrimSpace(amt.Amount)
	if raw == "" || raw == "0" {
		return result.Ok[uint64](0)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return result.Err[uint64](fmt.Errorf("%w: token balance %q: %w", protocol.ErrMalformedResponse, amt.Amount, err))
	}
	return result.Ok(v)
}

// SyncBalance fetches the balance and overwrites the cached copy on success.
func (e *Engine) SyncBalance(ctx context.Context) result.Result[uint64] {
	r := e.FetchBalance(ctx)
	if v, err := r.Unwrap(); err == nil {
		e.mu.Lock()
		e.balance = v
		e.mu.Unlock()
	}
	return r
}

// HandleCredits re-syncs the balance, prices operations and reports the
// shortfall. Insufficient balance is a normal outcome, not an error.
func (e *Engine) HandleCredits(ctx context.Context, operations int) result.Result[CreditRequirement] {
	return e.credits(ctx, operations, nil)
}

func (e *Engine) credits(ctx context.Context, operations int, rec *Record) result.Result[CreditRequirement] {
	if operations <= 0 {
		return result.Err[CreditRequirement](fmt.Errorf("%w: operation count must be positive, got %d", protocol.ErrValidation, operations))
	}
	e.transition(ctx, rec, StateSyncing)
	balance, err := e.SyncBalance(ctx).Unwrap()
	if err != nil {
		return result.Err[CreditRequirement](err)
	}
	e.transition(ctx, rec, StateCostCheck)
	cost, err := e.deps.Oracle.Cost(ctx)
	if err != nil {
		return result.Err[CreditRequirement](err)
	}
	req := ComputeRequirement(cost, operations, e.cfg.Buffer, balance, e.cfg.TokenDecimals)
	e.log.Debug("credit check",
		"operations", operations,
		"cost_per_operation", cost.String(),
		"balance", protocol.FromSubUnits(balance, e.cfg.TokenDecimals).String(),
		"required", req.RequiredAmount.String(),
		"purchase", req.AmountToPurchase.String(),
	)
	return result.Ok(req)
}

// HandlePayment settles operations: check credits, buy the shortfall when
// needed, then transfer the full required amount to the collection address.
// The returned signature is the transfer's. Any failed step ends the attempt.
func (e *Engine) HandlePayment(ctx context.Context, operations int) result.Result[string] {
	rec := &Record{
		ID:         uuid.New(),
		Owner:      e.owner,
		Operations: operations,
		State:      StateIdle,
		StartedAt:  e.now(),
	}
	rec.UpdatedAt = rec.StartedAt
	log := e.log.With("settlement_id", rec.ID.String())

	ctx, span := tracing.Tracer().Start(ctx, "settlement.HandlePayment", trace.WithAttributes(
		attribute.String("settlement_id", rec.ID.String()),
		attribute.Int("operations", operations),
	))
	defer span.End()

	if e.deps.Journal != nil {
		if err := e.deps.Journal.Begin(ctx, *rec); err != nil {
			log.Warn("journal begin failed", "err", err)
		}
	}

	fail := func(step string, err error) result.Result[string] {
		err = fmt.Errorf("%w: %s: %w", ErrSettlementFailed, step, err)
		rec.Error = err.Error()
		if sig, ok := txsubmit.SentSignature(err); ok {
			e.transition(ctx, rec, StateIndeterminate)
			log.Error("settlement outcome unknown", "step", step, "signature", sig, "explorer", e.explorer(sig), "err", err)
		} else {
			e.transition(ctx, rec, StateFailed)
			log.Error("settlement failed", "step", step, "err", err)
		}
		return result.Err[string](tracing.RecordError(span, err))
	}

	credits, err := e.credits(ctx, operations, rec).Unwrap()
	if err != nil {
		return fail("credit check", err)
	}
	rec.RequiredAmount = credits.RequiredAmount
	rec.PurchaseAmount = credits.AmountToPurchase
	span.SetAttributes(
		attribute.String("required_amount", credits.RequiredAmount.String()),
		attribute.Bool("needs_purchase", credits.NeedsTokenPurchase),
	)

	if credits.NeedsTokenPurchase {
		e.transition(ctx, rec, StatePricing)
		price, err := e.deps.Oracle.TokenPriceIn(ctx, e.cfg.TokenMint, e.cfg.NativeMint)
		if err != nil {
			return fail("token price", err)
		}
		native := credits.AmountToPurchase.Mul(price)
		log.Info("buying token shortfall", "purchase", credits.AmountToPurchase.String(), "native", native.String())

		e.transition(ctx, rec, StateSwapping)
		swapSig, err := e.deps.Swapper.Swap(ctx, native)
		if err != nil {
			rec.SwapSignature, _ = txsubmit.SentSignature(err)
			return fail("swap", err)
		}
		rec.SwapSignature = swapSig
		log.Info("swap confirmed", "signature", swapSig, "explorer", e.explorer(swapSig))

		e.transition(ctx, rec, StateReSyncing)
		if _, err := e.SyncBalance(ctx).Unwrap(); err != nil {
			return fail("resync balance", err)
		}
	}

	e.transition(ctx, rec, StatePaying)
	amount, err := protocol.ToSubUnitsCeil(credits.RequiredAmount, e.cfg.TokenDecimals)
	if err != nil {
		return fail("transfer amount", err)
	}
	if have := e.Balance(); have < amount {
		return fail("transfer", fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, have, amount))
	}
	sig, err := e.transfer(ctx, amount)
	if err != nil {
		rec.PaymentSignature, _ = txsubmit.SentSignature(err)
		return fail("transfer", err)
	}
	rec.PaymentSignature = sig
	e.transition(ctx, rec, StateDone)
	tracing.OK(span)
	log.Info("payment settled",
		"signature", sig,
		"amount", credits.RequiredAmount.String(),
		"explorer", e.explorer(sig),
	)
	return result.Ok(sig)
}

// transfer moves amount base units from the owner's token account to the
// collection address's token account, creating the latter when absent.
func (e *Engine) transfer(ctx context.Context, amount uint64) (string, error) {
	source, err := solana.FindAssociatedTokenAddress(e.owner, e.cfg.TokenMint)
	if err != nil {
		return "", fmt.Errorf("source token account: %w", err)
	}
	createIx, dest, err := solana.CreateAssociatedTokenAccountIdempotent(e.owner, e.cfg.CollectionAddress, e.cfg.TokenMint)
	if err != nil {
		return "", fmt.Errorf("destination token account: %w", err)
	}
	return e.deps.Submitter.Submit(ctx, txsubmit.Request{
		Instructions: []solana.Instruction{
			createIx,
			solana.TokenTransfer(source, dest, e.owner, amount),
		},
		PriorityFee: e.cfg.PriorityFee,
	})
}

func (e *Engine) transition(ctx context.Context, rec *Record, s State) {
	if rec == nil {
		return
	}
	rec.State = s
	rec.UpdatedAt = e.now()
	trace.SpanFromContext(ctx).AddEvent(string(s))
	e.log.Debug("settlement state", "settlement_id", rec.ID.String(), "state", string(s))
	if e.deps.Journal == nil {
		return
	}
	if err := e.deps.Journal.Update(ctx, *rec); err != nil {
		e.log.Warn("journal update failed", "settlement_id", rec.ID.String(), "state", string(s), "err", err)
	}
}

func (e *Engine) explorer(sig string) string {
	if e.cfg.ExplorerTxURL == "" {
		return ""
	}
	return e.cfg.ExplorerTxURL + sig
}
