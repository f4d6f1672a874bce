// Package txsubmit builds, signs, sends and confirms v0 transactions.
//
// Confirmation polling is the only retry loop in the settlement path. A
// send rejection is returned as is; the caller decides whether to rebuild.
package txsubmit

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Abdullah1738/itheum-agent/internal/tracing"
	"github.com/Abdullah1738/itheum-agent/offchain/solana"
	"github.com/Abdullah1738/itheum-agent/offchain/solanarpc"
	"github.com/Abdullah1738/itheum-agent/protocol"
)

var (
	ErrBlockhash         = errors.New("fetch blockhash")
	ErrSign              = errors.New("build and sign transaction")
	ErrSubmitRejected    = errors.New("transaction rejected at submission")
	ErrTransactionFailed = errors.New("transaction failed on chain")

	errNotSettled = errors.New("transaction not settled yet")
)

// UnconfirmedError is returned when a transaction was sent but never observed
// as settled. It may still land; Signature identifies it for reconciliation.
type UnconfirmedError struct {
	Signature string
	Err       error
}

func (e *UnconfirmedError) Error() string {
	return fmt.Sprintf("%s: %s: %v", protocol.ErrConfirmationTimeout, e.Signature, e.Err)
}

func (e *UnconfirmedError) Unwrap() []error {
	return []error{protocol.ErrConfirmationTimeout, e.Err}
}

// SentSignature returns the signature carried by an UnconfirmedError in
// err's chain.
func SentSignature(err error) (string, bool) {
	var ue *UnconfirmedError
	if errors.As(err, &ue) && ue.Signature != "" {
		return ue.Signature, true
	}
	return "", false
}

const (
	StatusProcessed = "processed"
	StatusConfirmed = "confirmed"
	StatusFinalized = "finalized"
)

// IsSettled reports whether a confirmation status is accepted as final.
func IsSettled(status string) bool {
	return status == StatusFinalized || status == StatusConfirmed
}

// Ledger is the subset of the RPC gateway used to land a transaction.
type Ledger interface {
	LatestBlockhash(ctx context.Context) ([32]byte, error)
	SendTransaction(ctx context.Context, tx []byte, skipPreflight bool) (string, error)
	SignatureStatus(ctx context.Context, signature string) (*solanarpc.SignatureStatus, error)
}

// Signer pays for and signs transactions.
type Signer interface {
	PublicKey() solana.Pubkey
	Signers() map[solana.Pubkey]ed25519.PrivateKey
}

type Options struct {
	// SettleDelay is waited once between send and the first status poll.
	SettleDelay time.Duration
	// PollInterval separates consecutive status polls.
	PollInterval time.Duration
	// MaxAttempts bounds the number of status polls.
	MaxAttempts int
}

func DefaultOptions() Options {
	return Options{
		SettleDelay:  5 * time.Second,
		PollInterval: 2 * time.Second,
		MaxAttempts:  4,
	}
}

// Request is one transaction worth of instructions. Instructions are kept
// in order; a compute-unit price instruction is prepended when PriorityFee
// is non-zero.
type Request struct {
	Instructions []solana.Instruction
	// PriorityFee is the compute-unit price in micro-lamports.
	PriorityFee  uint64
	LookupTables []solana.LookupTable
}

type Submitter struct {
	ledger Ledger
	signer Signer
	opts   Options
	log    *slog.Logger
}

func New(ledger Ledger, signer Signer, opts Options, log *slog.Logger) *Submitter {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Submitter{ledger: ledger, signer: signer, opts: opts, log: log}
}

func (s *Submitter) Payer() solana.Pubkey { return s.signer.PublicKey() }

// Submit returns the signature of a transaction observed as confirmed or
// finalized without an execution error.
func (s *Submitter) Submit(ctx context.Context, req Request) (sig string, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "txsubmit.Submit", trace.WithAttributes(
		attribute.Int("instructions", len(req.Instructions)),
		attribute.Int64("priority_fee", int64(req.PriorityFee)),
		attribute.Int("lookup_tables", len(req.LookupTables)),
	))
	defer span.End()
	defer func() {
		if err != nil {
			_ = tracing.RecordError(span, err)
			return
		}
		span.SetAttributes(attribute.String("signature", sig))
		tracing.OK(span)
	}()

	if len(req.Instructions) == 0 {
		return "", fmt.Errorf("%w: no instructions", protocol.ErrValidation)
	}

	blockhash, err := s.ledger.LatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBlockhash, err)
	}

	ixs := req.Instructions
	if req.PriorityFee > 0 {
		ixs = make([]solana.Instruction, 0, len(req.Instructions)+1)
		ixs = append(ixs, solana.ComputeBudgetSetComputeUnitPrice(req.PriorityFee))
		ixs = append(ixs, req.Instructions...)
	}

	payer := s.signer.PublicKey()
	tx, err := solana.BuildAndSignV0Transaction(blockhash, payer, s.signer.Signers(), ixs, req.LookupTables)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSign, err)
	}
	localSig, err := solana.TransactionSignature(tx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSign, err)
	}

	sig, err = s.ledger.SendTransaction(ctx, tx, true)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSubmitRejected, err)
	}
	if sig == "" {
		sig = localSig
	} else if sig != localSig {
		s.log.Warn("rpc returned unexpected signature", "returned", sig, "local", localSig)
	}
	s.log.Debug("transaction sent", "signature", sig, "instructions", len(ixs))

	if err := sleepWithContext(ctx, s.opts.SettleDelay); err != nil {
		return "", &UnconfirmedError{Signature: sig, Err: err}
	}
	if err := s.awaitSettled(ctx, sig); err != nil {
		return "", err
	}
	return sig, nil
}

func (s *Submitter) awaitSettled(ctx context.Context, sig string) error {
	attempt := 0
	var lastErr error
	op := func() error {
		attempt++
		st, err := s.ledger.SignatureStatus(ctx, sig)
		switch {
		case err != nil:
			lastErr = err
		case st == nil:
			lastErr = errNotSettled
		case st.Failed():
			return backoff.Permanent(fmt.Errorf("%w: %s: %s", ErrTransactionFailed, sig, string(st.Err)))
		case IsSettled(st.ConfirmationStatus):
			return nil
		default:
			lastErr = fmt.Errorf("%w: status %q", errNotSettled, st.ConfirmationStatus)
		}
		s.log.Debug("confirmation pending", "signature", sig, "attempt", attempt, "err", lastErr)
		return lastErr
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.opts.PollInterval), uint64(s.opts.MaxAttempts-1)),
		ctx,
	)
	err := backoff.Retry(op, policy)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransactionFailed) {
		return err
	}
	if lastErr == nil {
		lastErr = err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &UnconfirmedError{Signature: sig, Err: ctxErr}
	}
	return &UnconfirmedError{Signature: sig, Err: fmt.Errorf("after %d attempts: %w", attempt, lastErr)}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
