package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Abdullah1738/itheum-agent/offchain/solana"
)

// State is a step of a single HandlePayment call.
type State string

const (
	StateIdle      State = "idle"
	StateSyncing   State = "syncing"
	StateCostCheck State = "cost_check"
	StatePricing   State = "pricing"
	StateSwapping  State = "swapping"
	StateReSyncing State = "resyncing"
	StatePaying    State = "paying"
	StateDone      State = "done"
	StateFailed    State = "failed"
	// StateIndeterminate marks an attempt whose swap or transfer was sent
	// but never confirmed. The recorded signature may still land.
	StateIndeterminate State = "indeterminate"
)

// Terminal reports whether no further transition follows s. Indeterminate
// attempts are not terminal until reconciled against the ledger.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Record is the journaled view of one settlement attempt.
type Record struct {
	ID               uuid.UUID
	Owner            solana.Pubkey
	Operations       int
	RequiredAmount   decimal.Decimal
	PurchaseAmount   decimal.Decimal
	SwapSignature    string
	PaymentSignature string
	State            State
	Error            string
	StartedAt        time.Time
	UpdatedAt        time.Time
}

// Journal persists settlement records. Begin is called once per attempt,
// Update on every state change.
type Journal interface {
	Begin(ctx context.Context, rec Record) error
	Update(ctx context.Context, rec Record) error
}
