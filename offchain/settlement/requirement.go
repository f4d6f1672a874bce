package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/Abdullah1738/itheum-agent/protocol"
)

// CreditRequirement is the outcome of a credit check. Amounts are whole
// tokens.
type CreditRequirement struct {
	RequiredAmount     decimal.Decimal
	NeedsTokenPurchase bool
	AmountToPurchase   decimal.Decimal
}

// DefaultBuffer inflates the settled amount by 1%.
func DefaultBuffer() decimal.Decimal { return decimal.RequireFromString("0.01") }

// ComputeRequirement prices operations at costPerOperation, inflates the
// total by buffer and compares it against balance (in base units).
//
//	required = cost * operations * (1 + buffer)
//	purchase = max(0, required - balance/10^decimals)
func ComputeRequirement(costPerOperation decimal.Decimal, operations int, buffer decimal.Decimal, balance uint64, decimals uint8) CreditRequirement {
	required := protocol.WithBuffer(costPerOperation.Mul(decimal.NewFromInt(int64(operations))), buffer)
	short := required.Sub(protocol.FromSubUnits(balance, decimals))
	if short.IsNegative() {
		short = decimal.Zero
	}
	return CreditRequirement{
		RequiredAmount:     required,
		NeedsTokenPurchase: short.IsPositive(),
		AmountToPurchase:   short,
	}
}
