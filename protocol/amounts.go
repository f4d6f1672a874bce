package protocol

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// Bps is a ratio in basis points.
type Bps uint16

const BpsDenominator uint64 = 10_000

var (
	ErrInvalidBps     = errors.New("invalid bps")
	ErrAmountOverflow = errors.New("amount overflow")
	ErrNegativeAmount = errors.New("negative amount")
)

func (b Bps) IsValid() bool {
	return uint64(b) <= BpsDenominator
}

// Fraction returns b as a decimal fraction (50 bps = 0.005).
func (b Bps) Fraction() decimal.Decimal {
	return decimal.New(int64(b), 0).Div(decimal.New(int64(BpsDenominator), 0))
}

var maxUint64 = decimal.NewFromUint64(math.MaxUint64)

// ToSubUnitsFloor converts a whole-token amount to base units, rounding down.
func ToSubUnitsFloor(amount decimal.Decimal, decimals uint8) (uint64, error) {
	return toSubUnits(amount.Shift(int32(decimals)).Floor())
}

// ToSubUnitsCeil converts a whole-token amount to base units, rounding up.
func ToSubUnitsCeil(amount decimal.Decimal, decimals uint8) (uint64, error) {
	return toSubUnits(amount.Shift(int32(decimals)).Ceil())
}

func toSubUnits(v decimal.Decimal) (uint64, error) {
	if v.IsNegative() {
		return 0, ErrNegativeAmount
	}
	if v.GreaterThan(maxUint64) {
		return 0, ErrAmountOverflow
	}
	return v.BigInt().Uint64(), nil
}

// FromSubUnits converts base units to a whole-token amount.
func FromSubUnits(amount uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromUint64(amount).Shift(-int32(decimals))
}

// WithBuffer returns amount * (1 + buffer).
func WithBuffer(amount, buffer decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(1).Add(buffer))
}
