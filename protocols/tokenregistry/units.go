package tokenregistry

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrTooPrecise is returned when a display amount has more fractional digits than the token supports.
var ErrTooPrecise = errors.New("amount has more decimals than the token")

// ParseUnits converts a human-readable amount such as "12.5" into base units.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, ErrInvalidAmount
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q with %d decimals", ErrTooPrecise, amount, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits renders base units as a decimal string without trailing zeros.
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// FormatUnitsFixed renders base units rounded to places fractional digits.
func FormatUnitsFixed(amount *big.Int, decimals uint8, places int32) string {
	if amount == nil {
		amount = new(big.Int)
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).StringFixed(places)
}

// Ratio returns numerator/denominator after normalizing both to whole-token units,
// rounded to places fractional digits. A zero denominator yields "0".
func Ratio(numerator *big.Int, numeratorDecimals uint8, denominator *big.Int, denominatorDecimals uint8, places int32) string {
	if numerator == nil || denominator == nil || denominator.Sign() == 0 {
		return decimal.Zero.StringFixed(places)
	}
	n := decimal.NewFromBigInt(numerator, -int32(numeratorDecimals))
	d := decimal.NewFromBigInt(denominator, -int32(denominatorDecimals))
	return n.DivRound(d, places+2).StringFixed(places)
}
