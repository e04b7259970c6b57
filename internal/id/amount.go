package id

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/shopspring/decimal"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParseDecimal parses a non-negative decimal amount like "1.25".
func ParseDecimal(input string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(input)
	if !decimalPattern.MatchString(clean) {
		return decimal.Zero, clierr.New(clierr.CodeValidation, fmt.Sprintf("amount %q must be in decimal form like 1.23", input))
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, clierr.Wrap(clierr.CodeValidation, "parse amount", err)
	}
	return d, nil
}

// ToBaseUnits converts a decimal token amount to integer base units,
// rounding half away from zero: round(a * 10^decimals).
func ToBaseUnits(amount decimal.Decimal, decimals int) *big.Int {
	return amount.Shift(int32(decimals)).Round(0).BigInt()
}

// FromBaseUnits converts integer base units to a decimal token amount.
func FromBaseUnits(baseUnits *big.Int, decimals int) decimal.Decimal {
	if baseUnits == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(baseUnits, -int32(decimals))
}

// ParseBaseUnits parses a non-negative integer base-unit string.
func ParseBaseUnits(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	n, ok := new(big.Int).SetString(clean, 10)
	if !ok || n.Sign() < 0 {
		return nil, clierr.New(clierr.CodeValidation, fmt.Sprintf("invalid base-unit amount %q", v))
	}
	return n, nil
}

// FormatBaseUnits renders base units as a trimmed decimal string.
func FormatBaseUnits(baseUnits *big.Int, decimals int) string {
	return FromBaseUnits(baseUnits, decimals).String()
}
