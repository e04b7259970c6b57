package flow

import (
	"fmt"
	"math/big"

	"github.com/ggonzalez94/meeflow/internal/config"
	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/id"
	"github.com/ggonzalez94/meeflow/internal/prompt"
	"github.com/shopspring/decimal"
)

// Bounds limits the amount a user may enter, in USDC.
type Bounds struct {
	Min     decimal.Decimal
	Max     decimal.Decimal
	Default decimal.Decimal
}

// Amount is the negotiated transfer amount.
type Amount struct {
	Value     decimal.Decimal
	BaseUnits *big.Int
}

// ResolveBounds derives the prompt bounds from the workflow and the source
// balance. Max is the balance minus the fee reserve, lowered to the
// configured cap when one is set.
func ResolveBounds(wf config.Workflow, sourceBalance decimal.Decimal) Bounds {
	maxAmount := sourceBalance.Sub(wf.FeeReserve)
	if wf.MaxAmount.Valid && wf.MaxAmount.Decimal.LessThan(maxAmount) {
		maxAmount = wf.MaxAmount.Decimal
	}
	def := wf.DefaultAmount
	if def.GreaterThan(maxAmount) && maxAmount.GreaterThanOrEqual(wf.MinAmount) {
		def = maxAmount
	}
	return Bounds{Min: wf.MinAmount, Max: maxAmount, Default: def}
}

// NegotiateAmount prompts once for an amount inside b. There is no retry: an
// entry outside the bounds is a validation error.
func NegotiateAmount(p prompt.Prompter, b Bounds) (Amount, error) {
	if b.Max.LessThan(b.Min) {
		return Amount{}, clierr.New(clierr.CodeValidation, fmt.Sprintf("balance too low: max amount %s is below min amount %s", b.Max, b.Min))
	}
	label := fmt.Sprintf("Enter amount of USDC to transfer (min: %s, max: %s)", b.Min, b.Max)
	raw, err := p.Amount(label, b.Default.String())
	if err != nil {
		return Amount{}, err
	}
	value, err := id.ParseDecimal(raw)
	if err != nil {
		return Amount{}, err
	}
	if value.LessThan(b.Min) || value.GreaterThan(b.Max) {
		return Amount{}, clierr.New(clierr.CodeValidation, fmt.Sprintf("amount %s is outside [%s, %s]", value, b.Min, b.Max))
	}
	return Amount{Value: value, BaseUnits: id.ToBaseUnits(value, id.USDCDecimals)}, nil
}
