package flow

import (
	"fmt"
	"math/big"
	"strings"

	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/id"
	"github.com/ggonzalez94/meeflow/internal/relay"
	"github.com/shopspring/decimal"
)

// Fee is the quoted execution fee in the fee token.
type Fee struct {
	Value     decimal.Decimal
	BaseUnits *big.Int
	USD       string
}

// QuoteFee reads the fee from a quote, preferring the exact base-unit amount.
func QuoteFee(q relay.Quote) (Fee, error) {
	info := q.PaymentInfo
	fee := Fee{USD: strings.TrimSpace(info.TokenValue)}
	switch {
	case strings.TrimSpace(info.TokenWeiAmount) != "":
		wei, err := id.ParseBaseUnits(info.TokenWeiAmount)
		if err != nil {
			return Fee{}, clierr.Wrap(clierr.CodeUnavailable, "relay quote fee", err)
		}
		fee.BaseUnits = wei
		fee.Value = id.FromBaseUnits(wei, id.USDCDecimals)
	case strings.TrimSpace(info.TokenAmount) != "":
		value, err := id.ParseDecimal(info.TokenAmount)
		if err != nil {
			return Fee{}, clierr.Wrap(clierr.CodeUnavailable, "relay quote fee", err)
		}
		fee.Value = value
		fee.BaseUnits = id.ToBaseUnits(value, id.USDCDecimals)
	default:
		return Fee{}, clierr.New(clierr.CodeUnavailable, "relay quote carries no execution fee")
	}
	if fee.USD == "" {
		fee.USD = fee.Value.String()
	}
	return fee, nil
}

// CheckBalanceGuard allows execution only when the balance left after the
// transfer strictly exceeds the fee.
func CheckBalanceGuard(before, amount, fee decimal.Decimal) error {
	extra := before.Sub(amount)
	if extra.GreaterThan(fee) {
		return nil
	}
	return clierr.New(clierr.CodeInsufficientFunds, fmt.Sprintf("eoa account does not have enough USDC balance to pay for the execution fee: %s <= %s", extra, fee))
}
