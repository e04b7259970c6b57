package flow

import (
	"testing"

	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckBalanceGuard(t *testing.T) {
	require.NoError(t, CheckBalanceGuard(dec("10"), dec("5"), dec("4.999999")))

	for _, fee := range []string{"5", "6"} {
		err := CheckBalanceGuard(dec("10"), dec("5"), dec(fee))
		require.Error(t, err, fee)
		assert.Equal(t, clierr.CodeInsufficientFunds, clierr.CodeOf(err))
	}
}

func TestQuoteFeePrefersBaseUnits(t *testing.T) {
	fee, err := QuoteFee(relay.Quote{PaymentInfo: relay.PaymentInfo{TokenAmount: "9", TokenWeiAmount: "12345", TokenValue: "0.0123"}})
	require.NoError(t, err)
	assert.Equal(t, int64(12345), fee.BaseUnits.Int64())
	assert.True(t, fee.Value.Equal(dec("0.012345")))
	assert.Equal(t, "0.0123", fee.USD)

	fee, err = QuoteFee(relay.Quote{PaymentInfo: relay.PaymentInfo{TokenAmount: "0.5"}})
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), fee.BaseUnits.Int64())
	assert.Equal(t, "0.5", fee.USD)

	_, err = QuoteFee(relay.Quote{})
	assert.Equal(t, clierr.CodeUnavailable, clierr.CodeOf(err))
}
