package flow

import (
	"testing"

	"github.com/ggonzalez94/meeflow/internal/config"
	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestResolveBoundsSubtractsReserve(t *testing.T) {
	wf, err := config.ResolveWorkflow(config.NetworkLocal, config.DirectionSameChain, config.WorkflowOverrides{})
	require.NoError(t, err)

	b := ResolveBounds(wf, dec("5000"))
	assert.True(t, b.Min.Equal(dec("1")))
	assert.True(t, b.Max.Equal(dec("4900")))
	assert.True(t, b.Default.Equal(dec("1000")))
}

func TestResolveBoundsAppliesCapAndClampsDefault(t *testing.T) {
	wf, err := config.ResolveWorkflow(config.NetworkLocal, config.DirectionSameChain, config.WorkflowOverrides{MaxAmount: "500"})
	require.NoError(t, err)

	b := ResolveBounds(wf, dec("5000"))
	assert.True(t, b.Max.Equal(dec("500")))
	assert.True(t, b.Default.Equal(dec("500")))
}

func TestNegotiateAmountFailsFastWhenMaxBelowMin(t *testing.T) {
	p := &fakePrompter{}
	_, err := NegotiateAmount(p, Bounds{Min: dec("0.1"), Max: dec("-0.2"), Default: dec("1")})
	require.Error(t, err)
	assert.Equal(t, clierr.CodeValidation, clierr.CodeOf(err))
	assert.Zero(t, p.amounts)
}

func TestNegotiateAmountRejectsOutOfRange(t *testing.T) {
	bounds := Bounds{Min: dec("1"), Max: dec("10"), Default: dec("5")}
	for _, entry := range []string{"0.999999", "10.000001", "11"} {
		_, err := NegotiateAmount(&fakePrompter{amount: entry}, bounds)
		require.Error(t, err, entry)
		assert.Equal(t, clierr.CodeValidation, clierr.CodeOf(err), entry)
	}
}

func TestNegotiateAmountConvertsToBaseUnits(t *testing.T) {
	bounds := Bounds{Min: dec("0.000001"), Max: dec("10"), Default: dec("5")}
	cases := map[string]int64{
		"1":         1_000_000,
		"10":        10_000_000,
		"0.000001":  1,
		"2.5":       2_500_000,
		"0.0000015": 2,
	}
	for entry, want := range cases {
		amount, err := NegotiateAmount(&fakePrompter{amount: entry}, bounds)
		require.NoError(t, err, entry)
		assert.Equal(t, want, amount.BaseUnits.Int64(), entry)
	}
}

func TestNegotiateAmountUsesDefault(t *testing.T) {
	amount, err := NegotiateAmount(&fakePrompter{}, Bounds{Min: dec("1"), Max: dec("1900"), Default: dec("1000")})
	require.NoError(t, err)
	assert.True(t, amount.Value.Equal(dec("1000")))
}
