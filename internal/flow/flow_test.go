package flow

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/meeflow/internal/account"
	"github.com/ggonzalez94/meeflow/internal/config"
	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/execution"
	"github.com/ggonzalez94/meeflow/internal/execution/planner"
	"github.com/ggonzalez94/meeflow/internal/id"
	"github.com/ggonzalez94/meeflow/internal/model"
	"github.com/ggonzalez94/meeflow/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	wf       config.Workflow
	base     *fakeReader
	op       *fakeReader
	relay    *fakeRelay
	trigger  *fakeTrigger
	prompter *fakePrompter
	journal  *fakeJournal
	console  *bytes.Buffer
	now      time.Time
}

func newHarness(t *testing.T, network string, direction config.Direction) *harness {
	t.Helper()
	wf, err := config.ResolveWorkflow(network, direction, config.WorkflowOverrides{})
	require.NoError(t, err)
	return &harness{
		wf:       wf,
		base:     newFakeReader(id.Base),
		op:       newFakeReader(id.Optimism),
		relay:    &fakeRelay{},
		trigger:  &fakeTrigger{},
		prompter: &fakePrompter{proceed: true},
		journal:  &fakeJournal{},
		console:  &bytes.Buffer{},
		now:      testBlockTime.Add(time.Second),
	}
}

func (h *harness) run(t *testing.T) (model.RunSummary, error) {
	t.Helper()
	f, err := New(Config{
		Workflow: h.wf,
		Account: account.Account{
			EOA:   testEOA,
			Smart: map[int64]common.Address{8453: testSmartBase, 10: testSmartOp},
		},
		Readers:  map[int64]ChainReader{8453: h.base, 10: h.op},
		Relay:    h.relay,
		Trigger:  h.trigger,
		Prompter: h.prompter,
		Journal:  h.journal,
		Console:  h.console,
		AavePool: testPool,
		Now:      func() time.Time { return h.now },
		NewRunID: func() string { return "run_test" },

		PlainProgress: true,
	})
	require.NoError(t, err)
	return f.Run(context.Background())
}

func kinds(req relay.QuoteRequest) []planner.InstructionKind {
	out := make([]planner.InstructionKind, 0, len(req.Instructions))
	for _, inst := range req.Instructions {
		out = append(out, inst.Kind)
	}
	return out
}

func TestRunLocalSameChain(t *testing.T) {
	h := newHarness(t, config.NetworkLocal, config.DirectionSameChain)
	h.base.set(id.SymbolUSDC, "2000", "999.95").set(id.SymbolAUSDC, "0", "1000")

	got, err := h.run(t)
	require.NoError(t, err)

	assert.Empty(t, h.prompter.confirms, "local runs never ask for confirmation")
	require.Len(t, h.relay.quotes, 1)
	quote := h.relay.quotes[0]
	assert.Equal(t, []planner.InstructionKind{planner.KindApprove, planner.KindSupply, planner.KindTransfer}, kinds(quote))
	assert.Equal(t, testBlockTime.Unix(), quote.LowerBoundTimestamp)
	assert.Equal(t, int64(120), quote.UpperBoundTimestamp-quote.LowerBoundTimestamp)

	require.Len(t, h.trigger.requests, 1)
	trigger := h.trigger.requests[0]
	assert.Equal(t, int64(1_000_050_000), trigger.Amount.Int64())
	assert.Equal(t, testSmartBase, trigger.Spender)
	assert.Equal(t, testQuoteHash, trigger.QuoteHash)
	assert.Equal(t, 1, h.relay.executes)
	assert.Equal(t, trigger.ChainID, h.relay.trigger.ChainID)

	assert.Equal(t, string(execution.RunStatusConfirmed), got.Status)
	assert.Equal(t, "run_test", got.RunID)
	assert.Empty(t, got.ExplorerURL)
	assert.Len(t, got.Deltas, 2)
	assert.Equal(t, "successfully minted [1000] aUSDC from Aave on Base with one supertransaction", got.Message)
	assert.Equal(t, []execution.RunStatus{
		execution.RunStatusPendingSubmit, execution.RunStatusSubmitted, execution.RunStatusConfirmed,
	}, h.journal.statuses())
	assert.Contains(t, h.console.String(), "hash: 0xsupertx")
}

func TestRunCrossChain(t *testing.T) {
	h := newHarness(t, config.NetworkLocal, config.DirectionBaseToOp)
	h.base.set(id.SymbolUSDC, "50", "48.95")
	h.op.set(id.SymbolUSDC, "0", "0.8")

	got, err := h.run(t)
	require.NoError(t, err)

	require.Len(t, h.relay.quotes, 1)
	quote := h.relay.quotes[0]
	assert.Equal(t, []planner.InstructionKind{planner.KindBridge, planner.KindTransfer}, kinds(quote))
	assert.Equal(t, int64(300), quote.UpperBoundTimestamp-quote.LowerBoundTimestamp)
	require.NotNil(t, quote.Instructions[0].Bridge)
	assert.Equal(t, "1000000", quote.Instructions[0].Bridge.Amount)
	assert.Equal(t, int64(10), quote.Instructions[1].ChainID)
	require.Len(t, quote.Accounts, 2)

	assert.Equal(t, int64(8453), h.trigger.requests[0].ChainID)
	assert.Equal(t, "successfully transferred [0.8] USDC from Base to Optimism with one supertransaction", got.Message)
}

func TestRunMainnetAsksOnce(t *testing.T) {
	h := newHarness(t, config.NetworkMainnet, config.DirectionSameChain)
	h.base.set(id.SymbolUSDC, "10", "9.92").set(id.SymbolAUSDC, "0", "0.03")

	got, err := h.run(t)
	require.NoError(t, err)
	assert.Len(t, h.prompter.confirms, 1)
	assert.Contains(t, h.prompter.confirms[0], "0.05")
	assert.Equal(t, "https://meescan.biconomy.io/details/0xsupertx", got.ExplorerURL)
}

func TestRunMainnetDeclineEndsCleanly(t *testing.T) {
	h := newHarness(t, config.NetworkMainnet, config.DirectionSameChain)
	h.base.set(id.SymbolUSDC, "10")
	h.prompter.proceed = false

	got, err := h.run(t)
	require.NoError(t, err)
	assert.True(t, got.Declined)
	assert.Equal(t, StatusDeclined, got.Status)
	assert.Equal(t, DeclineMessage, got.Message)
	assert.Len(t, h.prompter.confirms, 1)
	assert.Empty(t, h.trigger.requests)
	assert.Zero(t, h.relay.executes)
	assert.Empty(t, h.journal.runs)
	assert.Contains(t, h.console.String(), DeclineMessage)
}

func TestRunBalanceGuardStopsBeforeSubmission(t *testing.T) {
	h := newHarness(t, config.NetworkMainnet, config.DirectionSameChain)
	h.base.set(id.SymbolUSDC, "0.2")
	h.prompter.amount = "0.1"
	h.relay.fee = "150000"

	_, err := h.run(t)
	require.Error(t, err)
	assert.Equal(t, clierr.CodeInsufficientFunds, clierr.CodeOf(err))
	assert.Empty(t, h.prompter.confirms)
	assert.Empty(t, h.trigger.requests)
	assert.Zero(t, h.relay.executes)
	assert.Empty(t, h.journal.runs)
}

func TestRunStaleQuoteFails(t *testing.T) {
	h := newHarness(t, config.NetworkLocal, config.DirectionSameChain)
	h.base.set(id.SymbolUSDC, "2000")
	h.now = testBlockTime.Add(121 * time.Second)

	got, err := h.run(t)
	require.Error(t, err)
	assert.Equal(t, clierr.CodeStale, clierr.CodeOf(err))
	assert.Equal(t, string(execution.RunStatusFailed), got.Status)
	assert.Empty(t, h.trigger.requests)
	assert.Zero(t, h.relay.executes)
	assert.Equal(t, []execution.RunStatus{execution.RunStatusPendingSubmit, execution.RunStatusFailed}, h.journal.statuses())
}

func TestRunShowsRelayStatusWhileWaiting(t *testing.T) {
	h := newHarness(t, config.NetworkLocal, config.DirectionSameChain)
	h.base.set(id.SymbolUSDC, "2000")
	h.relay.polls = []relay.Receipt{
		{TransactionStatus: "PENDING"},
		{TransactionStatus: "PENDING"},
	}

	_, err := h.run(t)
	require.NoError(t, err)
	text := h.console.String()
	assert.Equal(t, 1, strings.Count(text, "PENDING"))
	assert.Contains(t, text, "status [MINED_SUCCESS]")
}

func TestRunConfirmationTimeout(t *testing.T) {
	h := newHarness(t, config.NetworkLocal, config.DirectionSameChain)
	h.base.set(id.SymbolUSDC, "2000")
	h.relay.receipt = relay.Receipt{TransactionStatus: "PENDING"}
	h.relay.receiptErr = clierr.New(clierr.CodeTimeout, "timed out waiting for supertransaction")

	got, err := h.run(t)
	require.Error(t, err)
	assert.Equal(t, clierr.CodeTimeout, clierr.CodeOf(err))
	assert.Equal(t, string(execution.RunStatusTimedOut), got.Status)
	require.NotEmpty(t, h.journal.runs)
	last := h.journal.runs[len(h.journal.runs)-1]
	assert.Equal(t, execution.RunStatusTimedOut, last.Status)
	assert.Equal(t, "PENDING", last.RelayStatus)
	assert.Equal(t, "0xsupertx", last.SupertxHash)
}

func TestRunFailedSupertransaction(t *testing.T) {
	h := newHarness(t, config.NetworkLocal, config.DirectionSameChain)
	h.base.set(id.SymbolUSDC, "2000")
	h.relay.receipt = relay.Receipt{TransactionStatus: "MINED_FAIL"}

	got, err := h.run(t)
	require.Error(t, err)
	assert.Equal(t, clierr.CodeExecutionFailed, clierr.CodeOf(err))
	assert.Equal(t, string(execution.RunStatusFailed), got.Status)
	assert.Equal(t, execution.RunStatusFailed, h.journal.runs[len(h.journal.runs)-1].Status)
}

func TestNewRequiresReadersForEveryChain(t *testing.T) {
	wf, err := config.ResolveWorkflow(config.NetworkLocal, config.DirectionBaseToOp, config.WorkflowOverrides{})
	require.NoError(t, err)
	_, err = New(Config{
		Workflow: wf,
		Account:  account.Account{EOA: testEOA, Smart: map[int64]common.Address{8453: testSmartBase, 10: testSmartOp}},
		Readers:  map[int64]ChainReader{8453: newFakeReader(id.Base)},
		Relay:    &fakeRelay{},
		Trigger:  &fakeTrigger{},
		Prompter: &fakePrompter{},
	})
	require.Error(t, err)
	assert.Equal(t, clierr.CodeConfig, clierr.CodeOf(err))
}

func TestTakeSnapshotAndDeltas(t *testing.T) {
	base := newFakeReader(id.Base).set(id.SymbolUSDC, "10.5", "7.25")
	base.deployed = true
	readers := map[int64]ChainReader{8453: base}
	acct := account.Account{EOA: testEOA, Smart: map[int64]common.Address{8453: testSmartBase}}
	keys := []BalanceKey{{ChainID: 8453, Role: RoleEOA, Token: id.SymbolUSDC}}

	before, err := TakeSnapshot(context.Background(), readers, acct, keys, true)
	require.NoError(t, err)
	assert.True(t, before.Deployed[8453])
	after, err := TakeSnapshot(context.Background(), readers, acct, keys, false)
	require.NoError(t, err)
	assert.Empty(t, after.Deployed)

	deltas := Deltas(before, after)
	require.Len(t, deltas, 1)
	assert.Equal(t, "Base", deltas[0].Chain)
	assert.Equal(t, "-3.25", deltas[0].Delta)
	assert.Equal(t, "10.5", deltas[0].Before)
}
