package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/meeflow/internal/execution"
	"github.com/ggonzalez94/meeflow/internal/id"
	"github.com/ggonzalez94/meeflow/internal/relay"
	"github.com/shopspring/decimal"
)

var (
	testEOA       = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	testSmartBase = common.HexToAddress("0x00000000000000000000000000000000000000BB")
	testSmartOp   = common.HexToAddress("0x00000000000000000000000000000000000000BC")
	testPool      = "0x00000000000000000000000000000000000000CC"
	testQuoteHash = "0x" + strings.Repeat("ab", 32)
	testBlockTime = time.Unix(1_700_000_000, 0).UTC()
)

// fakeReader serves the first balance of a token before the first after-read
// switch and the second one afterwards.
type fakeReader struct {
	chain    id.Chain
	mu       sync.Mutex
	balances map[common.Address][]decimal.Decimal
	reads    map[common.Address]int
	deployed bool
}

func newFakeReader(chain id.Chain) *fakeReader {
	return &fakeReader{chain: chain, balances: map[common.Address][]decimal.Decimal{}, reads: map[common.Address]int{}}
}

func (r *fakeReader) set(symbol string, values ...string) *fakeReader {
	token := common.HexToAddress(id.MustToken(r.chain, symbol).Address)
	for _, v := range values {
		r.balances[token] = append(r.balances[token], decimal.RequireFromString(v))
	}
	return r
}

func (r *fakeReader) Chain() id.Chain { return r.chain }

func (r *fakeReader) Call(context.Context, common.Address, []byte) ([]byte, error) {
	return nil, errors.New("unexpected call")
}

func (r *fakeReader) ReadBalanceDecimal(_ context.Context, token, _ common.Address) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	values := r.balances[token]
	if len(values) == 0 {
		return decimal.Zero, nil
	}
	i := r.reads[token]
	r.reads[token]++
	if i >= len(values) {
		i = len(values) - 1
	}
	return values[i], nil
}

func (r *fakeReader) IsDeployed(context.Context, common.Address) (bool, error) {
	return r.deployed, nil
}

func (r *fakeReader) LatestBlockTimestamp(context.Context) (time.Time, error) {
	return testBlockTime, nil
}

type fakeRelay struct {
	mu         sync.Mutex
	fee        string
	quotes     []relay.QuoteRequest
	executes   int
	trigger    relay.TriggerRef
	receipt    relay.Receipt
	receiptErr error
	polls      []relay.Receipt
}

func (f *fakeRelay) GetQuote(_ context.Context, req relay.QuoteRequest) (relay.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes = append(f.quotes, req)
	fee := f.fee
	if fee == "" {
		fee = "50000"
	}
	return relay.Quote{
		Hash:                testQuoteHash,
		PaymentInfo:         relay.PaymentInfo{TokenWeiAmount: fee, TokenValue: "0.05"},
		LowerBoundTimestamp: req.LowerBoundTimestamp,
		UpperBoundTimestamp: req.UpperBoundTimestamp,
	}, nil
}

func (f *fakeRelay) Execute(_ context.Context, _ relay.Quote, trigger relay.TriggerRef) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executes++
	f.trigger = trigger
	return "0xsupertx", nil
}

func (f *fakeRelay) WaitForReceipt(_ context.Context, _ string, observe func(relay.Receipt)) (relay.Receipt, error) {
	for _, r := range f.polls {
		observe(r)
	}
	if f.receiptErr != nil {
		return f.receipt, f.receiptErr
	}
	if f.receipt.TransactionStatus == "" {
		return relay.Receipt{Hash: "0xsupertx", TransactionStatus: "MINED_SUCCESS"}, nil
	}
	return f.receipt, nil
}

type fakeTrigger struct {
	requests []execution.TriggerRequest
}

func (f *fakeTrigger) Send(_ context.Context, req execution.TriggerRequest) (common.Hash, error) {
	f.requests = append(f.requests, req)
	return common.HexToHash("0x01"), nil
}

type fakePrompter struct {
	amount   string
	proceed  bool
	amounts  int
	confirms []string
}

func (p *fakePrompter) Amount(_ string, def string) (string, error) {
	p.amounts++
	if p.amount == "" {
		return def, nil
	}
	return p.amount, nil
}

func (p *fakePrompter) Select(_ string, options []string) (string, error) {
	return options[0], nil
}

func (p *fakePrompter) Confirm(label string) (bool, error) {
	p.confirms = append(p.confirms, label)
	return p.proceed, nil
}

type fakeJournal struct {
	runs []execution.Run
}

func (j *fakeJournal) Save(run execution.Run) error {
	j.runs = append(j.runs, run)
	return nil
}

func (j *fakeJournal) statuses() []execution.RunStatus {
	out := make([]execution.RunStatus, 0, len(j.runs))
	for _, r := range j.runs {
		out = append(out, r.Status)
	}
	return out
}
