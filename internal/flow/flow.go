package flow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/meeflow/internal/account"
	"github.com/ggonzalez94/meeflow/internal/config"
	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/execution"
	"github.com/ggonzalez94/meeflow/internal/execution/planner"
	"github.com/ggonzalez94/meeflow/internal/id"
	"github.com/ggonzalez94/meeflow/internal/model"
	"github.com/ggonzalez94/meeflow/internal/prompt"
	"github.com/ggonzalez94/meeflow/internal/registry"
	"github.com/ggonzalez94/meeflow/internal/relay"
	"github.com/ggonzalez94/meeflow/internal/step"
	"github.com/sirupsen/logrus"
)

// DeclineMessage is printed when the user rejects the quoted fee.
const DeclineMessage = "user terminated the transaction, bye!"

// StatusDeclined marks a summary for a run the user declined before submission.
const StatusDeclined = "DECLINED"

// DefaultConfirmTimeout bounds the wait for a terminal relay status.
const DefaultConfirmTimeout = 10 * time.Minute

type Relay interface {
	GetQuote(ctx context.Context, req relay.QuoteRequest) (relay.Quote, error)
	Execute(ctx context.Context, quote relay.Quote, trigger relay.TriggerRef) (string, error)
	WaitForReceipt(ctx context.Context, hash string, observe func(relay.Receipt)) (relay.Receipt, error)
}

// TriggerSender broadcasts the trigger transaction on the source chain and
// returns once it is mined.
type TriggerSender interface {
	Send(ctx context.Context, req execution.TriggerRequest) (common.Hash, error)
}

// Journal records run state after every transition.
type Journal interface {
	Save(run execution.Run) error
}

type Config struct {
	Workflow config.Workflow
	Account  account.Account
	// Readers holds one reader per chain the workflow touches.
	Readers  map[int64]ChainReader
	Relay    Relay
	Trigger  TriggerSender
	Prompter prompt.Prompter
	// Journal is optional.
	Journal Journal
	// Console receives progress lines and the closing message.
	Console        io.Writer
	Logger         logrus.FieldLogger
	ConfirmTimeout time.Duration
	// AavePool skips pool discovery when set.
	AavePool string
	// PlainProgress prints progress as plain lines even on a terminal.
	PlainProgress bool
	Now      func() time.Time
	NewRunID func() string
}

// Flow runs one parameterized transfer from balance snapshot to summary.
type Flow struct {
	cfg   Config
	steps *step.Reporter
	wait  *step.Reporter
	log   logrus.FieldLogger
}

func New(cfg Config) (*Flow, error) {
	if cfg.Relay == nil || cfg.Trigger == nil || cfg.Prompter == nil {
		return nil, clierr.New(clierr.CodeInternal, "flow requires a relay, a trigger sender and a prompter")
	}
	for _, chain := range cfg.Workflow.Chains() {
		if _, ok := cfg.Readers[chain.EVMChainID]; !ok {
			return nil, clierr.New(clierr.CodeConfig, fmt.Sprintf("no rpc endpoint for %s", chain.Name))
		}
		if _, ok := cfg.Account.SmartAccount(chain.EVMChainID); !ok {
			return nil, missingSmartAccount(chain)
		}
	}
	if cfg.Console == nil {
		cfg.Console = io.Discard
	}
	if cfg.Logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		cfg.Logger = discard
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = execution.NewRunID
	}
	var progress []step.Option
	if cfg.PlainProgress {
		progress = append(progress, step.WithInteractive(false))
	}
	return &Flow{
		cfg:   cfg,
		steps: step.NewReporter(cfg.Console, progress...),
		wait:  step.NewReporter(cfg.Console, append(progress, step.WithSoftTimeout(cfg.ConfirmTimeout))...),
		log: cfg.Logger.WithFields(logrus.Fields{
			"network":   cfg.Workflow.Network,
			"direction": string(cfg.Workflow.Direction),
		}),
	}, nil
}

// Run executes the workflow once. A declined confirmation returns a summary
// marked Declined and a nil error.
func (f *Flow) Run(ctx context.Context) (model.RunSummary, error) {
	wf := f.cfg.Workflow
	summary := model.RunSummary{
		Network:     wf.Network,
		Direction:   string(wf.Direction),
		SourceChain: wf.Source.Name,
		DestChain:   wf.Destination.Name,
	}
	keys := TrackedBalances(wf)
	sourceKey := keys[0]

	s := f.steps.Start("reading balances")
	before, err := TakeSnapshot(ctx, f.cfg.Readers, f.cfg.Account, keys, true)
	if err != nil {
		s.Fail()
		return summary, err
	}
	s.Succeed(f.describeSnapshot(before)...)

	amount, err := NegotiateAmount(f.cfg.Prompter, ResolveBounds(wf, before.Balance(sourceKey)))
	if err != nil {
		return summary, err
	}
	summary.Amount = amount.Value.String()
	summary.AmountBaseUnits = amount.BaseUnits.String()

	bundle, err := step.Run(f.steps, "building instructions", func(*step.Step) (planner.Bundle, error) {
		return f.buildBundle(ctx, amount)
	})
	if err != nil {
		return summary, err
	}

	s = f.steps.Start("fetching quote")
	quote, fee, err := f.quote(ctx, bundle)
	if err != nil {
		s.Fail()
		return summary, err
	}
	s.Succeed(fmt.Sprintf("execution fee: %s USDC ($%s)", fee.Value, fee.USD))
	summary.QuoteHash = quote.Hash
	summary.Fee = fee.Value.String()

	if err := CheckBalanceGuard(before.Balance(sourceKey), amount.Value, fee.Value); err != nil {
		return summary, err
	}

	if wf.ConfirmRequired {
		proceed, err := f.cfg.Prompter.Confirm(fmt.Sprintf("proceed with the transaction? (fee: %s USDC, $%s)", fee.Value, fee.USD))
		if err != nil {
			return summary, err
		}
		if !proceed {
			fmt.Fprintln(f.cfg.Console, DeclineMessage)
			summary.Declined = true
			summary.Status = StatusDeclined
			summary.Message = DeclineMessage
			return summary, nil
		}
	}

	run := execution.NewRun(f.cfg.NewRunID(), wf.Network, string(wf.Direction), wf.Source.EVMChainID, wf.Destination.EVMChainID)
	run.Owner = bundle.Owner
	run.SmartAccount = bundle.SmartAccount
	run.AmountBaseUnits = amount.BaseUnits.String()
	run.FeeBaseUnits = fee.BaseUnits.String()
	run.QuoteHash = quote.Hash
	summary.RunID = run.RunID
	log := f.log.WithField("run_id", run.RunID)
	f.save(log, run)

	if quote.Expired(f.cfg.Now()) {
		err := clierr.New(clierr.CodeStale, fmt.Sprintf("quote %s expired at %s", quote.Hash, quote.UpperBound().Format(time.RFC3339)))
		return f.abort(log, &run, summary, err)
	}

	s = f.steps.Start("executing tx")
	triggerHash, supertx, err := f.submit(ctx, quote, amount, fee)
	run.TriggerTxHash = triggerHash
	summary.TriggerTxHash = triggerHash
	if err != nil {
		s.Fail()
		return f.abort(log, &run, summary, err)
	}
	run.SupertxHash = supertx
	summary.Hash = supertx
	if err := f.advance(log, &run, execution.RunStatusSubmitted); err != nil {
		s.Fail()
		return summary, err
	}
	if wf.Network == config.NetworkMainnet {
		summary.ExplorerURL = registry.ExplorerLink(supertx)
		s.Succeed(summary.ExplorerURL)
	} else {
		s.Succeed("hash: " + supertx)
	}
	log.WithField("supertx", supertx).Info("supertransaction submitted")

	s = f.wait.Start("waiting for confirmation")
	waitCtx, cancel := context.WithTimeout(ctx, f.cfg.ConfirmTimeout)
	receipt, err := f.cfg.Relay.WaitForReceipt(waitCtx, supertx, func(r relay.Receipt) {
		s.Update(r.TransactionStatus)
	})
	cancel()
	run.RelayStatus = receipt.TransactionStatus
	summary.RelayStatus = receipt.TransactionStatus
	switch {
	case err != nil && isTimeout(err):
		s.Fail()
		if clierr.CodeOf(err) != clierr.CodeTimeout {
			err = clierr.Wrap(clierr.CodeTimeout, "wait for supertransaction "+supertx, err)
		}
		run.Error = err.Error()
		if terr := f.advance(log, &run, execution.RunStatusTimedOut); terr != nil {
			return summary, terr
		}
		summary.Status = string(run.Status)
		return summary, err
	case err != nil:
		s.Fail()
		return f.abort(log, &run, summary, err)
	case receipt.Outcome() == relay.OutcomeFailed:
		s.Fail()
		return f.abort(log, &run, summary, clierr.New(clierr.CodeExecutionFailed, fmt.Sprintf("supertransaction %s failed with status %s", supertx, receipt.TransactionStatus)))
	}
	if s.TimedOut() {
		log.WithField("supertx", supertx).Warn("confirmation arrived after the wait window")
	}
	s.Succeed(fmt.Sprintf("status [%s]", receipt.TransactionStatus))
	if err := f.advance(log, &run, execution.RunStatusConfirmed); err != nil {
		return summary, err
	}
	summary.Status = string(run.Status)

	after, err := step.Run(f.steps, "reading balances", func(*step.Step) (Snapshot, error) {
		return TakeSnapshot(ctx, f.cfg.Readers, f.cfg.Account, keys, false)
	})
	if err != nil {
		return summary, err
	}
	summary.Deltas = Deltas(before, after)
	summary.Message = f.successMessage(before, after)
	fmt.Fprintln(f.cfg.Console, summary.Message)
	return summary, nil
}

func (f *Flow) buildBundle(ctx context.Context, amount Amount) (planner.Bundle, error) {
	wf := f.cfg.Workflow
	smart, _ := f.cfg.Account.SmartAccount(wf.Source.EVMChainID)
	var (
		bundle planner.Bundle
		err    error
	)
	if wf.Direction.IsCrossChain() {
		bundle, err = planner.BuildCrossChain(planner.CrossChainRequest{
			Source:          wf.Source,
			Destination:     wf.Destination,
			Owner:           f.cfg.Account.EOA,
			SmartAccount:    smart,
			AmountBaseUnits: amount.BaseUnits,
			TransferRatio:   wf.TransferRatio,
		})
	} else {
		bundle, err = planner.BuildSameChain(ctx, f.cfg.Readers[wf.Source.EVMChainID], planner.SameChainRequest{
			Chain:           wf.Source,
			Owner:           f.cfg.Account.EOA,
			SmartAccount:    smart,
			AmountBaseUnits: amount.BaseUnits,
			PoolAddress:     f.cfg.AavePool,
		})
	}
	if err != nil {
		return planner.Bundle{}, err
	}
	if err := planner.ValidateBundle(bundle); err != nil {
		return planner.Bundle{}, err
	}
	f.log.WithField("instructions", bundle.Kinds()).Debug("bundle assembled")
	return bundle, nil
}

// quote prices bundle inside [now, now+W], now being the latest source block time.
func (f *Flow) quote(ctx context.Context, bundle planner.Bundle) (relay.Quote, Fee, error) {
	wf := f.cfg.Workflow
	lower, err := f.cfg.Readers[wf.Source.EVMChainID].LatestBlockTimestamp(ctx)
	if err != nil {
		return relay.Quote{}, Fee{}, err
	}
	accounts := make([]relay.AccountRef, 0, 2)
	for _, chain := range wf.Chains() {
		smart, _ := f.cfg.Account.SmartAccount(chain.EVMChainID)
		accounts = append(accounts, relay.AccountRef{ChainID: chain.EVMChainID, Address: smart.Hex()})
	}
	quote, err := f.cfg.Relay.GetQuote(ctx, relay.NewQuoteRequest(bundle, accounts, lower, wf.QuoteWindow()))
	if err != nil {
		return relay.Quote{}, Fee{}, err
	}
	f.log.WithFields(logrus.Fields{
		"quote":       quote.Hash,
		"valid_from":  quote.LowerBound().Format(time.RFC3339),
		"valid_until": quote.UpperBound().Format(time.RFC3339),
	}).Debug("quote received")
	fee, err := QuoteFee(quote)
	if err != nil {
		return relay.Quote{}, Fee{}, err
	}
	return quote, fee, nil
}

// submit funds the smart account with amount + fee through the trigger
// transaction and hands the quote to the relay.
func (f *Flow) submit(ctx context.Context, quote relay.Quote, amount Amount, fee Fee) (string, string, error) {
	wf := f.cfg.Workflow
	smart, _ := f.cfg.Account.SmartAccount(wf.Source.EVMChainID)
	usdc := id.MustToken(wf.Source, id.SymbolUSDC)
	total := new(big.Int).Add(amount.BaseUnits, fee.BaseUnits)

	txHash, err := f.cfg.Trigger.Send(ctx, execution.TriggerRequest{
		ChainID:   wf.Source.EVMChainID,
		Token:     common.HexToAddress(usdc.Address),
		Spender:   smart,
		Amount:    total,
		QuoteHash: quote.Hash,
	})
	triggerHash := ""
	if txHash != (common.Hash{}) {
		triggerHash = txHash.Hex()
	}
	if err != nil {
		return triggerHash, "", err
	}
	supertx, err := f.cfg.Relay.Execute(ctx, quote, relay.TriggerRef{ChainID: wf.Source.EVMChainID, TxHash: triggerHash})
	if err != nil {
		return triggerHash, "", err
	}
	return triggerHash, supertx, nil
}

func (f *Flow) advance(log logrus.FieldLogger, run *execution.Run, next execution.RunStatus) error {
	if err := run.Transition(next); err != nil {
		return err
	}
	f.save(log, *run)
	return nil
}

func (f *Flow) abort(log logrus.FieldLogger, run *execution.Run, summary model.RunSummary, cause error) (model.RunSummary, error) {
	run.Fail(cause)
	f.save(log, *run)
	summary.Status = string(run.Status)
	return summary, cause
}

func (f *Flow) save(log logrus.FieldLogger, run execution.Run) {
	if f.cfg.Journal == nil {
		return
	}
	if err := f.cfg.Journal.Save(run); err != nil {
		log.WithError(err).Warn("could not journal run")
	}
}

func (f *Flow) describeSnapshot(snap Snapshot) []string {
	var lines []string
	lines = append(lines, "eoa: "+f.cfg.Account.EOA.Hex())
	for _, chain := range f.cfg.Workflow.Chains() {
		smart, _ := f.cfg.Account.SmartAccount(chain.EVMChainID)
		lines = append(lines, fmt.Sprintf("smart account on %s: %s (deployed: %t)", chain.Name, smart.Hex(), snap.Deployed[chain.EVMChainID]))
	}
	for _, key := range snap.Keys {
		lines = append(lines, fmt.Sprintf("%s %s: %s", chainName(key.ChainID), key.Token, snap.Balance(key)))
	}
	return lines
}

func (f *Flow) successMessage(before, after Snapshot) string {
	wf := f.cfg.Workflow
	if wf.Direction.IsCrossChain() {
		key := BalanceKey{ChainID: wf.Destination.EVMChainID, Role: RoleEOA, Token: id.SymbolUSDC}
		return fmt.Sprintf("successfully transferred [%s] USDC from %s to %s with one supertransaction",
			after.Balance(key).Sub(before.Balance(key)), wf.Source.Name, wf.Destination.Name)
	}
	key := BalanceKey{ChainID: wf.Source.EVMChainID, Role: RoleEOA, Token: id.SymbolAUSDC}
	return fmt.Sprintf("successfully minted [%s] aUSDC from Aave on %s with one supertransaction",
		after.Balance(key).Sub(before.Balance(key)), wf.Source.Name)
}

func isTimeout(err error) bool {
	return clierr.CodeOf(err) == clierr.CodeTimeout || errors.Is(err, context.DeadlineExceeded)
}
