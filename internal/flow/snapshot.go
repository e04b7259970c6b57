package flow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/meeflow/internal/account"
	"github.com/ggonzalez94/meeflow/internal/config"
	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/id"
	"github.com/ggonzalez94/meeflow/internal/model"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	RoleEOA          = "eoa"
	RoleSmartAccount = "smart_account"
)

// ChainReader is the read side of one chain.
type ChainReader interface {
	Chain() id.Chain
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	ReadBalanceDecimal(ctx context.Context, token, owner common.Address) (decimal.Decimal, error)
	IsDeployed(ctx context.Context, addr common.Address) (bool, error)
	LatestBlockTimestamp(ctx context.Context) (time.Time, error)
}

// BalanceKey addresses one balance by chain, holder role and token symbol.
type BalanceKey struct {
	ChainID int64
	Role    string
	Token   string
}

// Snapshot is one read of the tracked balances. It is replaced, not updated.
type Snapshot struct {
	Keys     []BalanceKey
	Balances map[BalanceKey]decimal.Decimal
	Deployed map[int64]bool
}

func (s Snapshot) Balance(key BalanceKey) decimal.Decimal {
	return s.Balances[key]
}

// TrackedBalances lists the balances a run reports on: USDC and aUSDC on the
// source for same-chain runs, USDC on both ends for cross-chain runs.
func TrackedBalances(wf config.Workflow) []BalanceKey {
	if wf.Direction.IsCrossChain() {
		return []BalanceKey{
			{ChainID: wf.Source.EVMChainID, Role: RoleEOA, Token: id.SymbolUSDC},
			{ChainID: wf.Destination.EVMChainID, Role: RoleEOA, Token: id.SymbolUSDC},
		}
	}
	return []BalanceKey{
		{ChainID: wf.Source.EVMChainID, Role: RoleEOA, Token: id.SymbolUSDC},
		{ChainID: wf.Source.EVMChainID, Role: RoleEOA, Token: id.SymbolAUSDC},
	}
}

// TakeSnapshot reads every key concurrently and joins on all reads. With
// deployment set it also reads the smart-account deployment flag of each
// chain named by keys.
func TakeSnapshot(ctx context.Context, readers map[int64]ChainReader, acct account.Account, keys []BalanceKey, deployment bool) (Snapshot, error) {
	type balanceRead struct {
		reader ChainReader
		token  common.Address
		owner  common.Address
	}
	type deploymentRead struct {
		reader ChainReader
		smart  common.Address
	}

	reads := make([]balanceRead, len(keys))
	for i, key := range keys {
		reader, ok := readers[key.ChainID]
		if !ok {
			return Snapshot{}, clierr.New(clierr.CodeConfig, fmt.Sprintf("no rpc endpoint for chain %d", key.ChainID))
		}
		token, ok := id.KnownToken(reader.Chain().CAIP2, key.Token)
		if !ok {
			return Snapshot{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("%s is not registered on %s", key.Token, reader.Chain().Name))
		}
		owner, err := holder(acct, key)
		if err != nil {
			return Snapshot{}, err
		}
		reads[i] = balanceRead{reader: reader, token: common.HexToAddress(token.Address), owner: owner}
	}
	var chains []int64
	var checks []deploymentRead
	if deployment {
		chains = distinctChains(keys)
		for _, chainID := range chains {
			reader := readers[chainID]
			smart, ok := acct.SmartAccount(chainID)
			if !ok {
				return Snapshot{}, missingSmartAccount(reader.Chain())
			}
			checks = append(checks, deploymentRead{reader: reader, smart: smart})
		}
	}

	values := make([]decimal.Decimal, len(reads))
	deployed := make([]bool, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range reads {
		g.Go(func() error {
			v, err := r.reader.ReadBalanceDecimal(gctx, r.token, r.owner)
			if err != nil {
				return err
			}
			values[i] = v
			return nil
		})
	}
	for i, c := range checks {
		g.Go(func() error {
			v, err := c.reader.IsDeployed(gctx, c.smart)
			if err != nil {
				return err
			}
			deployed[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Keys:     append([]BalanceKey(nil), keys...),
		Balances: make(map[BalanceKey]decimal.Decimal, len(keys)),
		Deployed: make(map[int64]bool, len(chains)),
	}
	for i, key := range keys {
		snap.Balances[key] = values[i]
	}
	for i, chainID := range chains {
		snap.Deployed[chainID] = deployed[i]
	}
	return snap, nil
}

// Deltas reports after - before for every key of before, in key order.
func Deltas(before, after Snapshot) []model.BalanceDelta {
	out := make([]model.BalanceDelta, 0, len(before.Keys))
	for _, key := range before.Keys {
		b := before.Balance(key)
		a := after.Balance(key)
		out = append(out, model.BalanceDelta{
			ChainID: strconv.FormatInt(key.ChainID, 10),
			Chain:   chainName(key.ChainID),
			Role:    key.Role,
			Token:   key.Token,
			Before:  b.String(),
			After:   a.String(),
			Delta:   a.Sub(b).String(),
		})
	}
	return out
}

// Entries renders the snapshot balances in key order.
func (s Snapshot) Entries() []model.BalanceEntry {
	out := make([]model.BalanceEntry, 0, len(s.Keys))
	for _, key := range s.Keys {
		out = append(out, model.BalanceEntry{
			ChainID: strconv.FormatInt(key.ChainID, 10),
			Chain:   chainName(key.ChainID),
			Role:    key.Role,
			Token:   key.Token,
			Amount:  s.Balance(key).String(),
		})
	}
	return out
}

func holder(acct account.Account, key BalanceKey) (common.Address, error) {
	switch key.Role {
	case RoleEOA:
		return acct.EOA, nil
	case RoleSmartAccount:
		smart, ok := acct.SmartAccount(key.ChainID)
		if !ok {
			chain, _ := id.ChainByID(key.ChainID)
			return common.Address{}, missingSmartAccount(chain)
		}
		return smart, nil
	default:
		return common.Address{}, clierr.New(clierr.CodeInternal, "unknown balance role "+key.Role)
	}
}

func distinctChains(keys []BalanceKey) []int64 {
	seen := map[int64]bool{}
	var out []int64
	for _, key := range keys {
		if !seen[key.ChainID] {
			seen[key.ChainID] = true
			out = append(out, key.ChainID)
		}
	}
	return out
}

func chainName(chainID int64) string {
	if chain, ok := id.ChainByID(chainID); ok {
		return chain.Name
	}
	return strconv.FormatInt(chainID, 10)
}

func missingSmartAccount(chain id.Chain) error {
	return clierr.New(clierr.CodeValidation, fmt.Sprintf("cannot get smart account address on %s", chain.Name))
}
