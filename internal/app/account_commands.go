package app

import (
	"strconv"

	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/execution/signer"
	"github.com/ggonzalez94/meeflow/internal/flow"
	"github.com/ggonzalez94/meeflow/internal/id"
	"github.com/ggonzalez94/meeflow/internal/model"
	"github.com/spf13/cobra"
)

// accountBalances are the balances shown by the account command.
var accountBalances = []flow.BalanceKey{
	{ChainID: id.Base.EVMChainID, Role: flow.RoleEOA, Token: id.SymbolUSDC},
	{ChainID: id.Base.EVMChainID, Role: flow.RoleEOA, Token: id.SymbolAUSDC},
	{ChainID: id.Optimism.EVMChainID, Role: flow.RoleEOA, Token: id.SymbolUSDC},
	{ChainID: id.Base.EVMChainID, Role: flow.RoleSmartAccount, Token: id.SymbolUSDC},
	{ChainID: id.Optimism.EVMChainID, Role: flow.RoleSmartAccount, Token: id.SymbolUSDC},
}

func (s *runtimeState) newAccountCommand() *cobra.Command {
	var skipBalances bool
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Show the signing EOA, its smart accounts and balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			network, err := s.resolveNetwork()
			if err != nil {
				return err
			}
			txSigner, err := s.loadSigner()
			if err != nil {
				return err
			}
			chains := []id.Chain{id.Base, id.Optimism}
			endpoints, err := s.rpcEndpoints(network, chains)
			if err != nil {
				return err
			}
			readers, err := dialReaders(ctx, chains, endpoints)
			if err != nil {
				return err
			}
			defer closeReaders(readers)

			acct, err := deriveAccount(ctx, txSigner, readers)
			if err != nil {
				return err
			}
			byChain := make(map[int64]flow.ChainReader, len(readers))
			for _, r := range readers {
				byChain[r.Chain().EVMChainID] = r
			}
			keys := accountBalances
			if skipBalances {
				keys = []flow.BalanceKey{
					{ChainID: id.Base.EVMChainID, Role: flow.RoleSmartAccount, Token: id.SymbolUSDC},
					{ChainID: id.Optimism.EVMChainID, Role: flow.RoleSmartAccount, Token: id.SymbolUSDC},
				}
			}
			snap, err := flow.TakeSnapshot(ctx, byChain, acct, keys, true)
			if err != nil {
				return err
			}

			info := model.AccountInfo{EOA: acct.EOA.Hex()}
			for _, c := range chains {
				addr, ok := acct.SmartAccount(c.EVMChainID)
				if !ok {
					return clierr.New(clierr.CodeInternal, "missing smart account on "+c.Name)
				}
				info.SmartAccounts = append(info.SmartAccounts, model.SmartAccountInfo{
					ChainID:  strconv.FormatInt(c.EVMChainID, 10),
					Chain:    c.Name,
					Address:  addr.Hex(),
					Deployed: snap.Deployed[c.EVMChainID],
				})
			}
			if !skipBalances {
				info.Balances = snap.Entries()
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), info, nil)
		},
	}
	cmd.Flags().BoolVar(&skipBalances, "no-balances", false, "Only derive addresses and deployment state")
	return cmd
}

func (s *runtimeState) newKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a fresh signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, addr, err := signer.GenerateKey()
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "generate key", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.KeygenResult{
				PrivateKey: key,
				Address:    addr.Hex(),
			}, []string{"store the private key securely; it is printed only once"})
		},
	}
}
