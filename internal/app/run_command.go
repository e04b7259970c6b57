package app

import (
	"github.com/ggonzalez94/meeflow/internal/config"
	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/execution"
	"github.com/ggonzalez94/meeflow/internal/flow"
	"github.com/ggonzalez94/meeflow/internal/prompt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type runOptions struct {
	direction     string
	amount        string
	feeReserve    string
	minAmount     string
	maxAmount     string
	defaultAmount string
	quoteWindow   int64
	transferRatio string
	aavePool      string
}

func (o runOptions) overrides() config.WorkflowOverrides {
	return config.WorkflowOverrides{
		FeeReserve:         o.feeReserve,
		MinAmount:          o.minAmount,
		MaxAmount:          o.maxAmount,
		DefaultAmount:      o.defaultAmount,
		QuoteWindowSeconds: o.quoteWindow,
		TransferRatio:      o.transferRatio,
	}
}

func (s *runtimeState) newRunCommand() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Quote, confirm and execute one USDC transfer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			network, err := s.resolveNetwork()
			if err != nil {
				return err
			}
			direction, err := s.resolveDirection(opts.direction)
			if err != nil {
				return err
			}
			wf, err := config.ResolveWorkflow(network, direction, s.settings.Workflow.Merge(opts.overrides()))
			if err != nil {
				return clierr.Wrap(clierr.CodeConfig, "resolve workflow", err)
			}
			prompter := s.runner.prompter
			if opts.amount != "" {
				prompter = prompt.WithAmount(prompter, opts.amount)
			}
			if prompter == nil {
				return clierr.New(clierr.CodeUsage, "--amount is required without an interactive terminal")
			}

			txSigner, err := s.loadSigner()
			if err != nil {
				return err
			}
			relayClient, err := s.newRelayClient(network)
			if err != nil {
				return err
			}
			chains := wf.Chains()
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
				s.logger.WithFields(logrus.Fields{
					"chain_id": r.Chain().EVMChainID,
					"rpc":      r.RPCURL(),
				}).Debug("rpc connected")
			}
			s.logger.WithFields(logrus.Fields{
				"eoa":   acct.EOA.Hex(),
				"relay": relayClient.BaseURL(),
			}).Debug("account derived")

			triggerOpts := execution.DefaultTriggerOptions()
			if s.settings.PollInterval > 0 {
				triggerOpts.PollInterval = s.settings.PollInterval
			}
			if s.settings.TriggerTimeout > 0 {
				triggerOpts.Timeout = s.settings.TriggerTimeout
			}
			if s.settings.GasMultiplier > 1 {
				triggerOpts.GasMultiplier = s.settings.GasMultiplier
			}
			trigger := execution.NewTriggerSender(readers[0].Client(), txSigner, triggerOpts)

			cfg := flow.Config{
				Workflow:       wf,
				Account:        acct,
				Readers:        byChain,
				Relay:          relayClient,
				Trigger:        trigger,
				Prompter:       prompter,
				Console:        s.runner.stderr,
				Logger:         s.logger,
				ConfirmTimeout: s.settings.ConfirmTimeout,
				AavePool:       opts.aavePool,
				PlainProgress:  s.logger.IsLevelEnabled(logrus.InfoLevel),
				Now:            s.runner.now,
			}
			if s.journal != nil {
				cfg.Journal = s.journal
			}
			runner, err := flow.New(cfg)
			if err != nil {
				return err
			}
			summary, err := runner.Run(ctx)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), summary, nil)
		},
	}
	cmd.Flags().StringVar(&opts.direction, "direction", "", "Flow direction (same-chain|base-to-op|op-to-base)")
	cmd.Flags().StringVar(&opts.amount, "amount", "", "USDC amount; skips the amount prompt")
	cmd.Flags().StringVar(&opts.feeReserve, "fee-reserve", "", "USDC kept back from the source balance for fees")
	cmd.Flags().StringVar(&opts.minAmount, "min-amount", "", "Minimum accepted amount")
	cmd.Flags().StringVar(&opts.maxAmount, "max-amount", "", "Optional cap on the amount")
	cmd.Flags().StringVar(&opts.defaultAmount, "default-amount", "", "Amount offered by the prompt")
	cmd.Flags().Int64Var(&opts.quoteWindow, "quote-window", 0, "Quote validity window in seconds")
	cmd.Flags().StringVar(&opts.transferRatio, "transfer-ratio", "", "Share of the bridged amount sent on to the EOA (0,1]")
	cmd.Flags().StringVar(&opts.aavePool, "aave-pool", "", "Aave pool address (skips provider discovery)")
	return cmd
}
