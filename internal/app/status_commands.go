package app

import (
	"context"
	"strings"
	"time"

	"github.com/ggonzalez94/meeflow/internal/config"
	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/execution"
	"github.com/ggonzalez94/meeflow/internal/model"
	"github.com/ggonzalez94/meeflow/internal/registry"
	"github.com/ggonzalez94/meeflow/internal/relay"
	"github.com/spf13/cobra"
)

func (s *runtimeState) newStatusCommand() *cobra.Command {
	var (
		hash string
		wait time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Look up a supertransaction on the relay explorer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hash = strings.TrimSpace(hash)
			if hash == "" {
				return clierr.New(clierr.CodeUsage, "--hash is required")
			}
			network := strings.ToLower(strings.TrimSpace(s.settings.Network))
			if network == "" {
				network = config.NetworkMainnet
			}
			if network != config.NetworkLocal && network != config.NetworkMainnet {
				return clierr.New(clierr.CodeUsage, "network must be local or mainnet")
			}
			s.lastNetwork = network

			client, err := s.newRelayClient(network)
			if err != nil {
				return err
			}
			var receipt relay.Receipt
			if wait > 0 {
				ctx, cancel := context.WithTimeout(cmd.Context(), wait)
				defer cancel()
				receipt, err = client.WaitForReceipt(ctx, hash, nil)
			} else {
				receipt, err = client.Status(cmd.Context(), hash)
			}
			if err != nil {
				return err
			}
			status := model.SupertxStatus{
				Hash:     receipt.Hash,
				Status:   receipt.TransactionStatus,
				Terminal: receipt.Terminal(),
				UserOps:  receipt.UserOpStatuses(),
			}
			if network == config.NetworkMainnet {
				status.ExplorerURL = registry.ExplorerLink(receipt.Hash)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), status, nil)
		},
	}
	cmd.Flags().StringVar(&hash, "hash", "", "Supertransaction hash")
	cmd.Flags().DurationVar(&wait, "wait", 0, "Poll until the supertransaction is terminal, up to this long")
	return cmd
}

func (s *runtimeState) newHistoryCommand() *cobra.Command {
	var (
		status string
		limit  int
		runID  string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List runs recorded in the local run journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.journal == nil {
				return clierr.New(clierr.CodeUsage, "run journal is disabled; pass --journal or set MEEFLOW_JOURNAL=true")
			}
			path := trimRootPath(cmd.CommandPath())
			if strings.TrimSpace(runID) != "" {
				run, err := s.journal.Get(strings.TrimSpace(runID))
				if err != nil {
					return clierr.Wrap(clierr.CodeUsage, "read run", err)
				}
				return s.emitSuccess(path, run, nil)
			}
			if status != "" && !knownRunStatus(status) {
				return clierr.New(clierr.CodeUsage, "unknown run status "+status)
			}
			runs, err := s.journal.List(status, limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list runs", err)
			}
			return s.emitSuccess(path, runs, nil)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only runs in this status")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	cmd.Flags().StringVar(&runID, "run-id", "", "Show a single run")
	return cmd
}

func knownRunStatus(v string) bool {
	switch execution.RunStatus(strings.ToUpper(strings.TrimSpace(v))) {
	case execution.RunStatusPendingSubmit, execution.RunStatusSubmitted, execution.RunStatusConfirmed,
		execution.RunStatusFailed, execution.RunStatusTimedOut:
		return true
	}
	return false
}
