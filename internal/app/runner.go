package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/ggonzalez94/meeflow/internal/config"
	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/execution"
	"github.com/ggonzalez94/meeflow/internal/logging"
	"github.com/ggonzalez94/meeflow/internal/model"
	"github.com/ggonzalez94/meeflow/internal/out"
	"github.com/ggonzalez94/meeflow/internal/prompt"
	"github.com/ggonzalez94/meeflow/internal/schema"
	"github.com/ggonzalez94/meeflow/internal/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	// prompter is nil when no interactive terminal is attached.
	prompter prompt.Prompter
	now      func() time.Time
}

func NewRunner() *Runner {
	r := NewRunnerWithWriters(os.Stdout, os.Stderr)
	r.prompter = prompt.Terminal{Stdin: os.Stdin, Stdout: os.Stderr}
	return r
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	root        *cobra.Command
	flags       config.GlobalFlags
	settings    config.Settings
	logger      *logrus.Logger
	journal     *execution.Store
	lastCommand string
	lastNetwork string
}

func (r *Runner) Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.ExecuteContext(ctx)
	err = normalizeRunError(err)
	if state.journal != nil {
		_ = state.journal.Close()
	}
	if err == nil {
		return 0
	}
	state.renderError("", err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Move USDC through an account-abstraction relay in one supertransaction",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			s.lastCommand = trimRootPath(cmd.CommandPath())
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeConfig, "load configuration", err)
			}
			s.settings = settings
			s.lastNetwork = settings.Network

			logger, err := logging.New(s.runner.stderr, settings.LogLevel, settings.LogFormat)
			if err != nil {
				return clierr.Wrap(clierr.CodeConfig, "configure logging", err)
			}
			s.logger = logger

			if settings.JournalEnabled && s.journal == nil {
				store, err := execution.OpenStore(settings.JournalPath, settings.JournalLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open run journal", err)
				}
				s.journal = store
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.SetGlobalNormalizationFunc(normalizeFlagName)
	pf := cmd.PersistentFlags()
	pf.BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	pf.BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	pf.StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	pf.BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	pf.StringVar(&s.flags.Timeout, "timeout", "", "Relay request timeout")
	pf.IntVar(&s.flags.Retries, "retries", -1, "Retries per relay request")
	pf.StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	pf.StringVar(&s.flags.EnvFile, "env-file", "", "Path to .env file (default ./.env)")
	pf.StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	pf.StringVar(&s.flags.LogFormat, "log-format", "", "Log format (text|json)")
	pf.StringVar(&s.flags.Network, "network", "", "Network (local|mainnet)")
	pf.StringVar(&s.flags.RPCProvider, "rpc-provider", "", "RPC provider on mainnet (public|alchemy)")
	pf.StringVar(&s.flags.BaseRPCURL, "rpc-url-base", "", "Base RPC endpoint override")
	pf.StringVar(&s.flags.OpRPCURL, "rpc-url-op", "", "Optimism RPC endpoint override")
	pf.StringVar(&s.flags.RelayURL, "relay-url", "", "Relay (MEE node) base URL override")
	pf.StringVar(&s.flags.PrivateKey, "private-key", "", "Hex signing key (overrides MEEFLOW_PRIVATE_KEY and KEY)")
	pf.BoolVar(&s.flags.Journal, "journal", false, "Record runs in the local run journal")
	for flag, env := range map[string]string{
		"timeout":      "MEEFLOW_TIMEOUT",
		"retries":      "MEEFLOW_RETRIES",
		"log-level":    "MEEFLOW_LOG_LEVEL",
		"log-format":   "MEEFLOW_LOG_FORMAT",
		"network":      "MEEFLOW_NETWORK",
		"rpc-provider": "MEEFLOW_RPC_PROVIDER",
		"rpc-url-base": "MEEFLOW_BASE_RPC_URL",
		"rpc-url-op":   "MEEFLOW_OP_RPC_URL",
		"relay-url":    "MEEFLOW_RELAY_URL",
		"private-key":  "MEEFLOW_PRIVATE_KEY",
		"journal":      "MEEFLOW_JOURNAL",
	} {
		schema.SetEnv(pf, flag, env)
	}

	cmd.AddCommand(s.newRunCommand())
	cmd.AddCommand(s.newAccountCommand())
	cmd.AddCommand(s.newStatusCommand())
	cmd.AddCommand(s.newHistoryCommand())
	cmd.AddCommand(s.newKeygenCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Network:   s.lastNetwork,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.CodeOf(err)
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Error()
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    int(code),
			Type:    code.Type(),
			Message: message,
		},
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Network:   s.lastNetwork,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

// normalizeFlagName accepts snake_case spellings such as --rpc_url_base.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
