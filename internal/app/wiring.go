package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ggonzalez94/meeflow/internal/account"
	"github.com/ggonzalez94/meeflow/internal/chain"
	"github.com/ggonzalez94/meeflow/internal/config"
	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/execution/signer"
	"github.com/ggonzalez94/meeflow/internal/httpx"
	"github.com/ggonzalez94/meeflow/internal/id"
	"github.com/ggonzalez94/meeflow/internal/relay"
)

// resolveNetwork returns the configured network, asking for it when unset.
func (s *runtimeState) resolveNetwork() (string, error) {
	network := strings.ToLower(strings.TrimSpace(s.settings.Network))
	if network == "" {
		choice, err := s.choose("select the network", []string{config.NetworkLocal, config.NetworkMainnet})
		if err != nil {
			return "", err
		}
		network = choice
	}
	if network != config.NetworkLocal && network != config.NetworkMainnet {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("network must be %s or %s", config.NetworkLocal, config.NetworkMainnet))
	}
	s.lastNetwork = network
	return network, nil
}

// resolveDirection prefers the flag, then configuration, then a prompt.
func (s *runtimeState) resolveDirection(flagValue string) (config.Direction, error) {
	raw := strings.TrimSpace(flagValue)
	if raw == "" {
		raw = strings.TrimSpace(s.settings.Direction)
	}
	if raw == "" {
		options := make([]string, 0, len(config.Directions))
		for _, d := range config.Directions {
			options = append(options, string(d))
		}
		choice, err := s.choose("select the direction of the flow", options)
		if err != nil {
			return "", err
		}
		raw = choice
	}
	direction, err := config.ParseDirection(raw)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUsage, "resolve direction", err)
	}
	return direction, nil
}

func (s *runtimeState) choose(label string, options []string) (string, error) {
	if s.runner.prompter == nil {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("%s: no interactive terminal available, pass it as a flag", label))
	}
	return s.runner.prompter.Select(label, options)
}

// loadSigner resolves the signing key. A missing key is a configuration error
// raised before any network activity.
func (s *runtimeState) loadSigner() (*signer.KeySigner, error) {
	txSigner, err := signer.FromHex(s.settings.PrivateKey)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeConfig, "load signing key", err)
	}
	return txSigner, nil
}

// rpcEndpoints resolves one endpoint per chain without dialing.
func (s *runtimeState) rpcEndpoints(network string, chains []id.Chain) (map[int64]string, error) {
	out := make(map[int64]string, len(chains))
	for _, c := range chains {
		endpoint, err := s.settings.RPCURL(network, c.EVMChainID)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeConfig, "resolve rpc endpoint for "+c.Name, err)
		}
		out[c.EVMChainID] = endpoint
	}
	return out, nil
}

func dialReaders(ctx context.Context, chains []id.Chain, endpoints map[int64]string) ([]*chain.Reader, error) {
	readers := make([]*chain.Reader, 0, len(chains))
	for _, c := range chains {
		reader, err := chain.Dial(ctx, c, endpoints[c.EVMChainID])
		if err != nil {
			closeReaders(readers)
			return nil, err
		}
		readers = append(readers, reader)
	}
	return readers, nil
}

func closeReaders(readers []*chain.Reader) {
	for _, r := range readers {
		r.Close()
	}
}

func deriveAccount(ctx context.Context, txSigner signer.Signer, readers []*chain.Reader) (account.Account, error) {
	callers := make([]account.Caller, 0, len(readers))
	for _, r := range readers {
		callers = append(callers, r)
	}
	return account.Derive(ctx, txSigner.Address(), callers...)
}

func (s *runtimeState) newRelayClient(network string) (*relay.Client, error) {
	endpoint, err := s.settings.RelayEndpoint(network)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeConfig, "resolve relay endpoint", err)
	}
	httpClient := httpx.New(s.settings.Timeout, s.settings.Retries).WithLogger(s.logger)
	client := relay.New(endpoint, httpClient,
		relay.WithAPIKey(s.settings.RelayAPIKey),
		relay.WithPollInterval(s.settings.PollInterval),
		relay.WithLogger(s.logger),
	)
	return client, nil
}
