package registry

import (
	"fmt"
	"strings"
)

const (
	NetworkLocal   = "local"
	NetworkMainnet = "mainnet"

	RPCProviderPublic  = "public"
	RPCProviderAlchemy = "alchemy"
)

// Public endpoints used on mainnet when no override is configured.
var publicRPCByChainID = map[int64]string{
	10:   "https://optimism-rpc.publicnode.com",
	8453: "https://base-rpc.publicnode.com",
}

// Local fork endpoints (anvil). The Base fork keeps chain id 8453.
var localRPCByChainID = map[int64]string{
	10:   "http://0.0.0.0:8546",
	8453: "http://0.0.0.0:8545",
}

var alchemySubdomainByChainID = map[int64]string{
	10:   "opt-mainnet",
	8453: "base-mainnet",
}

func DefaultRPCURL(network string, chainID int64) (string, bool) {
	switch network {
	case NetworkLocal:
		value, ok := localRPCByChainID[chainID]
		return value, ok
	default:
		value, ok := publicRPCByChainID[chainID]
		return value, ok
	}
}

// AlchemyRPCURL builds the keyed Alchemy endpoint for a chain.
func AlchemyRPCURL(chainID int64, apiKey string) (string, bool) {
	sub, ok := alchemySubdomainByChainID[chainID]
	if !ok || strings.TrimSpace(apiKey) == "" {
		return "", false
	}
	return fmt.Sprintf("https://%s.g.alchemy.com/v2/%s", sub, strings.TrimSpace(apiKey)), true
}

// ResolveRPCURL picks the override, then the provider endpoint, then the network default.
func ResolveRPCURL(override, network, provider, apiKey string, chainID int64) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	if network == NetworkMainnet && provider == RPCProviderAlchemy {
		if value, ok := AlchemyRPCURL(chainID, apiKey); ok {
			return value, nil
		}
		return "", fmt.Errorf("alchemy rpc for chain id %d requires ALCHEMY_API_KEY", chainID)
	}
	if value, ok := DefaultRPCURL(network, chainID); ok {
		return value, nil
	}
	return "", fmt.Errorf("no default rpc configured for chain id %d on %s", chainID, network)
}
