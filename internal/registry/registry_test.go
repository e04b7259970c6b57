package registry

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func TestAavePoolAddressProvider(t *testing.T) {
	for _, chainID := range []int64{8453, 10} {
		addr, ok := AavePoolAddressProvider(chainID)
		if !ok || addr == "" {
			t.Fatalf("expected aave pool address provider for chain %d", chainID)
		}
	}
	if _, ok := AavePoolAddressProvider(167000); ok {
		t.Fatal("did not expect aave pool address provider for unsupported chain")
	}
}

func TestABIConstantsParse(t *testing.T) {
	abis := []string{
		ERC20ABI,
		AavePoolAddressProviderABI,
		AavePoolABI,
		NexusAccountFactoryABI,
	}
	for _, raw := range abis {
		if _, err := abi.JSON(strings.NewReader(raw)); err != nil {
			t.Fatalf("failed to parse abi json: %v", err)
		}
	}
}

func TestDefaultRPCURL(t *testing.T) {
	if rpc, ok := DefaultRPCURL(NetworkLocal, 8453); !ok || rpc != "http://0.0.0.0:8545" {
		t.Fatalf("unexpected local base rpc: ok=%v rpc=%q", ok, rpc)
	}
	if rpc, ok := DefaultRPCURL(NetworkMainnet, 10); !ok || !strings.HasPrefix(rpc, "https://") {
		t.Fatalf("unexpected optimism rpc: ok=%v rpc=%q", ok, rpc)
	}
	if _, ok := DefaultRPCURL(NetworkMainnet, 999999); ok {
		t.Fatal("did not expect rpc default for unsupported chain")
	}
}

func TestResolveRPCURL(t *testing.T) {
	override, err := ResolveRPCURL(" https://rpc.example.test ", NetworkMainnet, RPCProviderPublic, "", 8453)
	if err != nil {
		t.Fatalf("resolve with override: %v", err)
	}
	if override != "https://rpc.example.test" {
		t.Fatalf("unexpected override value: %q", override)
	}

	alchemy, err := ResolveRPCURL("", NetworkMainnet, RPCProviderAlchemy, "k3y", 8453)
	if err != nil {
		t.Fatalf("resolve alchemy: %v", err)
	}
	if alchemy != "https://base-mainnet.g.alchemy.com/v2/k3y" {
		t.Fatalf("unexpected alchemy url: %q", alchemy)
	}
	if _, err := ResolveRPCURL("", NetworkMainnet, RPCProviderAlchemy, "", 8453); err == nil {
		t.Fatal("expected missing alchemy key error")
	}

	local, err := ResolveRPCURL("", NetworkLocal, RPCProviderAlchemy, "", 8453)
	if err != nil || local != "http://0.0.0.0:8545" {
		t.Fatalf("expected local fork rpc regardless of provider, got %q err=%v", local, err)
	}
}

func TestIsAllowedRelayURL(t *testing.T) {
	if !IsAllowedRelayURL(RelayMainnetURL) {
		t.Fatal("expected canonical relay endpoint to be allowed")
	}
	if !IsAllowedRelayURL(RelayLocalURL) {
		t.Fatal("expected loopback relay endpoint to be allowed")
	}
	if !IsAllowedRelayURL("http://0.0.0.0:3000/v3") {
		t.Fatal("expected unspecified host to count as local")
	}
	if IsAllowedRelayURL("http://relay.example.com/v1") {
		t.Fatal("did not expect non-https remote endpoint to be allowed")
	}
	if IsAllowedRelayURL("not-a-url") {
		t.Fatal("did not expect malformed endpoint to be allowed")
	}
	if got := ExplorerLink("0xabc"); got != "https://meescan.biconomy.io/details/0xabc" {
		t.Fatalf("unexpected explorer link %q", got)
	}
}
