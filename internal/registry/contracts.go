package registry

// Canonical Aave V3 PoolAddressesProvider contracts used by the same-chain planner.
var aavePoolAddressProviderByChainID = map[int64]string{
	10:   "0xa97684ead0e402dC232d5A977953DF7ECBaB3CDb", // Optimism
	8453: "0xe20fCBdBfFC4Dd138cE8b2E6FBb6CB49777ad64D", // Base
}

func AavePoolAddressProvider(chainID int64) (string, bool) {
	value, ok := aavePoolAddressProviderByChainID[chainID]
	return value, ok
}

// Smart-account factory shared by every supported chain (same CREATE2 deployment).
const NexusAccountFactory = "0x000000001D1D5004a02bAfAb9de2D6CE5b7B13de"

// NexusAccountIndex is the account index derived for the signing key.
const NexusAccountIndex = 0
