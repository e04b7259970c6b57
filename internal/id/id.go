package id

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/meeflow/internal/errors"
)

var (
	eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// USDCDecimals is the fixed decimals constant used to convert user amounts.
const USDCDecimals = 6

const (
	SymbolUSDC  = "USDC"
	SymbolAUSDC = "AUSDC"
)

type Chain struct {
	Name       string
	Slug       string
	CAIP2      string
	EVMChainID int64
}

type Token struct {
	Symbol   string
	Address  string
	Decimals int
}

var (
	Base     = Chain{Name: "Base", Slug: "base", CAIP2: "eip155:8453", EVMChainID: 8453}
	Optimism = Chain{Name: "Optimism", Slug: "optimism", CAIP2: "eip155:10", EVMChainID: 10}
)

var chainBySlug = map[string]Chain{
	"base":     Base,
	"op":       Optimism,
	"optimism": Optimism,
}

var chainByID = map[int64]Chain{
	8453: Base,
	10:   Optimism,
}

// Tokens the workflow moves. aUSDC is the Aave V3 receipt token for USDC on Base.
var tokenRegistry = map[string][]Token{
	"eip155:8453": {
		{Symbol: SymbolUSDC, Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
		{Symbol: SymbolAUSDC, Address: "0x4e65fE4DbA92790696d040ac24Aa414708F5c0AB", Decimals: 6},
	},
	"eip155:10": {
		{Symbol: SymbolUSDC, Address: "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85", Decimals: 6},
	},
}

func ParseChain(input string) (Chain, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	norm := strings.ToLower(raw)
	if chain, ok := chainBySlug[norm]; ok {
		return chain, nil
	}

	var chainID int64
	switch {
	case eip155ChainPattern.MatchString(norm):
		chainID, _ = strconv.ParseInt(strings.TrimPrefix(norm, "eip155:"), 10, 64)
	default:
		parsed, err := strconv.ParseInt(norm, 10, 64)
		if err != nil {
			return Chain{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported chain input: %s", input))
		}
		chainID = parsed
	}
	if chain, ok := chainByID[chainID]; ok {
		return chain, nil
	}
	return Chain{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("chain %d is not supported", chainID))
}

// ChainByID returns the registered chain for an EVM chain id.
func ChainByID(chainID int64) (Chain, bool) {
	chain, ok := chainByID[chainID]
	return chain, ok
}

// KnownToken looks up a registered token by symbol on a CAIP-2 chain.
func KnownToken(chainID, symbol string) (Token, bool) {
	for _, t := range tokenRegistry[chainID] {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return Token{}, false
}

// MustToken is KnownToken for registry entries that are known to exist.
func MustToken(chain Chain, symbol string) Token {
	t, ok := KnownToken(chain.CAIP2, symbol)
	if !ok {
		panic(fmt.Sprintf("token %s not registered on %s", symbol, chain.CAIP2))
	}
	return t
}

func IsEVMAddress(v string) bool {
	return evmAddressPattern.MatchString(strings.TrimSpace(v))
}
