package planner

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/id"
	"github.com/ggonzalez94/meeflow/internal/registry"
)

var (
	aavePoolABI                = mustPlannerABI(registry.AavePoolABI)
	aavePoolAddressProviderABI = mustPlannerABI(registry.AavePoolAddressProviderABI)
)

// SameChainRequest deposits USDC into Aave from the smart account and returns
// the minted aUSDC to the owner.
type SameChainRequest struct {
	Chain           id.Chain
	Owner           common.Address
	SmartAccount    common.Address
	AmountBaseUnits *big.Int
	// PoolAddress skips provider discovery when set.
	PoolAddress           string
	PoolAddressesProvider string
}

// BuildSameChain assembles approve, supply and a runtime-balance transfer of aUSDC.
func BuildSameChain(ctx context.Context, caller Caller, req SameChainRequest) (Bundle, error) {
	if req.AmountBaseUnits == nil || req.AmountBaseUnits.Sign() <= 0 {
		return Bundle{}, clierr.New(clierr.CodeValidation, "amount must be a positive integer in base units")
	}
	if req.Owner == (common.Address{}) || req.SmartAccount == (common.Address{}) {
		return Bundle{}, clierr.New(clierr.CodeValidation, "same-chain plan requires owner and smart account addresses")
	}
	usdc, ok := id.KnownToken(req.Chain.CAIP2, id.SymbolUSDC)
	if !ok {
		return Bundle{}, clierr.New(clierr.CodeUnsupported, "USDC is not registered on "+req.Chain.Name)
	}
	ausdc, ok := id.KnownToken(req.Chain.CAIP2, id.SymbolAUSDC)
	if !ok {
		return Bundle{}, clierr.New(clierr.CodeUnsupported, "aUSDC is not registered on "+req.Chain.Name)
	}
	usdcAddr := common.HexToAddress(usdc.Address)
	ausdcAddr := common.HexToAddress(ausdc.Address)

	pool, err := ResolveAavePool(ctx, caller, req.Chain, req.PoolAddress, req.PoolAddressesProvider)
	if err != nil {
		return Bundle{}, err
	}

	approve, err := BuildApproval(req.Chain.EVMChainID, usdcAddr, pool, req.AmountBaseUnits, usdc.Symbol)
	if err != nil {
		return Bundle{}, err
	}
	supplyData, err := aavePoolABI.Pack("supply", usdcAddr, req.AmountBaseUnits, req.SmartAccount, uint16(0))
	if err != nil {
		return Bundle{}, clierr.Wrap(clierr.CodeInternal, "pack aave supply calldata", err)
	}
	supply := Instruction{
		Kind:        KindSupply,
		ChainID:     req.Chain.EVMChainID,
		Description: "Supply USDC to Aave",
		Target:      pool.Hex(),
		Data:        "0x" + common.Bytes2Hex(supplyData),
		Value:       "0",
	}
	transfer := BuildRuntimeTransfer(req.Chain.EVMChainID, ausdcAddr, req.SmartAccount, req.Owner, "aUSDC")

	return Bundle{
		Owner:        req.Owner.Hex(),
		SmartAccount: req.SmartAccount.Hex(),
		Trigger:      Trigger{ChainID: req.Chain.EVMChainID, Token: usdcAddr.Hex(), Amount: req.AmountBaseUnits.String()},
		FeeToken:     FeeToken{ChainID: req.Chain.EVMChainID, Token: usdcAddr.Hex()},
		Instructions: []Instruction{approve, supply, transfer},
	}, nil
}

// ResolveAavePool returns poolAddress when set, otherwise asks the
// PoolAddressesProvider for the current pool.
func ResolveAavePool(ctx context.Context, caller Caller, chain id.Chain, poolAddress, poolProvider string) (common.Address, error) {
	if strings.TrimSpace(poolAddress) != "" {
		if !common.IsHexAddress(poolAddress) {
			return common.Address{}, clierr.New(clierr.CodeUsage, "invalid aave pool address")
		}
		return common.HexToAddress(poolAddress), nil
	}
	providerAddr := strings.TrimSpace(poolProvider)
	if providerAddr == "" {
		if discovered, ok := registry.AavePoolAddressProvider(chain.EVMChainID); ok {
			providerAddr = discovered
		}
	}
	if providerAddr == "" {
		return common.Address{}, clierr.New(clierr.CodeUnsupported, "aave pool address provider is unavailable for "+chain.Name)
	}
	if !common.IsHexAddress(providerAddr) {
		return common.Address{}, clierr.New(clierr.CodeUsage, "invalid aave pool address provider")
	}
	if caller == nil {
		return common.Address{}, clierr.New(clierr.CodeInternal, "missing chain reader for pool discovery")
	}
	callData, err := aavePoolAddressProviderABI.Pack("getPool")
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeInternal, "pack getPool calldata", err)
	}
	out, err := caller.Call(ctx, common.HexToAddress(providerAddr), callData)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeUnavailable, "fetch aave pool address", err)
	}
	decoded, err := aavePoolAddressProviderABI.Unpack("getPool", out)
	if err != nil || len(decoded) == 0 {
		return common.Address{}, clierr.Wrap(clierr.CodeUnavailable, "decode aave pool address", err)
	}
	pool, ok := decoded[0].(common.Address)
	if !ok {
		return common.Address{}, clierr.New(clierr.CodeUnavailable, "invalid aave pool response")
	}
	if pool == (common.Address{}) {
		return common.Address{}, clierr.New(clierr.CodeUnavailable, "aave pool address is zero")
	}
	return pool, nil
}
