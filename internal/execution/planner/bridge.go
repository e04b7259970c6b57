package planner

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/id"
	"github.com/shopspring/decimal"
)

// CrossChainRequest bridges USDC from Source to Destination and forwards a
// share of it to the owner on the destination chain.
type CrossChainRequest struct {
	Source          id.Chain
	Destination     id.Chain
	Owner           common.Address
	SmartAccount    common.Address
	AmountBaseUnits *big.Int
	// TransferRatio is the share of the bridged amount sent on to Owner, in (0, 1].
	TransferRatio decimal.Decimal
}

// BuildCrossChain assembles a bridge intent followed by a destination transfer
// of floor(ratio * amount).
func BuildCrossChain(req CrossChainRequest) (Bundle, error) {
	if req.Source.EVMChainID == req.Destination.EVMChainID {
		return Bundle{}, clierr.New(clierr.CodeValidation, "cross-chain plan requires distinct chains")
	}
	if req.AmountBaseUnits == nil || req.AmountBaseUnits.Sign() <= 0 {
		return Bundle{}, clierr.New(clierr.CodeValidation, "amount must be a positive integer in base units")
	}
	if req.Owner == (common.Address{}) || req.SmartAccount == (common.Address{}) {
		return Bundle{}, clierr.New(clierr.CodeValidation, "cross-chain plan requires owner and smart account addresses")
	}
	if !req.TransferRatio.IsPositive() || req.TransferRatio.GreaterThan(decimal.NewFromInt(1)) {
		return Bundle{}, clierr.New(clierr.CodeValidation, "transfer ratio must be in (0, 1]")
	}
	srcUSDC, ok := id.KnownToken(req.Source.CAIP2, id.SymbolUSDC)
	if !ok {
		return Bundle{}, clierr.New(clierr.CodeUnsupported, "USDC is not registered on "+req.Source.Name)
	}
	dstUSDC, ok := id.KnownToken(req.Destination.CAIP2, id.SymbolUSDC)
	if !ok {
		return Bundle{}, clierr.New(clierr.CodeUnsupported, "USDC is not registered on "+req.Destination.Name)
	}

	bridge := Instruction{
		Kind:        KindBridge,
		ChainID:     req.Source.EVMChainID,
		Description: "Bridge USDC from " + req.Source.Name + " to " + req.Destination.Name,
		Bridge: &BridgeIntent{
			Token:              common.HexToAddress(srcUSDC.Address).Hex(),
			Amount:             req.AmountBaseUnits.String(),
			SourceChainID:      req.Source.EVMChainID,
			DestinationChainID: req.Destination.EVMChainID,
			Mode:               BridgeModeOptimistic,
		},
	}
	forward := ForwardAmount(req.AmountBaseUnits, req.TransferRatio)
	if forward.Sign() <= 0 {
		return Bundle{}, clierr.New(clierr.CodeValidation, fmt.Sprintf("transfer ratio %s forwards nothing from %s base units", req.TransferRatio, req.AmountBaseUnits))
	}
	transfer, err := BuildTransfer(req.Destination.EVMChainID, common.HexToAddress(dstUSDC.Address), req.Owner, forward, dstUSDC.Symbol)
	if err != nil {
		return Bundle{}, err
	}

	srcToken := common.HexToAddress(srcUSDC.Address).Hex()
	return Bundle{
		Owner:        req.Owner.Hex(),
		SmartAccount: req.SmartAccount.Hex(),
		Trigger:      Trigger{ChainID: req.Source.EVMChainID, Token: srcToken, Amount: req.AmountBaseUnits.String()},
		FeeToken:     FeeToken{ChainID: req.Source.EVMChainID, Token: srcToken},
		Instructions: []Instruction{bridge, transfer},
	}, nil
}

// ForwardAmount is floor(ratio * amount).
func ForwardAmount(amount *big.Int, ratio decimal.Decimal) *big.Int {
	return decimal.NewFromBigInt(amount, 0).Mul(ratio).Floor().BigInt()
}
