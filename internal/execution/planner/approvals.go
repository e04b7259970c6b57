package planner

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/registry"
)

var plannerERC20ABI = mustPlannerABI(registry.ERC20ABI)

// ApproveCalldata packs ERC20 approve(spender, amount).
func ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	if spender == (common.Address{}) {
		return nil, clierr.New(clierr.CodeValidation, "approval requires spender address")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeValidation, "approval amount must be a positive integer in base units")
	}
	data, err := plannerERC20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack approval calldata", err)
	}
	return data, nil
}

// BuildApproval returns an approve instruction of token for spender on chainID.
func BuildApproval(chainID int64, token, spender common.Address, amount *big.Int, symbol string) (Instruction, error) {
	if token == (common.Address{}) {
		return Instruction{}, clierr.New(clierr.CodeValidation, "approval requires ERC20 token address")
	}
	data, err := ApproveCalldata(spender, amount)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		Kind:        KindApprove,
		ChainID:     chainID,
		Description: fmt.Sprintf("Approve %s for spender", strings.ToUpper(symbol)),
		Target:      token.Hex(),
		Data:        "0x" + common.Bytes2Hex(data),
		Value:       "0",
	}, nil
}

// BuildTransfer returns a static ERC20 transfer instruction.
func BuildTransfer(chainID int64, token, to common.Address, amount *big.Int, symbol string) (Instruction, error) {
	if amount == nil || amount.Sign() <= 0 {
		return Instruction{}, clierr.New(clierr.CodeValidation, "transfer amount must be a positive integer in base units")
	}
	data, err := plannerERC20ABI.Pack("transfer", to, amount)
	if err != nil {
		return Instruction{}, clierr.Wrap(clierr.CodeInternal, "pack transfer calldata", err)
	}
	return Instruction{
		Kind:        KindTransfer,
		ChainID:     chainID,
		Description: fmt.Sprintf("Transfer %s to owner", strings.ToUpper(symbol)),
		Target:      token.Hex(),
		Data:        "0x" + common.Bytes2Hex(data),
		Value:       "0",
	}, nil
}

// BuildRuntimeTransfer transfers the full balance of token held by holder at
// execution time.
func BuildRuntimeTransfer(chainID int64, token, holder, to common.Address, symbol string) Instruction {
	return Instruction{
		Kind:        KindTransfer,
		ChainID:     chainID,
		Description: fmt.Sprintf("Transfer full %s balance to owner", strings.ToUpper(symbol)),
		Target:      token.Hex(),
		Value:       "0",
		Composable: &ComposableCall{
			Signature: "transfer(address,uint256)",
			Args: []ComposableArg{
				{Static: to.Hex()},
				{Runtime: &RuntimeBalance{Token: token.Hex(), Owner: holder.Hex()}},
			},
		},
	}
}

func mustPlannerABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
