package planner

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	clierr "github.com/ggonzalez94/meeflow/internal/errors"
)

var (
	policyApproveSelector = plannerERC20ABI.Methods["approve"].ID
	policySupplySelector  = aavePoolABI.Methods["supply"].ID
)

// ValidateBundle checks the bundle shape before it is quoted.
func ValidateBundle(b Bundle) error {
	if len(b.Instructions) == 0 {
		return clierr.New(clierr.CodeValidation, "bundle has no instructions")
	}
	if !common.IsHexAddress(b.Owner) || !common.IsHexAddress(b.SmartAccount) {
		return clierr.New(clierr.CodeValidation, "bundle owner and smart account must be valid addresses")
	}
	if !common.IsHexAddress(b.Trigger.Token) || !common.IsHexAddress(b.FeeToken.Token) {
		return clierr.New(clierr.CodeValidation, "bundle trigger and fee token must be valid addresses")
	}
	trigger := b.TriggerAmount()
	if trigger.Sign() <= 0 {
		return clierr.New(clierr.CodeValidation, "bundle trigger amount must be positive")
	}

	var approved *approval
	for i := range b.Instructions {
		inst := &b.Instructions[i]
		if err := validateInstructionShape(i, inst); err != nil {
			return err
		}
		switch inst.Kind {
		case KindApprove:
			a, err := validateApprovalPolicy(inst, trigger)
			if err != nil {
				return err
			}
			approved = a
		case KindSupply:
			if err := validateSupplyPolicy(inst, approved); err != nil {
				return err
			}
		case KindBridge:
			if err := validateBridgePolicy(inst, b.Trigger); err != nil {
				return err
			}
		}
	}
	return nil
}

type approval struct {
	token   common.Address
	spender common.Address
	amount  *big.Int
}

func validateInstructionShape(index int, inst *Instruction) error {
	where := fmt.Sprintf("instruction %d (%s)", index, inst.Kind)
	if inst.ChainID <= 0 {
		return clierr.New(clierr.CodeValidation, where+" has no chain id")
	}
	if inst.Kind == KindBridge {
		if inst.Bridge == nil {
			return clierr.New(clierr.CodeValidation, where+" is missing its bridge intent")
		}
		return nil
	}
	if !common.IsHexAddress(inst.Target) {
		return clierr.New(clierr.CodeValidation, where+" has an invalid target address")
	}
	if inst.Composable == nil && strings.TrimSpace(inst.Data) == "" {
		return clierr.New(clierr.CodeValidation, where+" has no calldata")
	}
	if inst.Composable != nil {
		for _, arg := range inst.Composable.Args {
			if arg.Runtime != nil && (!common.IsHexAddress(arg.Runtime.Token) || !common.IsHexAddress(arg.Runtime.Owner)) {
				return clierr.New(clierr.CodeValidation, where+" has an invalid runtime balance reference")
			}
		}
	}
	return nil
}

// validateApprovalPolicy bounds the approval by the trigger amount.
func validateApprovalPolicy(inst *Instruction, trigger *big.Int) (*approval, error) {
	data, err := hexutil.Decode(inst.Data)
	if err != nil || len(data) < 4 || !bytes.Equal(data[:4], policyApproveSelector) {
		return nil, clierr.New(clierr.CodeValidation, "approval instruction must use ERC20 approve(spender,amount)")
	}
	args, err := plannerERC20ABI.Methods["approve"].Inputs.Unpack(data[4:])
	if err != nil || len(args) != 2 {
		return nil, clierr.New(clierr.CodeValidation, "approval instruction calldata is invalid")
	}
	spender, ok := args[0].(common.Address)
	if !ok || spender == (common.Address{}) {
		return nil, clierr.New(clierr.CodeValidation, "approval instruction has invalid spender")
	}
	amount, ok := args[1].(*big.Int)
	if !ok || amount.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeValidation, "approval instruction has invalid approval amount")
	}
	if amount.Cmp(trigger) > 0 {
		return nil, clierr.New(clierr.CodeValidation, fmt.Sprintf("approval amount %s exceeds trigger amount %s", amount, trigger))
	}
	return &approval{token: common.HexToAddress(inst.Target), spender: spender, amount: amount}, nil
}

// validateSupplyPolicy requires a preceding approval of the supplied asset to the pool.
func validateSupplyPolicy(inst *Instruction, approved *approval) error {
	if approved == nil {
		return clierr.New(clierr.CodeValidation, "supply instruction must be preceded by an approval")
	}
	data, err := hexutil.Decode(inst.Data)
	if err != nil || len(data) < 4 || !bytes.Equal(data[:4], policySupplySelector) {
		return clierr.New(clierr.CodeValidation, "supply instruction must call supply(asset,amount,onBehalfOf,referralCode)")
	}
	args, err := aavePoolABI.Methods["supply"].Inputs.Unpack(data[4:])
	if err != nil || len(args) != 4 {
		return clierr.New(clierr.CodeValidation, "supply instruction calldata is invalid")
	}
	asset, _ := args[0].(common.Address)
	amount, _ := args[1].(*big.Int)
	if asset != approved.token {
		return clierr.New(clierr.CodeValidation, "supply asset does not match the approved token")
	}
	if common.HexToAddress(inst.Target) != approved.spender {
		return clierr.New(clierr.CodeValidation, "supply target does not match the approved spender")
	}
	if amount == nil || amount.Sign() <= 0 || amount.Cmp(approved.amount) > 0 {
		return clierr.New(clierr.CodeValidation, "supply amount must be positive and within the approval")
	}
	return nil
}

func validateBridgePolicy(inst *Instruction, trigger Trigger) error {
	intent := inst.Bridge
	if intent.SourceChainID == intent.DestinationChainID {
		return clierr.New(clierr.CodeValidation, "bridge intent must target a different chain")
	}
	if intent.SourceChainID != trigger.ChainID {
		return clierr.New(clierr.CodeValidation, "bridge intent must start on the trigger chain")
	}
	amount, ok := new(big.Int).SetString(intent.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return clierr.New(clierr.CodeValidation, "bridge intent amount must be positive")
	}
	if !strings.EqualFold(intent.Mode, BridgeModeOptimistic) {
		return clierr.New(clierr.CodeValidation, fmt.Sprintf("unsupported bridge mode %q", intent.Mode))
	}
	return nil
}
