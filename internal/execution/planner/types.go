package planner

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type InstructionKind string

const (
	KindApprove  InstructionKind = "approve"
	KindSupply   InstructionKind = "supply"
	KindTransfer InstructionKind = "transfer"
	KindBridge   InstructionKind = "bridge"
)

// BridgeModeOptimistic lets the relay settle on the destination before the
// source leg finalizes.
const BridgeModeOptimistic = "OPTIMISTIC"

// Instruction is one unit of work executed by the smart account on ChainID.
// Exactly one of Data, Composable or Bridge describes the call.
type Instruction struct {
	Kind        InstructionKind `json:"kind"`
	ChainID     int64           `json:"chainId"`
	Description string          `json:"description,omitempty"`
	Target      string          `json:"to,omitempty"`
	Data        string          `json:"data,omitempty"`
	Value       string          `json:"value,omitempty"`
	Composable  *ComposableCall `json:"composable,omitempty"`
	Bridge      *BridgeIntent   `json:"bridge,omitempty"`
}

// ComposableCall is a call whose arguments may be resolved by the relay at
// execution time.
type ComposableCall struct {
	Signature string          `json:"functionSignature"`
	Args      []ComposableArg `json:"args"`
}

type ComposableArg struct {
	Static  string          `json:"static,omitempty"`
	Runtime *RuntimeBalance `json:"runtimeErc20Balance,omitempty"`
}

// RuntimeBalance resolves to balanceOf(Owner) of Token when the instruction runs.
type RuntimeBalance struct {
	Token string `json:"tokenAddress"`
	Owner string `json:"targetAddress"`
}

type BridgeIntent struct {
	Token              string `json:"tokenAddress"`
	Amount             string `json:"amount"`
	SourceChainID      int64  `json:"sourceChainId"`
	DestinationChainID int64  `json:"destinationChainId"`
	Mode               string `json:"mode"`
}

// Trigger is the source-chain funding the smart account pulls from the EOA.
type Trigger struct {
	ChainID int64  `json:"chainId"`
	Token   string `json:"tokenAddress"`
	Amount  string `json:"amount"`
}

type FeeToken struct {
	ChainID int64  `json:"chainId"`
	Token   string `json:"address"`
}

// Bundle is the ordered intent submitted for a quote. Instruction order is
// preserved exactly as assembled.
type Bundle struct {
	Owner        string        `json:"owner"`
	SmartAccount string        `json:"smartAccount"`
	Trigger      Trigger       `json:"trigger"`
	FeeToken     FeeToken      `json:"feeToken"`
	Instructions []Instruction `json:"instructions"`
}

// TriggerAmount parses the trigger amount in base units.
func (b Bundle) TriggerAmount() *big.Int {
	v, ok := new(big.Int).SetString(b.Trigger.Amount, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// Kinds lists the instruction kinds in order.
func (b Bundle) Kinds() []InstructionKind {
	out := make([]InstructionKind, 0, len(b.Instructions))
	for _, inst := range b.Instructions {
		out = append(out, inst.Kind)
	}
	return out
}

// Caller performs read-only contract calls on one chain.
type Caller interface {
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}
