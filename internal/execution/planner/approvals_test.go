package planner

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func TestBuildApproval(t *testing.T) {
	token := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	spender := common.HexToAddress("0x00000000000000000000000000000000000000BB")
	inst, err := BuildApproval(8453, token, spender, big.NewInt(1_000_000), "usdc")
	if err != nil {
		t.Fatalf("BuildApproval failed: %v", err)
	}
	if inst.Kind != KindApprove {
		t.Fatalf("unexpected kind: %s", inst.Kind)
	}
	if inst.Target != token.Hex() {
		t.Fatalf("expected token target, got %s", inst.Target)
	}
	data, err := hexutil.Decode(inst.Data)
	if err != nil {
		t.Fatalf("decode calldata: %v", err)
	}
	args, err := plannerERC20ABI.Methods["approve"].Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack approve: %v", err)
	}
	if args[0].(common.Address) != spender {
		t.Fatalf("unexpected spender %v", args[0])
	}
	if args[1].(*big.Int).Int64() != 1_000_000 {
		t.Fatalf("unexpected amount %v", args[1])
	}
}

func TestBuildApprovalRejectsInvalidInputs(t *testing.T) {
	token := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	spender := common.HexToAddress("0x00000000000000000000000000000000000000BB")
	if _, err := BuildApproval(8453, token, spender, big.NewInt(0), "usdc"); err == nil {
		t.Fatal("expected zero amount to fail")
	}
	if _, err := BuildApproval(8453, token, common.Address{}, big.NewInt(1), "usdc"); err == nil {
		t.Fatal("expected missing spender to fail")
	}
	if _, err := BuildApproval(8453, common.Address{}, spender, big.NewInt(1), "usdc"); err == nil {
		t.Fatal("expected missing token to fail")
	}
}

func TestBuildRuntimeTransferReferencesHolderBalance(t *testing.T) {
	token := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	holder := common.HexToAddress("0x00000000000000000000000000000000000000CC")
	owner := common.HexToAddress("0x00000000000000000000000000000000000000DD")
	inst := BuildRuntimeTransfer(8453, token, holder, owner, "aUSDC")
	if inst.Composable == nil || len(inst.Composable.Args) != 2 {
		t.Fatalf("expected composable transfer, got %+v", inst)
	}
	if inst.Composable.Args[0].Static != owner.Hex() {
		t.Fatalf("expected owner as recipient, got %q", inst.Composable.Args[0].Static)
	}
	rt := inst.Composable.Args[1].Runtime
	if rt == nil || rt.Token != token.Hex() || rt.Owner != holder.Hex() {
		t.Fatalf("unexpected runtime reference %+v", rt)
	}
}
