package planner

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/id"
	"github.com/shopspring/decimal"
)

func TestBuildCrossChainOrdersInstructions(t *testing.T) {
	bundle, err := BuildCrossChain(CrossChainRequest{
		Source:          id.Base,
		Destination:     id.Optimism,
		Owner:           testOwner,
		SmartAccount:    testSmart,
		AmountBaseUnits: big.NewInt(1_000_000),
		TransferRatio:   decimal.RequireFromString("0.8"),
	})
	if err != nil {
		t.Fatalf("BuildCrossChain failed: %v", err)
	}
	if len(bundle.Instructions) != 2 {
		t.Fatalf("expected two instructions, got %d", len(bundle.Instructions))
	}
	bridge, transfer := bundle.Instructions[0], bundle.Instructions[1]
	if bridge.Kind != KindBridge || transfer.Kind != KindTransfer {
		t.Fatalf("unexpected order %v", bundle.Kinds())
	}
	if bridge.Bridge.Mode != BridgeModeOptimistic || bridge.Bridge.DestinationChainID != 10 || bridge.Bridge.Amount != "1000000" {
		t.Fatalf("unexpected bridge intent %+v", bridge.Bridge)
	}
	if transfer.ChainID != 10 {
		t.Fatalf("expected destination transfer, got chain %d", transfer.ChainID)
	}
	opUSDC := id.MustToken(id.Optimism, id.SymbolUSDC)
	if transfer.Target != common.HexToAddress(opUSDC.Address).Hex() {
		t.Fatalf("expected destination USDC target, got %s", transfer.Target)
	}
	data, _ := hexutil.Decode(transfer.Data)
	args, err := plannerERC20ABI.Methods["transfer"].Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack transfer: %v", err)
	}
	if args[0].(common.Address) != testOwner || args[1].(*big.Int).Int64() != 800_000 {
		t.Fatalf("unexpected transfer args %v", args)
	}
	if err := ValidateBundle(bundle); err != nil {
		t.Fatalf("expected assembled bundle to validate: %v", err)
	}
}

func TestForwardAmountFloors(t *testing.T) {
	cases := []struct {
		amount int64
		ratio  string
		want   int64
	}{
		{1_000_000, "0.8", 800_000},
		{1_234_567, "0.8", 987_653},
		{3, "0.5", 1},
		{10, "1", 10},
	}
	for _, tc := range cases {
		got := ForwardAmount(big.NewInt(tc.amount), decimal.RequireFromString(tc.ratio))
		if got.Int64() != tc.want {
			t.Fatalf("ForwardAmount(%d, %s) = %s, want %d", tc.amount, tc.ratio, got, tc.want)
		}
	}
}

func TestBuildCrossChainRejectsInvalidRequests(t *testing.T) {
	base := CrossChainRequest{
		Source:          id.Optimism,
		Destination:     id.Base,
		Owner:           testOwner,
		SmartAccount:    testSmart,
		AmountBaseUnits: big.NewInt(100),
		TransferRatio:   decimal.RequireFromString("0.8"),
	}
	same := base
	same.Destination = id.Optimism
	zeroRatio := base
	zeroRatio.TransferRatio = decimal.Zero
	bigRatio := base
	bigRatio.TransferRatio = decimal.RequireFromString("1.01")
	zeroAmount := base
	zeroAmount.AmountBaseUnits = big.NewInt(0)
	for name, req := range map[string]CrossChainRequest{
		"same chain": same, "zero ratio": zeroRatio, "ratio above one": bigRatio, "zero amount": zeroAmount,
	} {
		if _, err := BuildCrossChain(req); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestBuildCrossChainNamesRatioWhenNothingIsForwarded(t *testing.T) {
	_, err := BuildCrossChain(CrossChainRequest{
		Source:          id.Base,
		Destination:     id.Optimism,
		Owner:           testOwner,
		SmartAccount:    testSmart,
		AmountBaseUnits: big.NewInt(1),
		TransferRatio:   decimal.RequireFromString("0.8"),
	})
	if err == nil {
		t.Fatal("expected error for a one base unit bridge")
	}
	if clierr.CodeOf(err) != clierr.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "transfer ratio 0.8") {
		t.Fatalf("error should name the ratio: %v", err)
	}
}
