package execution

import (
	"bytes"
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ggonzalez94/meeflow/internal/chain/chaintest"
	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/execution/signer"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

var (
	testToken   = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	testSpender = common.HexToAddress("0x00000000000000000000000000000000000000BB")
	testQuote   = "0x" + strings.Repeat("ab", 32)
)

func newTestSigner(t *testing.T) signer.Signer {
	t.Helper()
	s, err := signer.FromHex(testPrivateKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return s
}

func dialTestClient(t *testing.T, node *chaintest.Node) *ethclient.Client {
	t.Helper()
	client, err := ethclient.Dial(node.URL())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func fastTriggerOptions() TriggerOptions {
	opts := DefaultTriggerOptions()
	opts.PollInterval = 10 * time.Millisecond
	opts.Timeout = 500 * time.Millisecond
	return opts
}

func TestBuildTriggerCalldataAppendsQuoteHash(t *testing.T) {
	data, err := BuildTriggerCalldata(testSpender, big.NewInt(1_050_000), testQuote)
	if err != nil {
		t.Fatalf("BuildTriggerCalldata failed: %v", err)
	}
	hash := hexutil.MustDecode(testQuote)
	if !bytes.HasSuffix(data, hash) {
		t.Fatal("expected quote hash suffix")
	}
	if len(data) != 4+64+len(hash) {
		t.Fatalf("unexpected calldata length %d", len(data))
	}
	if _, err := BuildTriggerCalldata(testSpender, big.NewInt(1), ""); err == nil {
		t.Fatal("expected empty quote hash to fail")
	}
}

func TestSendTriggerBroadcastsApproveWithFee(t *testing.T) {
	node := chaintest.NewNode(t, 8453)
	client := dialTestClient(t, node)
	txSigner := newTestSigner(t)

	amount := big.NewInt(1_050_000)
	hash, err := SendTrigger(context.Background(), client, txSigner, TriggerRequest{
		ChainID:   8453,
		Token:     testToken,
		Spender:   testSpender,
		Amount:    amount,
		QuoteHash: testQuote,
	}, fastTriggerOptions())
	if err != nil {
		t.Fatalf("SendTrigger failed: %v", err)
	}

	sent := node.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one broadcast transaction, got %d", len(sent))
	}
	tx := sent[0]
	if tx.Hash() != hash {
		t.Fatalf("returned hash %s does not match broadcast %s", hash.Hex(), tx.Hash().Hex())
	}
	if tx.Type() != types.DynamicFeeTxType {
		t.Fatalf("expected dynamic fee tx, got type %d", tx.Type())
	}
	if *tx.To() != testToken {
		t.Fatalf("expected trigger to token, got %s", tx.To().Hex())
	}
	// 90000 estimated gas with the default 1.2 buffer.
	if tx.Gas() != 108_000 {
		t.Fatalf("unexpected gas limit %d", tx.Gas())
	}
	// 2 * base fee + tip.
	if tx.GasFeeCap().Cmp(big.NewInt(3_000_000_000)) != 0 {
		t.Fatalf("unexpected fee cap %s", tx.GasFeeCap())
	}
	want, _ := BuildTriggerCalldata(testSpender, amount, testQuote)
	if !bytes.Equal(tx.Data(), want) {
		t.Fatal("unexpected trigger calldata")
	}
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(8453)), tx)
	if err != nil || from != txSigner.Address() {
		t.Fatalf("unexpected sender %s err=%v", from.Hex(), err)
	}
}

func TestSendTriggerRevertIsExecutionFailure(t *testing.T) {
	node := chaintest.NewNode(t, 8453)
	failed := types.ReceiptStatusFailed
	node.ReceiptStatus = &failed
	client := dialTestClient(t, node)

	_, err := SendTrigger(context.Background(), client, newTestSigner(t), TriggerRequest{
		Token: testToken, Spender: testSpender, Amount: big.NewInt(1), QuoteHash: testQuote,
	}, fastTriggerOptions())
	if clierr.CodeOf(err) != clierr.CodeExecutionFailed {
		t.Fatalf("expected execution failure, got %v", err)
	}
}

func TestSendTriggerTimesOutWithoutReceipt(t *testing.T) {
	node := chaintest.NewNode(t, 8453)
	node.ReceiptStatus = nil
	client := dialTestClient(t, node)

	opts := fastTriggerOptions()
	opts.Timeout = 50 * time.Millisecond
	_, err := SendTrigger(context.Background(), client, newTestSigner(t), TriggerRequest{
		Token: testToken, Spender: testSpender, Amount: big.NewInt(1), QuoteHash: testQuote,
	}, opts)
	if clierr.CodeOf(err) != clierr.CodeTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestSendTriggerRejectsChainMismatch(t *testing.T) {
	node := chaintest.NewNode(t, 10)
	client := dialTestClient(t, node)
	sender := NewTriggerSender(client, newTestSigner(t), fastTriggerOptions())
	_, err := sender.Send(context.Background(), TriggerRequest{
		ChainID: 8453, Token: testToken, Spender: testSpender, Amount: big.NewInt(1), QuoteHash: testQuote,
	})
	if clierr.CodeOf(err) != clierr.CodeConfig {
		t.Fatalf("expected config error, got %v", err)
	}
	if len(node.Sent()) != 0 {
		t.Fatal("no transaction may be broadcast on chain mismatch")
	}
}

func TestParseGwei(t *testing.T) {
	v, err := parseGwei("1.5")
	if err != nil || v.Int64() != 1_500_000_000 {
		t.Fatalf("unexpected parse result %v err=%v", v, err)
	}
	if _, err := parseGwei("0.0000000001"); err == nil {
		t.Fatal("expected sub-wei value to fail")
	}
}
