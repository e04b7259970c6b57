package execution

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/execution/planner"
	"github.com/ggonzalez94/meeflow/internal/execution/signer"
)

type TriggerOptions struct {
	PollInterval       time.Duration
	Timeout            time.Duration
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
}

func DefaultTriggerOptions() TriggerOptions {
	return TriggerOptions{
		PollInterval:  2 * time.Second,
		Timeout:       2 * time.Minute,
		GasMultiplier: 1.2,
	}
}

// TriggerRequest funds the smart account for one quoted supertransaction.
type TriggerRequest struct {
	ChainID int64
	Token   common.Address
	// Spender is the source-chain smart account pulling the funds.
	Spender common.Address
	// Amount is the transfer amount plus the quoted fee, in base units.
	Amount    *big.Int
	QuoteHash string
}

// BuildTriggerCalldata packs approve(spender, amount) with the quote hash
// appended so the relay can bind the transaction to its quote.
func BuildTriggerCalldata(spender common.Address, amount *big.Int, quoteHash string) ([]byte, error) {
	data, err := planner.ApproveCalldata(spender, amount)
	if err != nil {
		return nil, err
	}
	hash, err := decodeHex(quoteHash)
	if err != nil || len(hash) == 0 {
		return nil, clierr.New(clierr.CodeValidation, fmt.Sprintf("invalid quote hash %q", quoteHash))
	}
	return append(data, hash...), nil
}

// TriggerSender broadcasts trigger transactions through one chain client.
type TriggerSender struct {
	client *ethclient.Client
	signer signer.Signer
	opts   TriggerOptions
}

func NewTriggerSender(client *ethclient.Client, txSigner signer.Signer, opts TriggerOptions) *TriggerSender {
	return &TriggerSender{client: client, signer: txSigner, opts: opts}
}

func (s *TriggerSender) Send(ctx context.Context, req TriggerRequest) (common.Hash, error) {
	return SendTrigger(ctx, s.client, s.signer, req, s.opts)
}

// SendTrigger signs and broadcasts the trigger transaction and waits for a
// successful receipt.
func SendTrigger(ctx context.Context, client *ethclient.Client, txSigner signer.Signer, req TriggerRequest, opts TriggerOptions) (common.Hash, error) {
	if txSigner == nil {
		return common.Hash{}, clierr.New(clierr.CodeSigner, "missing signer")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	if req.ChainID != 0 && chainID.Int64() != req.ChainID {
		return common.Hash{}, clierr.New(clierr.CodeConfig, fmt.Sprintf("trigger chain mismatch: expected %d, rpc reports %d", req.ChainID, chainID.Int64()))
	}
	data, err := BuildTriggerCalldata(req.Spender, req.Amount, req.QuoteHash)
	if err != nil {
		return common.Hash{}, err
	}
	target := req.Token
	value := new(big.Int)
	msg := ethereum.CallMsg{From: txSigner.Address(), To: &target, Value: value, Data: data}

	gasLimit, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeExecutionFailed, "estimate trigger gas", err)
	}
	gasLimit = uint64(float64(gasLimit) * opts.GasMultiplier)

	tipCap, err := resolveTipCap(ctx, client, opts.MaxPriorityFeeGwei)
	if err != nil {
		return common.Hash{}, err
	}
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, opts.MaxFeeGwei)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := client.PendingNonceAt(ctx, txSigner.Address())
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &target,
		Value:     value,
		Data:      data,
	})
	signed, err := txSigner.SignTx(chainID, tx)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeSigner, "sign trigger transaction", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "broadcast trigger transaction", err)
	}
	if err := waitForReceipt(ctx, client, signed.Hash(), opts); err != nil {
		return signed.Hash(), err
	}
	return signed.Hash(), nil
}

func waitForReceipt(ctx context.Context, client *ethclient.Client, hash common.Hash, opts TriggerOptions) error {
	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := client.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return nil
			}
			return clierr.New(clierr.CodeExecutionFailed, "trigger transaction reverted on-chain")
		}
		// Polling errors other than the deadline are retried until it passes.
		select {
		case <-waitCtx.Done():
			return clierr.Wrap(clierr.CodeTimeout, "timed out waiting for trigger receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func resolveTipCap(ctx context.Context, client *ethclient.Client, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max priority fee", err)
		}
		return v, nil
	}
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000), nil // 2 gwei fallback
	}
	return tipCap, nil
}

func resolveFeeCap(baseFee, tipCap *big.Int, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max fee", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, clierr.New(clierr.CodeUsage, "max fee must be >= max priority fee")
		}
		return v, nil
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return feeCap, nil
}

func parseGwei(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return nil, fmt.Errorf("empty gwei value")
	}
	rat, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	rat.Mul(rat, big.NewRat(1_000_000_000, 1))
	if !rat.IsInt() {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return new(big.Int).Set(rat.Num()), nil
}

func decodeHex(v string) ([]byte, error) {
	clean := strings.TrimSpace(v)
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return buf, nil
}
