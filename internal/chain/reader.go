package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/id"
	"github.com/ggonzalez94/meeflow/internal/registry"
	"github.com/shopspring/decimal"
)

var erc20ABI = mustABI(registry.ERC20ABI)

// Reader is a read-only view of one EVM chain.
type Reader struct {
	chain  id.Chain
	rpcURL string
	client *ethclient.Client
}

// Dial connects to rpcURL and checks that it serves the expected chain.
func Dial(ctx context.Context, chain id.Chain, rpcURL string) (*Reader, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, clierr.New(clierr.CodeConfig, fmt.Sprintf("missing rpc url for %s", chain.Name))
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("connect %s rpc", chain.Name), err)
	}
	got, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("read %s chain id", chain.Name), err)
	}
	if got.Int64() != chain.EVMChainID {
		client.Close()
		return nil, clierr.New(clierr.CodeConfig, fmt.Sprintf("rpc for %s reports chain id %d, expected %d", chain.Name, got.Int64(), chain.EVMChainID))
	}
	return &Reader{chain: chain, rpcURL: rpcURL, client: client}, nil
}

func (r *Reader) Chain() id.Chain { return r.chain }

func (r *Reader) RPCURL() string { return r.rpcURL }

// Client exposes the underlying client for transaction submission.
func (r *Reader) Client() *ethclient.Client { return r.client }

func (r *Reader) Close() {
	if r != nil && r.client != nil {
		r.client.Close()
	}
}

// Call performs an eth_call against the latest block.
func (r *Reader) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("eth_call %s on %s", to.Hex(), r.chain.Name), err)
	}
	return out, nil
}

// ReadBalanceRaw returns the ERC20 balance of owner in base units.
func (r *Reader) ReadBalanceRaw(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack balanceOf", err)
	}
	out, err := r.Call(ctx, token, data)
	if err != nil {
		return nil, err
	}
	values, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil || len(values) != 1 {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("decode balanceOf(%s) on %s", owner.Hex(), r.chain.Name))
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "unexpected balanceOf result type")
	}
	return balance, nil
}

func (r *Reader) ReadDecimals(ctx context.Context, token common.Address) (int, error) {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeInternal, "pack decimals", err)
	}
	out, err := r.Call(ctx, token, data)
	if err != nil {
		return 0, err
	}
	values, err := erc20ABI.Unpack("decimals", out)
	if err != nil || len(values) != 1 {
		return 0, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("decode decimals of %s", token.Hex()))
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, clierr.New(clierr.CodeUnavailable, "unexpected decimals result type")
	}
	return int(decimals), nil
}

// ReadBalanceDecimal returns the balance scaled by the token's on-chain decimals.
func (r *Reader) ReadBalanceDecimal(ctx context.Context, token, owner common.Address) (decimal.Decimal, error) {
	raw, err := r.ReadBalanceRaw(ctx, token, owner)
	if err != nil {
		return decimal.Zero, err
	}
	decimals, err := r.ReadDecimals(ctx, token)
	if err != nil {
		return decimal.Zero, err
	}
	return id.FromBaseUnits(raw, decimals), nil
}

// IsDeployed reports whether addr has contract code.
func (r *Reader) IsDeployed(ctx context.Context, addr common.Address) (bool, error) {
	code, err := r.client.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("read code at %s", addr.Hex()), err)
	}
	return len(code) > 0, nil
}

// LatestBlockTimestamp returns the timestamp of the latest block.
func (r *Reader) LatestBlockTimestamp(ctx context.Context) (time.Time, error) {
	header, err := r.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return time.Time{}, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("fetch latest %s block", r.chain.Name), err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
