package account

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/ggonzalez94/meeflow/internal/id"
	"github.com/ggonzalez94/meeflow/internal/registry"
)

var factoryABI = mustABI(registry.NexusAccountFactoryABI)

// Caller is the subset of a chain reader needed to derive accounts.
type Caller interface {
	Chain() id.Chain
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Account is the signing EOA plus its smart account on each chain.
type Account struct {
	EOA   common.Address
	Smart map[int64]common.Address
}

// SmartAccount returns the smart account on chainID.
func (a Account) SmartAccount(chainID int64) (common.Address, bool) {
	addr, ok := a.Smart[chainID]
	return addr, ok
}

// Derive resolves the smart account owned by eoa on every chain served by callers.
func Derive(ctx context.Context, eoa common.Address, callers ...Caller) (Account, error) {
	out := Account{EOA: eoa, Smart: make(map[int64]common.Address, len(callers))}
	for _, c := range callers {
		addr, err := SmartAccountAddress(ctx, c, eoa)
		if err != nil {
			return Account{}, err
		}
		out.Smart[c.Chain().EVMChainID] = addr
	}
	return out, nil
}

// SmartAccountAddress asks the account factory for the counterfactual address of eoa.
func SmartAccountAddress(ctx context.Context, c Caller, eoa common.Address) (common.Address, error) {
	chain := c.Chain()
	data, err := factoryABI.Pack("computeAccountAddress", eoa, big.NewInt(registry.NexusAccountIndex))
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeInternal, "pack computeAccountAddress", err)
	}
	out, err := c.Call(ctx, common.HexToAddress(registry.NexusAccountFactory), data)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeValidation, fmt.Sprintf("cannot get smart account address on %s", chain.Name), err)
	}
	values, err := factoryABI.Unpack("computeAccountAddress", out)
	if err != nil || len(values) != 1 {
		return common.Address{}, clierr.New(clierr.CodeValidation, fmt.Sprintf("cannot get smart account address on %s", chain.Name))
	}
	addr, ok := values[0].(common.Address)
	if !ok || addr == (common.Address{}) {
		return common.Address{}, clierr.New(clierr.CodeValidation, fmt.Sprintf("cannot get smart account address on %s", chain.Name))
	}
	return addr, nil
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
