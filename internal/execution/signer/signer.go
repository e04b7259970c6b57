package signer

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrNoKey means neither MEEFLOW_PRIVATE_KEY, KEY, PRIVATE_KEY nor
// --private-key carried a key.
var ErrNoKey = errors.New("no signing key: set MEEFLOW_PRIVATE_KEY (or KEY in .env) or pass --private-key")

// Signer owns the EOA behind the smart accounts and signs the trigger
// transaction.
type Signer interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
}
