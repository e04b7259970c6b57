package signer

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// GenerateKey creates a fresh secp256k1 key. The key is returned as hex
// without a 0x prefix.
func GenerateKey() (string, common.Address, error) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		return "", common.Address{}, fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(crypto.FromECDSA(pk)), crypto.PubkeyToAddress(pk.PublicKey), nil
}
