package chain

import (
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/compose-network/singleton-deployer/internal/deploy/deployerr"
)

// Signer holds the deployer key and signs transactions for one chain. The
// signer's account owns the nonce sequence, so a Signer must not be shared
// across concurrent batches on the same network.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer
}

// NewSigner parses a hex private key and binds it to the given chain id.
func NewSigner(privateKeyHex string, chainID *big.Int) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, deployerr.Wrap(deployerr.KindValidation, "failed to parse private key", err)
	}

	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.LatestSignerForChainID(chainID),
	}, nil
}

// Address returns the account the signer submits from.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignTx signs a transaction with the deployer key.
func (s *Signer) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, s.signer, s.key)
	if err != nil {
		return nil, deployerr.Wrap(deployerr.KindValidation, "failed to sign transaction", err)
	}
	return signed, nil
}
