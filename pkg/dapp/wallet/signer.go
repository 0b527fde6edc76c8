package wallet

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Amr-9/DevMint/pkg/dapp"
)

// SignRequest describes a transaction awaiting a signature.
type SignRequest struct {
	Method  dapp.Method
	Tx      *types.Transaction
	ChainID *big.Int
}

// Signer holds the user's signing identity.
type Signer interface {
	Address() common.Address
	SignTx(ctx context.Context, req SignRequest) (*types.Transaction, error)
}

// Approver is asked to confirm a transaction before it is signed.
type Approver func(ctx context.Context, from common.Address, req SignRequest) bool

// KeySigner signs with an in-memory private key.
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewKeySigner wraps a secp256k1 private key.
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

// Address returns the account derived from the key.
func (s *KeySigner) Address() common.Address {
	return s.addr
}

// SignTx signs with the latest signer for the chain (EIP-155 replay protection).
func (s *KeySigner) SignTx(ctx context.Context, req SignRequest) (*types.Transaction, error) {
	return types.SignTx(req.Tx, types.LatestSignerForChainID(req.ChainID), s.key)
}

type approvingSigner struct {
	inner   Signer
	approve Approver
}

// WithApproval asks approve before every signature and fails with
// dapp.ErrUserRejected when it says no.
func WithApproval(inner Signer, approve Approver) Signer {
	return &approvingSigner{inner: inner, approve: approve}
}

func (s *approvingSigner) Address() common.Address {
	return s.inner.Address()
}

func (s *approvingSigner) SignTx(ctx context.Context, req SignRequest) (*types.Transaction, error) {
	if !s.approve(ctx, s.inner.Address(), req) {
		return nil, dapp.ErrUserRejected
	}
	return s.inner.SignTx(ctx, req)
}
