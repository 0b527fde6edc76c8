// Package wallet connects to an Ethereum JSON-RPC provider, unlocks a signing
// key and gates every contract call behind a network-checked Session.
package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Amr-9/DevMint/pkg/dapp"
)

// Backend is the subset of *ethclient.Client the client relies on.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Provider is a connected wallet: a backend plus, optionally, a signing key.
type Provider interface {
	// Backend returns the signer-less connection used for reads and broadcasts.
	Backend() Backend

	// ChainID returns the network identifier the provider is attached to.
	ChainID(ctx context.Context) (int64, error)

	// Signer resolves the signing identity. Read-only wallets return dapp.ErrNoSigner.
	Signer(ctx context.Context) (Signer, error)

	// Close releases the underlying connection.
	Close()
}

// Wallet produces providers. Connect is where the user unlocks the wallet.
type Wallet interface {
	Connect(ctx context.Context) (Provider, error)
}

// DialFunc opens a backend for an RPC endpoint.
type DialFunc func(ctx context.Context, rawURL string) (Backend, error)

// DialRPC dials an HTTP, WebSocket or IPC endpoint with ethclient.
func DialRPC(ctx context.Context, rawURL string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// RPCWallet unlocks a key from Keys and talks to the node at URL.
type RPCWallet struct {
	URL     string
	Keys    KeySource
	Approve Approver // Asked before every signature; nil approves everything
	Dial    DialFunc // Defaults to DialRPC
}

// Connect unlocks the key first, so a declined unlock never opens a connection.
func (w *RPCWallet) Connect(ctx context.Context) (Provider, error) {
	keys := w.Keys
	if keys == nil {
		keys = ReadOnly{}
	}
	signer, err := keys.Unlock()
	if err != nil {
		return nil, err
	}
	if signer != nil && w.Approve != nil {
		signer = WithApproval(signer, w.Approve)
	}

	dial := w.Dial
	if dial == nil {
		dial = DialRPC
	}
	backend, err := dial(ctx, w.URL)
	if err != nil {
		return nil, &dapp.RemoteCallError{Method: "dial", Err: err}
	}
	return &rpcProvider{backend: backend, signer: signer}, nil
}

type rpcProvider struct {
	backend Backend
	signer  Signer
}

func (p *rpcProvider) Backend() Backend {
	return p.backend
}

func (p *rpcProvider) ChainID(ctx context.Context) (int64, error) {
	id, err := p.backend.ChainID(ctx)
	if err != nil {
		return 0, &dapp.RemoteCallError{Method: "eth_chainId", Err: err}
	}
	if !id.IsInt64() {
		return 0, &dapp.RemoteCallError{Method: "eth_chainId", Err: fmt.Errorf("chain id %s out of range", id)}
	}
	return id.Int64(), nil
}

func (p *rpcProvider) Signer(ctx context.Context) (Signer, error) {
	if p.signer == nil {
		return nil, dapp.ErrNoSigner
	}
	return p.signer, nil
}

func (p *rpcProvider) Close() {
	p.backend.Close()
}
