// Package ethfake provides an in-memory stand-in for an Ethereum JSON-RPC
// node, enough to exercise contract reads, transaction submission and
// receipt polling in tests.
package ethfake

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CallHandler answers an eth_call whose data starts with a registered selector.
type CallHandler func(msg ethereum.CallMsg) ([]byte, error)

// Backend is a scripted node. Zero values of the exported knobs give a
// funded account on chain 11155111 whose transactions always succeed.
type Backend struct {
	mu sync.Mutex

	Chain       int64
	ChainErr    error
	Balance     *big.Int
	GasPrice    *big.Int
	GasLimit    uint64
	EstimateErr error
	SendErr     error

	// ReceiptStatus is stored for every sent transaction.
	ReceiptStatus uint64
	// PendingPolls is how many receipt lookups report NotFound before the receipt appears.
	PendingPolls int

	handlers map[string]CallHandler
	calls    map[string]int
	nonce    uint64
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	polls    map[common.Hash]int
	closed   bool
}

// NewBackend returns a backend on chainID with a large balance.
func NewBackend(chainID int64) *Backend {
	return &Backend{
		Chain:         chainID,
		Balance:       new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil),
		GasPrice:      big.NewInt(1_000_000_000),
		GasLimit:      100_000,
		ReceiptStatus: types.ReceiptStatusSuccessful,
		handlers:      make(map[string]CallHandler),
		calls:         make(map[string]int),
		receipts:      make(map[common.Hash]*types.Receipt),
		polls:         make(map[common.Hash]int),
	}
}

// Handle registers the answer for calls to selector.
func (b *Backend) Handle(selector []byte, h CallHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[hex.EncodeToString(selector)] = h
}

// Calls reports how many eth_calls hit selector.
func (b *Backend) Calls(selector []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[hex.EncodeToString(selector)]
}

// Sent returns the broadcast transactions.
func (b *Backend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.sent...)
}

// SetChain switches the reported network, simulating the user changing it.
func (b *Backend) SetChain(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Chain = id
}

// Closed reports whether Close was called.
func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ChainErr != nil {
		return nil, b.ChainErr
	}
	return big.NewInt(b.Chain), nil
}

func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if len(msg.Data) < 4 {
		return nil, errors.New("call data too short")
	}
	key := hex.EncodeToString(msg.Data[:4])

	b.mu.Lock()
	b.calls[key]++
	h, ok := b.handlers[key]
	b.mu.Unlock()

	if !ok {
		return nil, errors.New("execution reverted")
	}
	return h(msg)
}

func (b *Backend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.Balance), nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonce, nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.GasPrice), nil
}

func (b *Backend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.EstimateErr != nil {
		return 0, b.EstimateErr
	}
	return b.GasLimit, nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SendErr != nil {
		return b.SendErr
	}
	b.nonce++
	b.sent = append(b.sent, tx)
	b.receipts[tx.Hash()] = &types.Receipt{
		Status:      b.ReceiptStatus,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(int64(len(b.sent))),
		GasUsed:     tx.Gas(),
	}
	return nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	if b.polls[txHash] < b.PendingPolls {
		b.polls[txHash]++
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}
