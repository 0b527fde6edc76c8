package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/Amr-9/DevMint/pkg/dapp"
	"github.com/Amr-9/DevMint/pkg/dapp/wallet"
)

const defaultReceiptPoll = 2 * time.Second

// Writer submits signed transactions and waits for their receipts.
// It does not enforce the single-pending-operation rule; callers do.
type Writer struct {
	address     common.Address
	abi         abi.ABI
	receiptPoll time.Duration
	now         func() time.Time
	log         *slog.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithReceiptPoll sets how often AwaitConfirmation asks for the receipt.
func WithReceiptPoll(d time.Duration) WriterOption {
	return func(w *Writer) {
		if d > 0 {
			w.receiptPoll = d
		}
	}
}

// WithWriterLogger sets the logger.
func WithWriterLogger(l *slog.Logger) WriterOption {
	return func(w *Writer) {
		w.log = l
	}
}

// NewWriter creates a writer for the contract at address.
func NewWriter(address common.Address, opts ...WriterOption) *Writer {
	w := &Writer{
		address:     address,
		abi:         parsedABI,
		receiptPoll: defaultReceiptPoll,
		now:         time.Now,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Submit signs and broadcasts m with value attached. The session must
// carry a signer. The balance is checked against value plus the estimated
// gas before the user is asked to sign.
func (w *Writer) Submit(ctx context.Context, s *wallet.Session, m dapp.Method, value *big.Int) (*dapp.PendingOperation, error) {
	if s == nil {
		return nil, dapp.ErrNotConnected
	}
	signer, ok := s.Signer()
	if !ok {
		return nil, dapp.ErrNoSigner
	}
	method := m.ContractMethod()
	if method == "" {
		return nil, fmt.Errorf("unknown write method %d", m)
	}
	if value == nil {
		value = new(big.Int)
	}
	data, err := w.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	backend := s.Backend()
	from := signer.Address()

	nonce, err := backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, classify("eth_getTransactionCount", err)
	}
	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, classify("eth_gasPrice", err)
	}
	gas, err := backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     from,
		To:       &w.address,
		GasPrice: gasPrice,
		Value:    value,
		Data:     data,
	})
	if err != nil {
		return nil, classify(method, err)
	}

	balance, err := backend.BalanceAt(ctx, from, nil)
	if err != nil {
		return nil, classify("eth_getBalance", err)
	}
	cost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gas))
	cost.Add(cost, value)
	if balance.Cmp(cost) < 0 {
		return nil, fmt.Errorf("%w: need %s wei, have %s wei", dapp.ErrInsufficientFunds, cost, balance)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &w.address,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := signer.SignTx(ctx, wallet.SignRequest{Method: m, Tx: tx, ChainID: big.NewInt(s.ChainID)})
	if err != nil {
		if errors.Is(err, dapp.ErrUserRejected) {
			return nil, err
		}
		return nil, fmt.Errorf("sign %s: %w", method, err)
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return nil, classify("eth_sendRawTransaction", err)
	}

	op := &dapp.PendingOperation{
		ID:          uuid.NewString(),
		Method:      m,
		Value:       value,
		TxHash:      signed.Hash().Hex(),
		State:       dapp.Submitted,
		SubmittedAt: w.now(),
	}
	w.log.Info("transaction submitted", "op", op.ID, "method", method, "tx", op.TxHash, "value_wei", value.String())
	return op, nil
}

// AwaitConfirmation blocks until the receipt for op is available. It has
// no deadline of its own; cancel ctx to stop waiting. Lookup errors other
// than "not found" are treated as transient.
func (w *Writer) AwaitConfirmation(ctx context.Context, s *wallet.Session, op *dapp.PendingOperation) (*types.Receipt, error) {
	if s == nil {
		return nil, dapp.ErrNotConnected
	}
	backend := s.Backend()
	hash := common.HexToHash(op.TxHash)

	ticker := time.NewTicker(w.receiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusSuccessful {
				op.State = dapp.Confirmed
				w.log.Info("transaction confirmed", "op", op.ID, "tx", op.TxHash, "block", receipt.BlockNumber)
				return receipt, nil
			}
			op.State = dapp.Failed
			op.Err = fmt.Errorf("%w: %s", dapp.ErrTransactionReverted, op.TxHash)
			w.log.Warn("transaction reverted", "op", op.ID, "tx", op.TxHash, "block", receipt.BlockNumber)
			return receipt, op.Err
		case errors.Is(err, ethereum.NotFound):
		default:
			w.log.Debug("receipt lookup failed", "tx", op.TxHash, "err", err)
		}

		select {
		case <-ctx.Done():
			op.State = dapp.Failed
			op.Err = ctx.Err()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
