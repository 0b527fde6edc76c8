package dapp

import (
	"errors"
	"fmt"
)

var (
	// ErrWrongNetwork means the provider is on a chain other than the configured one.
	ErrWrongNetwork = errors.New("wrong network")
	// ErrConnectionRejected means the user declined or failed to unlock the wallet.
	ErrConnectionRejected = errors.New("wallet connection rejected")
	// ErrRemoteCall wraps transient RPC and contract call failures.
	ErrRemoteCall = errors.New("remote call failed")
	// ErrUserRejected means the user declined to sign a transaction.
	ErrUserRejected = errors.New("transaction rejected by user")
	// ErrInsufficientFunds means the account cannot pay value plus gas.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrTransactionReverted means the transaction was mined with a failed status.
	ErrTransactionReverted = errors.New("transaction reverted")
	// ErrOperationPending means another write is still in flight.
	ErrOperationPending = errors.New("another operation is pending")
	// ErrNotConnected means no session has been established.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrNoSigner means a write was attempted with a read-only session.
	ErrNoSigner = errors.New("session has no signer")
)

// RemoteCallError carries the contract or RPC method that failed.
type RemoteCallError struct {
	Method string
	Err    error
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Method, e.Err)
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}

// Is makes every RemoteCallError match ErrRemoteCall.
func (e *RemoteCallError) Is(target error) bool {
	return target == ErrRemoteCall
}

// Describe turns an error into the short sentence shown to the user.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrWrongNetwork):
		return "Change the network to the configured chain"
	case errors.Is(err, ErrConnectionRejected):
		return "Wallet connection was rejected"
	case errors.Is(err, ErrUserRejected):
		return "Transaction was rejected"
	case errors.Is(err, ErrInsufficientFunds):
		return "Insufficient funds for value and gas"
	case errors.Is(err, ErrTransactionReverted):
		return "Transaction reverted on-chain"
	case errors.Is(err, ErrOperationPending):
		return "Wait for the pending transaction to finish"
	case errors.Is(err, ErrNotConnected):
		return "Connect your wallet first"
	case errors.Is(err, ErrNoSigner):
		return "Wallet cannot sign transactions"
	case errors.Is(err, ErrRemoteCall):
		return "Network request failed: " + err.Error()
	default:
		return err.Error()
	}
}
