// Package dapp defines the shared types of the minting client.
// The wallet, contract, reconciler and controller packages all speak in
// these terms, so presentation code never has to import go-ethereum.
package dapp

import (
	"math/big"
	"time"
)

// Phase is the lifecycle stage of the state reconciler.
type Phase int

const (
	Unstarted        Phase = iota // No session yet, nothing is polled
	Polling                       // Presale status and mint count are both polled
	PollingMintsOnly              // Presale has ended, only the mint count is polled
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Unstarted:
		return "Unstarted"
	case Polling:
		return "Polling"
	case PollingMintsOnly:
		return "PollingMintsOnly"
	default:
		return "Unknown"
	}
}

// Method identifies a state-mutating contract call.
type Method int

const (
	PresaleMint  Method = iota // presaleMint(), payable, whitelist enforced by the contract
	PublicMint                 // mint(), payable
	StartPresale               // startPresale(), owner only
)

// String returns the user-facing action name.
func (m Method) String() string {
	switch m {
	case PresaleMint:
		return "Presale Mint"
	case PublicMint:
		return "Public Mint"
	case StartPresale:
		return "Start Presale"
	default:
		return "Unknown"
	}
}

// ContractMethod returns the ABI method name invoked for m.
func (m Method) ContractMethod() string {
	switch m {
	case PresaleMint:
		return "presaleMint"
	case PublicMint:
		return "mint"
	case StartPresale:
		return "startPresale"
	default:
		return ""
	}
}

// Payable reports whether the call must carry the mint price.
func (m Method) Payable() bool {
	return m == PresaleMint || m == PublicMint
}

// ViewState is the local picture of the remote contract.
// Only the reconciler mutates it; everybody else gets copies.
type ViewState struct {
	Connected        bool   // A session is established
	Phase            Phase  // Reconciler lifecycle stage
	PresaleActive    bool   // presaleStarted() returned true
	PresaleEnded     bool   // now >= presaleEnded()
	MintedCount      uint64 // tokenIds()
	IsOwner          bool   // owner() equals the session address
	PendingOperation bool   // A write is in flight
}

// OpState is the lifecycle state of a PendingOperation.
type OpState int

const (
	Submitted OpState = iota // Broadcast, waiting for a receipt
	Confirmed                // Mined with status 1
	Failed                   // Reverted or could not be confirmed
)

// String returns the state name.
func (s OpState) String() string {
	switch s {
	case Submitted:
		return "submitted"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// PendingOperation is a single in-flight write.
type PendingOperation struct {
	ID          string    // Client-side identifier
	Method      Method    // Which write was submitted
	Value       *big.Int  // Wei attached to the call
	TxHash      string    // Transaction hash, 0x-prefixed
	State       OpState   // submitted, confirmed or failed
	SubmittedAt time.Time // When the transaction was broadcast
	Err         error     // Set when State is Failed
}

// Done reports whether the operation reached a terminal state.
func (op *PendingOperation) Done() bool {
	return op.State == Confirmed || op.State == Failed
}

// Stream names one of the two independent poll loops.
type Stream string

const (
	StatusStream Stream = "status"
	MintStream   Stream = "mints"
)

// Failure is a poll tick that could not be applied.
type Failure struct {
	Stream Stream
	Err    error
	At     time.Time
}

// Level is the severity of a Notice.
type Level int

const (
	Info Level = iota
	Success
	Warning
	Error
)

// Notice is a user-visible message produced by an action.
type Notice struct {
	Level   Level
	Message string
	Err     error
}
