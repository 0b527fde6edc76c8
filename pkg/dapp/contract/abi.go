// Package contract reads from and writes to the CryptoDevs presale contract.
// Reads go through the session's signer-less backend; writes are signed by
// the session's signer and tracked as a dapp.PendingOperation.
package contract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/Amr-9/DevMint/pkg/dapp"
)

// Read methods exposed by the contract.
const (
	MethodPresaleStarted = "presaleStarted"
	MethodPresaleEnded   = "presaleEnded"
	MethodTokenIDs       = "tokenIds"
	MethodMaxTokenIDs    = "maxTokenIds"
	MethodOwner          = "owner"
)

// CryptoDevsABI covers only the functions the client calls.
const CryptoDevsABI = `[
	{"type":"function","name":"presaleStarted","inputs":[],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
	{"type":"function","name":"presaleEnded","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"tokenIds","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"maxTokenIds","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"owner","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"presaleMint","inputs":[],"outputs":[],"stateMutability":"payable"},
	{"type":"function","name":"mint","inputs":[],"outputs":[],"stateMutability":"payable"},
	{"type":"function","name":"startPresale","inputs":[],"outputs":[],"stateMutability":"nonpayable"}
]`

var parsedABI = mustParseABI(CryptoDevsABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("contract: bad ABI: %v", err))
	}
	return parsed
}

// ABI returns the parsed contract interface.
func ABI() abi.ABI {
	return parsedABI
}

// Selector returns the 4-byte function selector of method.
func Selector(method string) []byte {
	m, ok := parsedABI.Methods[method]
	if !ok {
		return nil
	}
	return m.ID
}

// classify maps node error strings onto the client's error taxonomy.
func classify(method string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, dapp.ErrUserRejected) || errors.Is(err, dapp.ErrInsufficientFunds) {
		return err
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "insufficient funds") {
		return fmt.Errorf("%s: %w: %v", method, dapp.ErrInsufficientFunds, err)
	}
	return &dapp.RemoteCallError{Method: method, Err: err}
}
