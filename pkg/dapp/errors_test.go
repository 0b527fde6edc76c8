package dapp

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRemoteCallErrorMatchesSentinel(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("tick: %w", &RemoteCallError{Method: "tokenIds", Err: cause})

	if !errors.Is(err, ErrRemoteCall) {
		t.Fatal("expected ErrRemoteCall match")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to stay reachable")
	}
	var rce *RemoteCallError
	if !errors.As(err, &rce) || rce.Method != "tokenIds" {
		t.Fatalf("unexpected remote call error: %+v", rce)
	}
}

func TestDescribeWrongNetwork(t *testing.T) {
	msg := Describe(fmt.Errorf("authenticate: %w", ErrWrongNetwork))
	if !strings.Contains(msg, "network") {
		t.Fatalf("unexpected message: %q", msg)
	}
	if Describe(nil) != "" {
		t.Fatal("nil error must describe as empty")
	}
}

func TestMethodContractNames(t *testing.T) {
	if PublicMint.ContractMethod() != "mint" {
		t.Fatalf("unexpected public mint method: %s", PublicMint.ContractMethod())
	}
	if StartPresale.Payable() {
		t.Fatal("startPresale must not carry value")
	}
	if !PresaleMint.Payable() {
		t.Fatal("presaleMint must carry value")
	}
}
