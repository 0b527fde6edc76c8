package contract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Amr-9/DevMint/internal/testutil/ethfake"
	"github.com/Amr-9/DevMint/pkg/dapp"
	"github.com/Amr-9/DevMint/pkg/dapp/wallet"
)

const (
	sepolia    = 11155111
	hardhatKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

var contractAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func session(t *testing.T, backend *ethfake.Backend, write bool) *wallet.Session {
	t.Helper()
	w := &wallet.RPCWallet{
		URL:  "fake://node",
		Keys: wallet.HexKey(hardhatKey),
		Dial: func(ctx context.Context, rawURL string) (wallet.Backend, error) {
			return backend, nil
		},
	}
	s, err := wallet.NewGate(w, sepolia, quietLogger()).Session(context.Background(), write)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return s
}

func returns(t *testing.T, method string, values ...any) ethfake.CallHandler {
	t.Helper()
	out, err := ABI().Methods[method].Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s outputs: %v", method, err)
	}
	return func(ethereum.CallMsg) ([]byte, error) { return out, nil }
}

func TestReaderTypedQueries(t *testing.T) {
	backend := ethfake.NewBackend(sepolia)
	owner := common.HexToAddress("0xABCdef0000000000000000000000000000000001")
	backend.Handle(Selector(MethodPresaleStarted), returns(t, MethodPresaleStarted, true))
	backend.Handle(Selector(MethodPresaleEnded), returns(t, MethodPresaleEnded, big.NewInt(1_700_000_000)))
	backend.Handle(Selector(MethodTokenIDs), returns(t, MethodTokenIDs, big.NewInt(7)))
	backend.Handle(Selector(MethodMaxTokenIDs), returns(t, MethodMaxTokenIDs, big.NewInt(20)))
	backend.Handle(Selector(MethodOwner), returns(t, MethodOwner, owner))

	r := NewReader(contractAddr, WithReaderLogger(quietLogger()))
	s := session(t, backend, false)
	ctx := context.Background()

	started, err := r.PresaleStarted(ctx, s)
	if err != nil || !started {
		t.Fatalf("presaleStarted: %v %v", started, err)
	}
	end, err := r.PresaleEnd(ctx, s)
	if err != nil || end.Unix() != 1_700_000_000 {
		t.Fatalf("presaleEnded: %v %v", end, err)
	}
	minted, err := r.TokenIDs(ctx, s)
	if err != nil || minted != 7 {
		t.Fatalf("tokenIds: %d %v", minted, err)
	}
	limit, err := r.MaxTokenIDs(ctx, s)
	if err != nil || limit != 20 {
		t.Fatalf("maxTokenIds: %d %v", limit, err)
	}
	got, err := r.Owner(ctx, s)
	if err != nil || got != owner {
		t.Fatalf("owner: %s %v", got.Hex(), err)
	}
}

func TestReaderFailureIsRemoteCallError(t *testing.T) {
	backend := ethfake.NewBackend(sepolia)
	backend.Handle(Selector(MethodTokenIDs), func(ethereum.CallMsg) ([]byte, error) {
		return nil, errors.New("503 service unavailable")
	})
	r := NewReader(contractAddr, WithReaderLogger(quietLogger()))

	_, err := r.TokenIDs(context.Background(), session(t, backend, false))
	var rce *dapp.RemoteCallError
	if !errors.As(err, &rce) || rce.Method != MethodTokenIDs {
		t.Fatalf("expected tokenIds RemoteCallError, got %v", err)
	}
}

func TestReaderEmptyResultIsRemoteCallError(t *testing.T) {
	backend := ethfake.NewBackend(sepolia)
	backend.Handle(Selector(MethodOwner), func(ethereum.CallMsg) ([]byte, error) { return nil, nil })
	r := NewReader(contractAddr, WithReaderLogger(quietLogger()))

	if _, err := r.Owner(context.Background(), session(t, backend, false)); !errors.Is(err, dapp.ErrRemoteCall) {
		t.Fatalf("expected ErrRemoteCall for empty result, got %v", err)
	}
}

func TestReaderPresaleEndOutOfRange(t *testing.T) {
	backend := ethfake.NewBackend(sepolia)
	backend.Handle(Selector(MethodPresaleEnded), returns(t, MethodPresaleEnded, new(big.Int).Lsh(big.NewInt(1), 63)))
	r := NewReader(contractAddr, WithReaderLogger(quietLogger()))

	end, err := r.PresaleEnd(context.Background(), session(t, backend, false))
	var rce *dapp.RemoteCallError
	if !errors.As(err, &rce) || rce.Method != MethodPresaleEnded {
		t.Fatalf("expected presaleEnded RemoteCallError, got %v (end %v)", err, end)
	}
}

func TestReaderRequiresSession(t *testing.T) {
	r := NewReader(contractAddr)
	if _, err := r.TokenIDs(context.Background(), nil); !errors.Is(err, dapp.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestReaderRateLimitHonoursContext(t *testing.T) {
	backend := ethfake.NewBackend(sepolia)
	backend.Handle(Selector(MethodTokenIDs), returns(t, MethodTokenIDs, big.NewInt(1)))
	r := NewReader(contractAddr, WithRateLimit(0.001, 1), WithReaderLogger(quietLogger()))
	s := session(t, backend, false)

	if _, err := r.TokenIDs(context.Background(), s); err != nil {
		t.Fatalf("first call within burst: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.TokenIDs(ctx, s); !errors.Is(err, dapp.ErrRemoteCall) {
		t.Fatalf("expected throttled call to fail, got %v", err)
	}
	if n := backend.Calls(Selector(MethodTokenIDs)); n != 1 {
		t.Fatalf("throttled call reached the node: %d calls", n)
	}
}

func TestSubmitAttachesValueAndConfirms(t *testing.T) {
	backend := ethfake.NewBackend(sepolia)
	backend.PendingPolls = 2
	w := NewWriter(contractAddr, WithReceiptPoll(time.Millisecond), WithWriterLogger(quietLogger()))
	s := session(t, backend, true)
	price := big.NewInt(10_000_000_000_000_000)

	op, err := w.Submit(context.Background(), s, dapp.PresaleMint, price)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if op.State != dapp.Submitted || op.ID == "" {
		t.Fatalf("unexpected op: %+v", op)
	}
	sent := backend.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one transaction, got %d", len(sent))
	}
	if sent[0].Value().Cmp(price) != 0 || *sent[0].To() != contractAddr {
		t.Fatalf("unexpected tx: value=%s to=%s", sent[0].Value(), sent[0].To().Hex())
	}
	if string(sent[0].Data()[:4]) != string(Selector("presaleMint")) {
		t.Fatal("transaction does not call presaleMint")
	}

	receipt, err := w.AwaitConfirmation(context.Background(), s, op)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful || op.State != dapp.Confirmed {
		t.Fatalf("unexpected outcome: status=%d state=%s", receipt.Status, op.State)
	}
}

func TestAwaitConfirmationReverted(t *testing.T) {
	backend := ethfake.NewBackend(sepolia)
	backend.ReceiptStatus = types.ReceiptStatusFailed
	w := NewWriter(contractAddr, WithReceiptPoll(time.Millisecond), WithWriterLogger(quietLogger()))
	s := session(t, backend, true)

	op, err := w.Submit(context.Background(), s, dapp.PublicMint, big.NewInt(1))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := w.AwaitConfirmation(context.Background(), s, op); !errors.Is(err, dapp.ErrTransactionReverted) {
		t.Fatalf("expected ErrTransactionReverted, got %v", err)
	}
	if op.State != dapp.Failed {
		t.Fatalf("expected failed op, got %s", op.State)
	}
}

func TestSubmitInsufficientFundsPreflight(t *testing.T) {
	backend := ethfake.NewBackend(sepolia)
	backend.Balance = big.NewInt(1000)
	w := NewWriter(contractAddr, WithWriterLogger(quietLogger()))

	_, err := w.Submit(context.Background(), session(t, backend, true), dapp.PublicMint, big.NewInt(10_000_000_000_000_000))
	if !errors.Is(err, dapp.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if len(backend.Sent()) != 0 {
		t.Fatal("nothing should be broadcast")
	}
}

func TestSubmitNodeInsufficientFunds(t *testing.T) {
	backend := ethfake.NewBackend(sepolia)
	backend.EstimateErr = errors.New("insufficient funds for gas * price + value")
	w := NewWriter(contractAddr, WithWriterLogger(quietLogger()))

	_, err := w.Submit(context.Background(), session(t, backend, true), dapp.PublicMint, big.NewInt(1))
	if !errors.Is(err, dapp.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestSubmitRequiresSigner(t *testing.T) {
	backend := ethfake.NewBackend(sepolia)
	w := NewWriter(contractAddr)
	if _, err := w.Submit(context.Background(), session(t, backend, false), dapp.StartPresale, nil); !errors.Is(err, dapp.ErrNoSigner) {
		t.Fatalf("expected ErrNoSigner, got %v", err)
	}
}

func TestSubmitUserRejected(t *testing.T) {
	backend := ethfake.NewBackend(sepolia)
	wl := &wallet.RPCWallet{
		URL:     "fake://node",
		Keys:    wallet.HexKey(hardhatKey),
		Approve: func(context.Context, common.Address, wallet.SignRequest) bool { return false },
		Dial: func(ctx context.Context, rawURL string) (wallet.Backend, error) {
			return backend, nil
		},
	}
	s, err := wallet.NewGate(wl, sepolia, quietLogger()).Session(context.Background(), true)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	w := NewWriter(contractAddr, WithWriterLogger(quietLogger()))

	if _, err := w.Submit(context.Background(), s, dapp.StartPresale, nil); !errors.Is(err, dapp.ErrUserRejected) {
		t.Fatalf("expected ErrUserRejected, got %v", err)
	}
	if len(backend.Sent()) != 0 {
		t.Fatal("rejected transaction must not be broadcast")
	}
}
