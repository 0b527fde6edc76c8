package reconciler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Amr-9/DevMint/pkg/dapp"
	"github.com/Amr-9/DevMint/pkg/dapp/wallet"
)

type fakeReader struct {
	mu sync.Mutex

	started    bool
	startedErr error
	end        time.Time
	endErr     error
	minted     []uint64 // consumed one per call, last value repeats
	mintErr    error
	owner      common.Address

	startedCalls int
	mintCalls    int
}

func (f *fakeReader) PresaleStarted(ctx context.Context, s *wallet.Session) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startedCalls++
	return f.started, f.startedErr
}

func (f *fakeReader) PresaleEnd(ctx context.Context, s *wallet.Session) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.end, f.endErr
}

func (f *fakeReader) TokenIDs(ctx context.Context, s *wallet.Session) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mintCalls++
	if f.mintErr != nil {
		return 0, f.mintErr
	}
	n := f.minted[0]
	if len(f.minted) > 1 {
		f.minted = f.minted[1:]
	}
	return n, nil
}

func (f *fakeReader) Owner(ctx context.Context, s *wallet.Session) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owner, nil
}

func (f *fakeReader) counts() (started, mints int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startedCalls, f.mintCalls
}

func (f *fakeReader) set(fn func(f *fakeReader)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type fakeSessions struct {
	session *wallet.Session
	err     error
}

func (f *fakeSessions) Session(ctx context.Context, requireWrite bool) (*wallet.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestReconciler(reader *fakeReader, sessions Sessions, opts ...Option) *Reconciler {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New(reader, sessions, opts...)
}

func connected(address string) *fakeSessions {
	return &fakeSessions{session: &wallet.Session{Connected: true, ChainID: 11155111, Address: address}}
}

func TestMintCountTracksReaderAndSurvivesFailure(t *testing.T) {
	reader := &fakeReader{minted: []uint64{3, 5, 4}}
	r := newTestReconciler(reader, connected(""))
	ctx := context.Background()

	for _, want := range []uint64{3, 5, 4} {
		if err := r.ReconcileMints(ctx); err != nil {
			t.Fatalf("reconcile mints: %v", err)
		}
		if got := r.Snapshot().MintedCount; got != want {
			t.Fatalf("minted count: want %d, got %d", want, got)
		}
	}

	reader.set(func(f *fakeReader) { f.mintErr = errors.New("timeout") })
	if err := r.ReconcileMints(ctx); err == nil {
		t.Fatal("expected failure")
	}
	if got := r.Snapshot().MintedCount; got != 4 {
		t.Fatalf("failed tick must not overwrite, got %d", got)
	}
}

func TestPresaleEndedBoundary(t *testing.T) {
	end := time.Unix(1_700_000_000, 0)
	reader := &fakeReader{started: true, end: end}
	now := end.Add(-time.Second)
	r := newTestReconciler(reader, connected(""), WithClock(func() time.Time { return now }))

	ended, err := r.ReconcileStatus(context.Background())
	if err != nil {
		t.Fatalf("reconcile status: %v", err)
	}
	if ended || r.Snapshot().PresaleEnded {
		t.Fatal("presale must not be ended before the end timestamp")
	}
	if !r.Snapshot().PresaleActive {
		t.Fatal("presale should be active")
	}

	now = end
	ended, err = r.ReconcileStatus(context.Background())
	if err != nil {
		t.Fatalf("reconcile status: %v", err)
	}
	if !ended || !r.Snapshot().PresaleEnded {
		t.Fatal("presale must be ended at the end timestamp")
	}
}

func TestOwnerComparisonIgnoresCase(t *testing.T) {
	owner := common.HexToAddress("0xABCDEF0123456789ABCDEF0123456789ABCDEF01")
	reader := &fakeReader{owner: owner}
	r := newTestReconciler(reader, connected("0xabcdef0123456789abcdef0123456789abcdef01"))

	if _, err := r.ReconcileStatus(context.Background()); err != nil {
		t.Fatalf("reconcile status: %v", err)
	}
	if !r.Snapshot().IsOwner {
		t.Fatal("expected case-insensitive owner match")
	}
}

func TestReadOnlySessionIsNeverOwner(t *testing.T) {
	reader := &fakeReader{owner: common.HexToAddress("0x1")}
	sessions := &readOnlySessions{session: &wallet.Session{Connected: true, ChainID: 11155111}}
	r := newTestReconciler(reader, sessions)

	if _, err := r.ReconcileStatus(context.Background()); err != nil {
		t.Fatalf("reconcile status: %v", err)
	}
	if r.Snapshot().IsOwner {
		t.Fatal("read-only session cannot be owner")
	}
}

type readOnlySessions struct {
	session *wallet.Session
}

func (s *readOnlySessions) Session(ctx context.Context, requireWrite bool) (*wallet.Session, error) {
	if requireWrite {
		return nil, dapp.ErrNoSigner
	}
	return s.session, nil
}

func TestStatusFailureLeavesStateUntouched(t *testing.T) {
	reader := &fakeReader{started: true, endErr: &dapp.RemoteCallError{Method: "presaleEnded", Err: errors.New("boom")}, minted: []uint64{0}}
	r := newTestReconciler(reader, connected(""), WithInterval(time.Hour))

	var mu sync.Mutex
	failures := 0
	r.OnFailure(func(f dapp.Failure) {
		if f.Stream == dapp.StatusStream {
			mu.Lock()
			failures++
			mu.Unlock()
		}
	})
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return failures
	}

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer r.Stop()
	waitFor(t, "first status failure", func() bool { return count() == 1 })

	if err := r.Refresh(context.Background()); !errors.Is(err, dapp.ErrRemoteCall) {
		t.Fatalf("expected remote call error, got %v", err)
	}
	if r.Snapshot().PresaleActive {
		t.Fatal("partial tick must not set PresaleActive")
	}
	if got := count(); got != 2 {
		t.Fatalf("refresh should report one more failure, got %d", got)
	}
}

func TestRefreshRequiresPolling(t *testing.T) {
	reader := &fakeReader{started: true, end: time.Now().Add(time.Hour), minted: []uint64{3}}
	r := newTestReconciler(reader, connected(""))

	if err := r.Refresh(context.Background()); !errors.Is(err, dapp.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected before Start, got %v", err)
	}
	if started, _ := reader.counts(); started != 0 {
		t.Fatalf("refresh without polling queried the contract %d times", started)
	}
	if got := r.Snapshot(); got != (dapp.ViewState{}) {
		t.Fatalf("state changed: %+v", got)
	}

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh while polling: %v", err)
	}
	r.Stop()
	if err := r.Refresh(context.Background()); !errors.Is(err, dapp.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after Stop, got %v", err)
	}
}

func TestEndedImpliesActive(t *testing.T) {
	reader := &fakeReader{started: false, end: time.Unix(0, 0)}
	r := newTestReconciler(reader, connected(""))
	if _, err := r.ReconcileStatus(context.Background()); err != nil {
		t.Fatalf("reconcile status: %v", err)
	}
	if r.Snapshot().PresaleEnded {
		t.Fatal("presale cannot end before it started")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStatusStreamStopsOnceEndedWhileMintsContinue(t *testing.T) {
	reader := &fakeReader{started: true, end: time.Unix(1, 0), minted: []uint64{1}}
	r := newTestReconciler(reader, connected(""), WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer r.Stop()

	select {
	case <-r.StatusTask().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("status stream did not stop after presale ended")
	}
	if got := r.Snapshot().Phase; got != dapp.PollingMintsOnly {
		t.Fatalf("expected PollingMintsOnly, got %s", got)
	}

	statusCalls, mintCalls := reader.counts()
	waitFor(t, "more mint polls", func() bool {
		_, m := reader.counts()
		return m >= mintCalls+3
	})
	if s, _ := reader.counts(); s != statusCalls {
		t.Fatalf("status queried after self-cancel: %d -> %d", statusCalls, s)
	}
}

func TestTickFailureDoesNotStopPolling(t *testing.T) {
	reader := &fakeReader{mintErr: errors.New("rpc down"), minted: []uint64{9}}
	r := newTestReconciler(reader, connected(""), WithInterval(5*time.Millisecond))

	var mu sync.Mutex
	failures := 0
	r.OnFailure(func(f dapp.Failure) {
		if f.Stream == dapp.MintStream {
			mu.Lock()
			failures++
			mu.Unlock()
		}
	})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer r.Stop()

	waitFor(t, "repeated failures", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return failures >= 2
	})
	reader.set(func(f *fakeReader) { f.mintErr = nil })
	waitFor(t, "recovery", func() bool { return r.Snapshot().MintedCount == 9 })
}

func TestStartRequiresSession(t *testing.T) {
	r := newTestReconciler(&fakeReader{}, &fakeSessions{err: dapp.ErrWrongNetwork})
	if err := r.Start(context.Background()); !errors.Is(err, dapp.ErrWrongNetwork) {
		t.Fatalf("expected ErrWrongNetwork, got %v", err)
	}
	if got := r.Snapshot(); got.Phase != dapp.Unstarted || got.Connected {
		t.Fatalf("state changed on failed start: %+v", got)
	}
	if r.StatusTask() != nil || r.MintTask() != nil {
		t.Fatal("no task should run without a session")
	}
}

func TestStopReturnsToUnstarted(t *testing.T) {
	const addr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	reader := &fakeReader{started: true, end: time.Now().Add(time.Hour), minted: []uint64{4}, owner: common.HexToAddress(addr)}
	r := newTestReconciler(reader, connected(addr), WithInterval(5*time.Millisecond))
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "first ticks", func() bool {
		v := r.Snapshot()
		return v.MintedCount == 4 && v.PresaleActive
	})
	if !r.BeginOperation() {
		t.Fatal("claim should succeed")
	}
	mints := r.MintTask()
	r.Stop()

	select {
	case <-mints.Done():
	default:
		t.Fatal("mint task still running after Stop")
	}
	want := dapp.ViewState{Phase: dapp.Unstarted, PendingOperation: true}
	if got := r.Snapshot(); got != want {
		t.Fatalf("stale values after Stop: %+v", got)
	}
}

func TestSinglePendingOperation(t *testing.T) {
	r := newTestReconciler(&fakeReader{}, connected(""))

	if !r.BeginOperation() {
		t.Fatal("first claim should succeed")
	}
	if r.BeginOperation() {
		t.Fatal("second claim must fail while pending")
	}
	if !r.Snapshot().PendingOperation {
		t.Fatal("snapshot should show pending operation")
	}
	r.EndOperation()
	if r.Snapshot().PendingOperation || !r.BeginOperation() {
		t.Fatal("slot should be free after EndOperation")
	}
}

func TestOnChangeSeesUpdates(t *testing.T) {
	reader := &fakeReader{minted: []uint64{2}}
	r := newTestReconciler(reader, connected(""))

	var seen []dapp.ViewState
	r.OnChange(func(v dapp.ViewState) { seen = append(seen, v) })

	if err := r.ReconcileMints(context.Background()); err != nil {
		t.Fatalf("reconcile mints: %v", err)
	}
	if err := r.ReconcileMints(context.Background()); err != nil {
		t.Fatalf("reconcile mints: %v", err)
	}
	if len(seen) != 1 || seen[0].MintedCount != 2 {
		t.Fatalf("expected a single change notification, got %+v", seen)
	}
}
