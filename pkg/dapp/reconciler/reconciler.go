// Package reconciler keeps a local dapp.ViewState in line with the remote
// contract by polling it. Two independent streams run: presale status,
// which stops once the presale has ended, and the mint counter, which
// runs for as long as the reconciler does.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Amr-9/DevMint/pkg/dapp"
	"github.com/Amr-9/DevMint/pkg/dapp/wallet"
)

// DefaultInterval matches the five second refresh of the web page.
const DefaultInterval = 5 * time.Second

// Reader is the set of contract queries the reconciler needs.
type Reader interface {
	PresaleStarted(ctx context.Context, s *wallet.Session) (bool, error)
	PresaleEnd(ctx context.Context, s *wallet.Session) (time.Time, error)
	TokenIDs(ctx context.Context, s *wallet.Session) (uint64, error)
	Owner(ctx context.Context, s *wallet.Session) (common.Address, error)
}

// Sessions hands out the current session; *wallet.Gate implements it.
type Sessions interface {
	Session(ctx context.Context, requireWrite bool) (*wallet.Session, error)
}

// Recorder receives per-tick instrumentation.
type Recorder interface {
	ObserveTick(stream dapp.Stream, err error)
	SetMinted(n uint64)
}

// Reconciler owns the ViewState.
type Reconciler struct {
	reader   Reader
	sessions Sessions
	interval time.Duration
	now      func() time.Time
	log      *slog.Logger
	rec      Recorder

	mu      sync.RWMutex
	state   dapp.ViewState
	pending atomic.Bool

	obsMu     sync.Mutex
	onFailure []func(dapp.Failure)
	onChange  []func(dapp.ViewState)

	taskMu sync.Mutex
	status *Task
	mints  *Task
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithInterval sets the poll interval of both streams.
func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithClock replaces time.Now, which decides whether the presale has ended.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		r.log = l
	}
}

// WithRecorder attaches instrumentation.
func WithRecorder(rec Recorder) Option {
	return func(r *Reconciler) {
		r.rec = rec
	}
}

// New creates an unstarted reconciler.
func New(reader Reader, sessions Sessions, opts ...Option) *Reconciler {
	r := &Reconciler{
		reader:   reader,
		sessions: sessions,
		interval: DefaultInterval,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnFailure registers an observer for ticks that could not be applied.
func (r *Reconciler) OnFailure(fn func(dapp.Failure)) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.onFailure = append(r.onFailure, fn)
}

// OnChange registers an observer called with every new ViewState.
func (r *Reconciler) OnChange(fn func(dapp.ViewState)) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.onChange = append(r.onChange, fn)
}

// Snapshot returns a copy of the current ViewState.
func (r *Reconciler) Snapshot() dapp.ViewState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Start requires a session and launches both poll streams.
func (r *Reconciler) Start(ctx context.Context) error {
	if _, err := r.sessions.Session(ctx, false); err != nil {
		return fmt.Errorf("start reconciler: %w", err)
	}

	r.taskMu.Lock()
	defer r.taskMu.Unlock()
	if r.status != nil || r.mints != nil {
		return errors.New("reconciler already started")
	}

	r.update(func(v *dapp.ViewState) {
		v.Connected = true
		v.Phase = dapp.Polling
	})
	r.log.Info("polling started", "interval", r.interval)

	r.status = Every(ctx, r.interval, r.statusTick)
	r.mints = Every(ctx, r.interval, r.mintTick)
	return nil
}

// Stop cancels both streams and returns the reconciler to Unstarted. Values
// read under the old session are cleared; the pending flag is kept because
// it tracks the operation slot, not the session.
func (r *Reconciler) Stop() {
	r.taskMu.Lock()
	status, mints := r.status, r.mints
	r.status, r.mints = nil, nil
	r.taskMu.Unlock()

	if status != nil {
		status.Stop()
	}
	if mints != nil {
		mints.Stop()
	}
	r.update(func(v *dapp.ViewState) {
		*v = dapp.ViewState{Phase: dapp.Unstarted, PendingOperation: v.PendingOperation}
	})
}

// StatusTask returns the handle of the presale-status stream, nil before Start.
func (r *Reconciler) StatusTask() *Task {
	r.taskMu.Lock()
	defer r.taskMu.Unlock()
	return r.status
}

// MintTask returns the handle of the mint-count stream, nil before Start.
func (r *Reconciler) MintTask() *Task {
	r.taskMu.Lock()
	defer r.taskMu.Unlock()
	return r.mints
}

func (r *Reconciler) statusTick(ctx context.Context) bool {
	ended, err := r.ReconcileStatus(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.fail(dapp.StatusStream, err)
		}
		return false
	}
	r.observe(dapp.StatusStream, nil)
	if ended {
		r.update(func(v *dapp.ViewState) { v.Phase = dapp.PollingMintsOnly })
		r.log.Info("presale ended, status polling stopped")
		return true
	}
	return false
}

func (r *Reconciler) mintTick(ctx context.Context) bool {
	if err := r.ReconcileMints(ctx); err != nil {
		if ctx.Err() == nil {
			r.fail(dapp.MintStream, err)
		}
		return false
	}
	r.observe(dapp.MintStream, nil)
	return false
}

// ReconcileStatus performs one presale-status tick. All reads complete
// before anything is written, so a failed read leaves the ViewState as it
// was. It reports whether the presale has ended.
func (r *Reconciler) ReconcileStatus(ctx context.Context) (bool, error) {
	s, err := r.sessions.Session(ctx, false)
	if err != nil {
		return false, err
	}
	active, err := r.reader.PresaleStarted(ctx, s)
	if err != nil {
		return false, err
	}

	var (
		ended   bool
		isOwner *bool
	)
	if active {
		end, err := r.reader.PresaleEnd(ctx, s)
		if err != nil {
			return false, err
		}
		ended = !r.now().Before(end)
	} else {
		owned, err := r.ownedBySession(ctx, s)
		if err != nil {
			return false, err
		}
		isOwner = &owned
	}

	r.update(func(v *dapp.ViewState) {
		v.PresaleActive = active
		if active {
			v.PresaleEnded = ended
		}
		if isOwner != nil {
			v.IsOwner = *isOwner
		}
	})
	return ended, nil
}

// ownedBySession compares owner() against the signing address. A wallet
// without a signer is never the owner.
func (r *Reconciler) ownedBySession(ctx context.Context, s *wallet.Session) (bool, error) {
	owner, err := r.reader.Owner(ctx, s)
	if err != nil {
		return false, err
	}
	ws, err := r.sessions.Session(ctx, true)
	if errors.Is(err, dapp.ErrNoSigner) {
		// Read-only wallet: not an error, just not the owner.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ws.Address != "" && strings.EqualFold(owner.Hex(), ws.Address), nil
}

// ReconcileMints performs one mint-count tick. The remote value is taken
// as is, without a monotonicity check.
func (r *Reconciler) ReconcileMints(ctx context.Context) error {
	s, err := r.sessions.Session(ctx, false)
	if err != nil {
		return err
	}
	n, err := r.reader.TokenIDs(ctx, s)
	if err != nil {
		return err
	}
	r.update(func(v *dapp.ViewState) { v.MintedCount = n })
	if r.rec != nil {
		r.rec.SetMinted(n)
	}
	return nil
}

// Refresh runs one status tick outside the schedule, reporting a failure
// to observers like a scheduled tick would. It fails with ErrNotConnected
// unless polling is running, so it never opens a session on its own.
func (r *Reconciler) Refresh(ctx context.Context) error {
	if r.Snapshot().Phase == dapp.Unstarted {
		return fmt.Errorf("refresh: %w", dapp.ErrNotConnected)
	}
	_, err := r.ReconcileStatus(ctx)
	if err != nil {
		r.fail(dapp.StatusStream, err)
	}
	return err
}

// BeginOperation claims the single pending-operation slot. It returns
// false when a write is already in flight.
func (r *Reconciler) BeginOperation() bool {
	if !r.pending.CompareAndSwap(false, true) {
		return false
	}
	r.update(func(v *dapp.ViewState) { v.PendingOperation = true })
	return true
}

// EndOperation releases the pending-operation slot.
func (r *Reconciler) EndOperation() {
	r.pending.Store(false)
	r.update(func(v *dapp.ViewState) { v.PendingOperation = false })
}

func (r *Reconciler) update(fn func(v *dapp.ViewState)) {
	r.mu.Lock()
	before := r.state
	fn(&r.state)
	after := r.state
	r.mu.Unlock()

	if before == after {
		return
	}
	r.obsMu.Lock()
	observers := slices.Clone(r.onChange)
	r.obsMu.Unlock()
	for _, fn := range observers {
		fn(after)
	}
}

func (r *Reconciler) fail(stream dapp.Stream, err error) {
	r.log.Warn("poll tick failed", "stream", string(stream), "err", err)
	r.observe(stream, err)

	f := dapp.Failure{Stream: stream, Err: err, At: r.now()}
	r.obsMu.Lock()
	observers := slices.Clone(r.onFailure)
	r.obsMu.Unlock()
	for _, fn := range observers {
		fn(f)
	}
}

func (r *Reconciler) observe(stream dapp.Stream, err error) {
	if r.rec != nil {
		r.rec.ObserveTick(stream, err)
	}
}
