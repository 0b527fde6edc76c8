// Package controller is the boundary the user interface talks to: a
// read-only ViewState snapshot plus the connect, mint and start-presale
// actions. Every action reports its outcome as a dapp.Notice and as an
// error; none of them panics or leaves the pending flag set.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Amr-9/DevMint/pkg/dapp"
	"github.com/Amr-9/DevMint/pkg/dapp/reconciler"
	"github.com/Amr-9/DevMint/pkg/dapp/wallet"
)

// MintedMessage is shown after a successful mint.
const MintedMessage = "You successfully minted a CryptoDev!"

// Gate is the session gate; *wallet.Gate implements it.
type Gate interface {
	Authenticate(ctx context.Context) (*wallet.Session, error)
	Session(ctx context.Context, requireWrite bool) (*wallet.Session, error)
	Disconnect()
}

// Writer submits transactions; *contract.Writer implements it.
type Writer interface {
	Submit(ctx context.Context, s *wallet.Session, m dapp.Method, value *big.Int) (*dapp.PendingOperation, error)
	AwaitConfirmation(ctx context.Context, s *wallet.Session, op *dapp.PendingOperation) (*types.Receipt, error)
}

// SupplyReader reads the supply cap; *contract.Reader implements it.
type SupplyReader interface {
	MaxTokenIDs(ctx context.Context, s *wallet.Session) (uint64, error)
}

// Recorder receives operation instrumentation.
type Recorder interface {
	ObserveOperation(m dapp.Method, err error)
	SetPending(pending bool)
}

// Config holds the fixed parameters of the sale.
type Config struct {
	MintPrice   *big.Int // Wei attached to presaleMint and mint
	TotalSupply uint64   // Shown as "n/TotalSupply"; 0 reads maxTokenIds() on connect
}

// Controller wires the gate, writer and reconciler together.
type Controller struct {
	gate   Gate
	writer Writer
	rec    *reconciler.Reconciler
	supply SupplyReader
	cfg    Config
	log    *slog.Logger
	stats  Recorder

	mu     sync.Mutex
	total  uint64
	lastOp *dapp.PendingOperation

	obsMu    sync.Mutex
	onNotice []func(dapp.Notice)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// WithRecorder attaches instrumentation.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.stats = r
	}
}

// WithSupplyReader lets Connect fill in the total supply from the contract.
func WithSupplyReader(r SupplyReader) Option {
	return func(c *Controller) {
		c.supply = r
	}
}

// New creates a controller. The reconciler must not be started yet.
func New(gate Gate, writer Writer, rec *reconciler.Reconciler, cfg Config, opts ...Option) *Controller {
	if cfg.MintPrice == nil {
		cfg.MintPrice = new(big.Int)
	}
	c := &Controller{
		gate:   gate,
		writer: writer,
		rec:    rec,
		cfg:    cfg,
		total:  cfg.TotalSupply,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnNotice registers an observer for user-visible messages.
func (c *Controller) OnNotice(fn func(dapp.Notice)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.onNotice = append(c.onNotice, fn)
}

// Snapshot returns the current ViewState.
func (c *Controller) Snapshot() dapp.ViewState {
	return c.rec.Snapshot()
}

// Available lists the actions offered for the current state.
func (c *Controller) Available() []dapp.Method {
	return Actions(c.Snapshot())
}

// TotalSupply returns the supply shown next to the mint count.
func (c *Controller) TotalSupply() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// LastOperation returns a copy of the most recent write, if any.
func (c *Controller) LastOperation() (dapp.PendingOperation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastOp == nil {
		return dapp.PendingOperation{}, false
	}
	return *c.lastOp, true
}

// Connect authenticates and starts polling. The poll streams live until
// ctx is cancelled or Disconnect is called.
func (c *Controller) Connect(ctx context.Context) error {
	if _, err := c.gate.Authenticate(ctx); err != nil {
		c.notify(dapp.Error, "Could not connect wallet", err)
		return err
	}
	c.rec.Stop()
	if err := c.rec.Start(ctx); err != nil {
		c.notify(dapp.Error, "Could not start polling", err)
		return err
	}
	c.loadSupply(ctx)
	c.notify(dapp.Info, "Wallet connected", nil)
	return nil
}

func (c *Controller) loadSupply(ctx context.Context) {
	if c.supply == nil || c.cfg.TotalSupply != 0 {
		return
	}
	s, err := c.gate.Session(ctx, false)
	if err != nil {
		c.log.Warn("supply lookup skipped", "err", err)
		return
	}
	n, err := c.supply.MaxTokenIDs(ctx, s)
	if err != nil {
		c.log.Warn("supply lookup failed", "err", err)
		return
	}
	c.mu.Lock()
	c.total = n
	c.mu.Unlock()
}

// Disconnect stops polling and destroys the session.
func (c *Controller) Disconnect() {
	c.rec.Stop()
	c.gate.Disconnect()
	c.notify(dapp.Info, "Wallet disconnected", nil)
}

// PresaleMint mints during the presale, attaching the mint price.
func (c *Controller) PresaleMint(ctx context.Context) error {
	if _, err := c.execute(ctx, dapp.PresaleMint); err != nil {
		return err
	}
	c.notify(dapp.Success, MintedMessage, nil)
	return nil
}

// PublicMint mints after the presale, attaching the mint price.
func (c *Controller) PublicMint(ctx context.Context) error {
	if _, err := c.execute(ctx, dapp.PublicMint); err != nil {
		return err
	}
	c.notify(dapp.Success, MintedMessage, nil)
	return nil
}

// StartPresale starts the presale (owner only) and re-reads the presale
// status once confirmed.
func (c *Controller) StartPresale(ctx context.Context) error {
	if _, err := c.execute(ctx, dapp.StartPresale); err != nil {
		return err
	}
	c.notify(dapp.Success, "Presale started", nil)
	if err := c.rec.Refresh(ctx); err != nil {
		c.log.Warn("status refresh after start failed", "err", err)
	}
	return nil
}

// Do dispatches m to the matching action.
func (c *Controller) Do(ctx context.Context, m dapp.Method) error {
	switch m {
	case dapp.PresaleMint:
		return c.PresaleMint(ctx)
	case dapp.PublicMint:
		return c.PublicMint(ctx)
	case dapp.StartPresale:
		return c.StartPresale(ctx)
	default:
		return fmt.Errorf("unknown action %d", m)
	}
}

// execute claims the pending slot, submits and waits. The slot is
// released on every path.
func (c *Controller) execute(ctx context.Context, m dapp.Method) (op *dapp.PendingOperation, err error) {
	defer func() {
		if c.stats != nil {
			c.stats.ObserveOperation(m, err)
		}
		if err != nil {
			c.log.Warn("operation failed", "method", m.ContractMethod(), "err", err)
			c.notify(dapp.Error, m.String()+" failed", err)
		}
	}()

	if !c.rec.BeginOperation() {
		return nil, dapp.ErrOperationPending
	}
	c.setPending(true)
	defer func() {
		c.rec.EndOperation()
		c.setPending(false)
	}()

	s, err := c.gate.Session(ctx, true)
	if err != nil {
		return nil, err
	}
	var value *big.Int
	if m.Payable() {
		value = new(big.Int).Set(c.cfg.MintPrice)
	}
	op, err = c.writer.Submit(ctx, s, m, value)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.lastOp = op
	c.mu.Unlock()
	c.notify(dapp.Info, fmt.Sprintf("%s submitted: %s", m, op.TxHash), nil)

	if _, err := c.writer.AwaitConfirmation(ctx, s, op); err != nil {
		return op, err
	}
	return op, nil
}

func (c *Controller) setPending(p bool) {
	if c.stats != nil {
		c.stats.SetPending(p)
	}
}

func (c *Controller) notify(level dapp.Level, msg string, err error) {
	n := dapp.Notice{Level: level, Message: msg, Err: err}
	c.obsMu.Lock()
	observers := slices.Clone(c.onNotice)
	c.obsMu.Unlock()
	for _, fn := range observers {
		fn(n)
	}
}

// Actions lists what the user can do in state v, in the order the page
// offered them: nothing while disconnected or loading, Start Presale for
// the owner before the presale, then Presale Mint, then Public Mint.
func Actions(v dapp.ViewState) []dapp.Method {
	switch {
	case !v.Connected, v.PendingOperation:
		return nil
	case v.IsOwner && !v.PresaleActive:
		return []dapp.Method{dapp.StartPresale}
	case !v.PresaleActive:
		return nil
	case !v.PresaleEnded:
		return []dapp.Method{dapp.PresaleMint}
	default:
		return []dapp.Method{dapp.PublicMint}
	}
}
