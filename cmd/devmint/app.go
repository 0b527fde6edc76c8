package main

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Amr-9/DevMint/internal/config"
	"github.com/Amr-9/DevMint/internal/metrics"
	"github.com/Amr-9/DevMint/internal/ui"
	"github.com/Amr-9/DevMint/pkg/dapp"
	"github.com/Amr-9/DevMint/pkg/dapp/contract"
	"github.com/Amr-9/DevMint/pkg/dapp/controller"
	"github.com/Amr-9/DevMint/pkg/dapp/reconciler"
	"github.com/Amr-9/DevMint/pkg/dapp/wallet"
)

const redrawRate = 250 * time.Millisecond

// app ties the console to a controller and redraws the page whenever the
// ViewState changes.
type app struct {
	cfg     config.Config
	console *ui.Console
	gate    *wallet.Gate
	rec     *reconciler.Reconciler
	ctrl    *controller.Controller

	redraw time.Duration
	dirty  atomic.Bool
}

func newApp(cfg config.Config, console *ui.Console, gate *wallet.Gate, reader *contract.Reader, writer *contract.Writer, logger *slog.Logger, m *metrics.Metrics) *app {
	rec := reconciler.New(reader, gate,
		reconciler.WithInterval(cfg.PollInterval),
		reconciler.WithLogger(logger),
		reconciler.WithRecorder(m))
	ctrl := controller.New(gate, writer, rec,
		controller.Config{MintPrice: cfg.MintPriceWei, TotalSupply: cfg.TotalSupply},
		controller.WithLogger(logger),
		controller.WithRecorder(m),
		controller.WithSupplyReader(reader))

	a := &app{cfg: cfg, console: console, gate: gate, rec: rec, ctrl: ctrl, redraw: redrawRate}
	rec.OnChange(func(dapp.ViewState) { a.dirty.Store(true) })
	rec.OnFailure(console.PrintFailure)
	ctrl.OnNotice(console.PrintNotice)
	return a
}

// draw reports false when the console is busy with a signature request.
func (a *app) draw() bool {
	info := ui.SessionInfo{
		ChainID:     a.cfg.ExpectedChainID,
		TotalSupply: a.ctrl.TotalSupply(),
		MintPrice:   a.cfg.MintPriceWei,
	}
	if s := a.gate.Current(); s != nil {
		info.Address = s.Address
	}
	return a.console.Redraw(version, a.ctrl.Snapshot(), info, a.ctrl.Available())
}

// loop serves commands until quit, EOF or cancellation. Actions run on
// their own goroutine so the page keeps redrawing while they are pending;
// command input is paused meanwhile and the approval prompt owns stdin.
func (a *app) loop(ctx context.Context) error {
	ticker := time.NewTicker(a.redraw)
	defer ticker.Stop()

	lines := a.console.Lines()
	var running chan error

	for {
		select {
		case <-ctx.Done():
			a.console.PrintNotice(dapp.Notice{Level: dapp.Warning, Message: "Cancelled"})
			return nil

		case <-ticker.C:
			if a.dirty.Swap(false) && !a.draw() {
				a.dirty.Store(true)
			}

		case err := <-running:
			running, lines = nil, a.console.Lines()
			if op, ok := a.ctrl.LastOperation(); ok && (err == nil || errors.Is(err, dapp.ErrTransactionReverted)) {
				a.console.PrintTransaction(op)
			}

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd := ui.ParseCommand(line, a.ctrl.Available())
			switch cmd.Kind {
			case ui.CmdQuit:
				a.ctrl.Disconnect()
				return nil
			case ui.CmdConnect:
				_ = a.ctrl.Connect(ctx)
			case ui.CmdDisconnect:
				a.ctrl.Disconnect()
			case ui.CmdRefresh:
				err := a.rec.Refresh(ctx)
				switch {
				case err == nil:
					a.draw()
				case errors.Is(err, dapp.ErrNotConnected):
					a.console.PrintNotice(dapp.Notice{Level: dapp.Warning, Message: "Connect your wallet first"})
				}
			case ui.CmdAction:
				done := make(chan error, 1)
				go func(m dapp.Method) { done <- a.ctrl.Do(ctx, m) }(cmd.Method)
				running, lines = done, nil
			default:
				a.console.PrintNotice(dapp.Notice{Level: dapp.Warning, Message: "Unknown command " + line})
			}
		}
	}
}
