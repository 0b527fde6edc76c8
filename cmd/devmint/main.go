package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Amr-9/DevMint/internal/config"
	"github.com/Amr-9/DevMint/internal/metrics"
	"github.com/Amr-9/DevMint/internal/ui"
	"github.com/Amr-9/DevMint/pkg/dapp/contract"
	"github.com/Amr-9/DevMint/pkg/dapp/wallet"
)

const version = "1.0"

func main() {
	configPath := flag.String("config", "", "path to devmint.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "    %s✗ %v%s\n", ui.ColorRed, err, ui.ColorReset)
		os.Exit(1)
	}

	logger, closeLog, err := openLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "    %s✗ %v%s\n", ui.ColorRed, err, ui.ColorReset)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	console := ui.NewConsole(os.Stdin, os.Stdout)
	console.ClearScreen()
	console.PrintWelcomeBanner(version)

	if err := run(ctx, cfg, console, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("devmint stopped", "err", err)
		fmt.Printf("\n    %s✗ Error: %v%s\n", ui.ColorRed, err, ui.ColorReset)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, console *ui.Console, logger *slog.Logger) error {
	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error("metrics server failed", "err", err)
			}
		}()
	}

	source := cfg.Wallet.Source
	if source == config.SourcePrompt {
		var err error
		if source, err = console.SelectWallet(ctx); err != nil {
			return err
		}
	}
	keys, err := keySource(ctx, console, cfg.Wallet, source)
	if err != nil {
		return err
	}

	gate := wallet.NewGate(&wallet.RPCWallet{
		URL:     cfg.RPCURL,
		Keys:    keys,
		Approve: console.ConfirmTransaction,
	}, cfg.ExpectedChainID, logger)

	reader := contract.NewReader(cfg.Contract(),
		contract.WithRateLimit(cfg.RPC.RateLimit, cfg.RPC.Burst),
		contract.WithCallTimeout(cfg.RPC.CallTimeout),
		contract.WithReaderLogger(logger))
	writer := contract.NewWriter(cfg.Contract(), contract.WithWriterLogger(logger))

	a := newApp(cfg, console, gate, reader, writer, logger, m)
	defer a.rec.Stop()

	// The page connected on load; so do we.
	_ = a.ctrl.Connect(ctx)
	a.draw()
	return a.loop(ctx)
}

// openLogger sends structured logs to the configured file so they do not
// scribble over the console.
func openLogger(cfg config.Config) (*slog.Logger, func(), error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	logger.Info("devmint starting", "version", version, "rpc", cfg.RPCURL, "contract", cfg.ContractAddress, "chain_id", cfg.ExpectedChainID)
	return logger, func() { _ = f.Close() }, nil
}
