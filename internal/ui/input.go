package ui

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Amr-9/DevMint/internal/config"
	"github.com/Amr-9/DevMint/pkg/dapp"
	"github.com/Amr-9/DevMint/pkg/dapp/wallet"
)

func scanLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()
	return lines
}

// ReadLine waits for the next input line. It returns io.EOF once input is closed.
func (c *Console) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

// Lines exposes the raw input stream for select loops.
func (c *Console) Lines() <-chan string {
	return c.lines
}

// Prompt prints label and reads one line.
func (c *Console) Prompt(ctx context.Context, label string) (string, error) {
	c.printf("    %s%s%s: ", ColorCyan, label, ColorReset)
	return c.ReadLine(ctx)
}

// SelectWallet asks where the signing key comes from.
func (c *Console) SelectWallet(ctx context.Context) (string, error) {
	c.printf("    %s🔑 SELECT WALLET%s\n", ColorPurple+ColorBold, ColorReset)
	c.printf("    %s[1]%s 📁 Keystore file %s(encrypted JSON)%s\n", ColorCyan, ColorReset, ColorDim, ColorReset)
	c.printf("    %s[2]%s 🗝  Private key\n", ColorCyan, ColorReset)
	c.printf("    %s[3]%s 📝 Mnemonic phrase\n", ColorCyan, ColorReset)
	c.printf("    %s[4]%s 👀 Read-only %s(no transactions)%s\n", ColorCyan, ColorReset, ColorDim, ColorReset)
	c.printf("\n    %s→%s ", ColorGreen, ColorReset)

	choice, err := c.ReadLine(ctx)
	if err != nil {
		return "", err
	}
	var source string
	switch choice {
	case "1":
		source = config.SourceKeystore
	case "2":
		source = config.SourcePrivateKey
	case "3":
		source = config.SourceMnemonic
	default:
		source = config.SourceReadOnly
	}
	c.printf("    %s✓ %s selected%s\n\n", ColorGreen, WalletLabel(source), ColorReset)
	return source, nil
}

// WalletLabel names a wallet source for display.
func WalletLabel(source string) string {
	switch source {
	case config.SourceKeystore:
		return "Keystore"
	case config.SourcePrivateKey:
		return "Private key"
	case config.SourceMnemonic:
		return "Mnemonic"
	default:
		return "Read-only"
	}
}

// ConfirmTransaction is a wallet.Approver that asks before every signature.
func (c *Console) ConfirmTransaction(ctx context.Context, from common.Address, req wallet.SignRequest) bool {
	c.setPrompting(true)
	defer c.setPrompting(false)

	c.printf("\n    %s✍  SIGNATURE REQUEST%s\n", ColorPurple+ColorBold, ColorReset)
	c.printf("    %sFrom%s     %s\n", ColorDim, ColorReset, from.Hex())
	if to := req.Tx.To(); to != nil {
		c.printf("    %sTo%s       %s\n", ColorDim, ColorReset, to.Hex())
	}
	c.printf("    %sAction%s   %s\n", ColorDim, ColorReset, req.Method)
	c.printf("    %sValue%s    %s ETH\n", ColorDim, ColorReset, FormatEther(req.Tx.Value()))
	c.printf("    %sGas%s      %s @ %s gwei\n", ColorDim, ColorReset,
		FormatNumber(req.Tx.Gas()), FormatGwei(req.Tx.GasPrice()))
	c.printf("    %s[y]%s Sign  │  %s[n]%s Reject\n    %s→%s ", ColorGreen, ColorReset, ColorRed, ColorReset, ColorCyan, ColorReset)

	answer, err := c.ReadLine(ctx)
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

// CommandKind is what the user asked for at the main prompt.
type CommandKind int

const (
	CmdUnknown CommandKind = iota
	CmdConnect
	CmdDisconnect
	CmdRefresh
	CmdQuit
	CmdAction
)

// Command is a parsed main-prompt line.
type Command struct {
	Kind   CommandKind
	Method dapp.Method
}

// ParseCommand maps a line onto a command. Digits select from actions,
// numbered from 1 as printed by PrintStatus.
func ParseCommand(line string, actions []dapp.Method) Command {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "c", "connect":
		return Command{Kind: CmdConnect}
	case "d", "disconnect":
		return Command{Kind: CmdDisconnect}
	case "r", "refresh", "":
		return Command{Kind: CmdRefresh}
	case "q", "quit", "exit":
		return Command{Kind: CmdQuit}
	}
	if n, err := strconv.Atoi(strings.TrimSpace(line)); err == nil && n >= 1 && n <= len(actions) {
		return Command{Kind: CmdAction, Method: actions[n-1]}
	}
	return Command{Kind: CmdUnknown}
}
