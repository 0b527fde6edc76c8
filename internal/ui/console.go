package ui

import (
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/Amr-9/DevMint/pkg/dapp"
)

// ANSI color codes
const (
	ColorReset  = "\033[0m"
	ColorCyan   = "\033[36m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorRed    = "\033[31m"
	ColorPurple = "\033[35m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
)

// Console renders the page and reads commands. Output calls are
// serialized so notices from background goroutines do not interleave.
type Console struct {
	mu        sync.Mutex
	out       io.Writer
	last      string // most recent notice, repeated under the status panel
	prompting bool   // a signature request is waiting for an answer

	lines <-chan string
}

// NewConsole reads lines from in on a background goroutine until EOF.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{out: out, lines: scanLines(in)}
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// ClearScreen clears the terminal
func (c *Console) ClearScreen() {
	c.printf("\033[H\033[2J")
}

// PrintWelcomeBanner shows the title block
func (c *Console) PrintWelcomeBanner(version string) {
	c.printf("%s", banner(version))
}

func banner(version string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s%s", ColorCyan, ColorBold)
	b.WriteString("  ╔══════════════════════════════════════════════════════════╗\n")
	b.WriteString("  ║   Welcome to Crypto Devs!                                ║\n")
	fmt.Fprintf(&b, "  ║%s   It's an NFT collection for developers in Crypto. %s•%s\n", ColorYellow, ColorDim, ColorCyan+ColorBold)
	fmt.Fprintf(&b, "  ║%s   devmint v%s%s\n", ColorDim, version, ColorCyan+ColorBold)
	b.WriteString("  ╚══════════════════════════════════════════════════════════╝\n")
	b.WriteString(ColorReset + "\n")
	return b.String()
}

// SessionInfo is the header line shown above the status panel.
type SessionInfo struct {
	Address     string
	ChainID     int64
	TotalSupply uint64
	MintPrice   *big.Int
}

// PrintStatus renders the ViewState the way the page did: mint counter,
// presale status line and the available action.
func (c *Console) PrintStatus(v dapp.ViewState, info SessionInfo, actions []dapp.Method) {
	body := statusText(v, info, actions)
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, body+c.lastLocked())
}

// Redraw clears the screen and prints the banner and status in a single
// write. While a signature request is open it draws nothing and returns
// false, so the request stays on screen.
func (c *Console) Redraw(version string, v dapp.ViewState, info SessionInfo, actions []dapp.Method) bool {
	body := statusText(v, info, actions)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prompting {
		return false
	}
	fmt.Fprint(c.out, "\033[H\033[2J"+banner(version)+body+c.lastLocked())
	return true
}

func (c *Console) lastLocked() string {
	if c.last == "" {
		return ""
	}
	return "\n" + c.last
}

func (c *Console) setPrompting(p bool) {
	c.mu.Lock()
	c.prompting = p
	c.mu.Unlock()
}

func statusText(v dapp.ViewState, info SessionInfo, actions []dapp.Method) string {
	var b strings.Builder
	if v.Connected {
		writePanel(&b, v, info, actions)
	} else {
		fmt.Fprintf(&b, "    %s○ Wallet not connected%s\n\n", ColorDim, ColorReset)
		fmt.Fprintf(&b, "    %s[c]%s Connect your wallet   %s[q]%s Exit\n", ColorCyan, ColorReset, ColorRed, ColorReset)
	}
	return b.String()
}

func writePanel(b *strings.Builder, v dapp.ViewState, info SessionInfo, actions []dapp.Method) {
	addr := info.Address
	if addr == "" {
		addr = "read-only"
	}
	fmt.Fprintf(b, "    %s⟠ %s%s %s(chain %d)%s\n\n", ColorCyan+ColorBold, addr, ColorReset, ColorDim, info.ChainID, ColorReset)
	fmt.Fprintf(b, "    %s%s/%s%s have been minted already\n",
		ColorGreen+ColorBold, FormatNumber(v.MintedCount), FormatNumber(info.TotalSupply), ColorReset)
	fmt.Fprintf(b, "    %s\n\n", StatusLine(v))

	switch {
	case v.PendingOperation:
		fmt.Fprintf(b, "    %sLoading...%s\n", ColorYellow, ColorReset)
	case len(actions) == 0:
		fmt.Fprintf(b, "    %s[r]%s Refresh   %s[d]%s Disconnect   %s[q]%s Exit\n",
			ColorCyan, ColorReset, ColorCyan, ColorReset, ColorRed, ColorReset)
	default:
		for i, m := range actions {
			label := m.String()
			if m.Payable() && info.MintPrice != nil {
				label += fmt.Sprintf(" %s(%s ETH)%s", ColorDim, FormatEther(info.MintPrice), ColorReset)
			}
			fmt.Fprintf(b, "    %s[%d]%s 🚀 %s\n", ColorCyan, i+1, ColorReset, label)
		}
		fmt.Fprintf(b, "    %s[r]%s Refresh   %s[d]%s Disconnect   %s[q]%s Exit\n",
			ColorCyan, ColorReset, ColorCyan, ColorReset, ColorRed, ColorReset)
	}
}

// StatusLine is the one-line presale status.
func StatusLine(v dapp.ViewState) string {
	switch {
	case v.PresaleActive && v.PresaleEnded:
		return "Presale has ended. You can mint a Crypto Dev if any remain!"
	case v.PresaleActive:
		return "Presale has started!!! If your address is whitelisted, mint a Crypto Dev 🥳"
	case v.IsOwner:
		return "Presale hasn't started. You own the contract and can start it."
	default:
		return "Presale hasn't started!"
	}
}

// PrintNotice shows a message from the controller.
func (c *Console) PrintNotice(n dapp.Notice) {
	color, icon := ColorCyan, "ℹ"
	switch n.Level {
	case dapp.Success:
		color, icon = ColorGreen+ColorBold, "✨"
	case dapp.Warning:
		color, icon = ColorYellow, "⚠"
	case dapp.Error:
		color, icon = ColorRed, "⚠"
	}
	msg := n.Message
	if n.Err != nil {
		msg += ": " + dapp.Describe(n.Err)
	}
	line := fmt.Sprintf("    %s%s %s%s\n", color, icon, msg, ColorReset)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = line
	fmt.Fprint(c.out, line)
}

// PrintFailure reports a poll tick that could not be applied.
func (c *Console) PrintFailure(f dapp.Failure) {
	c.printf("    %s⚠ %s refresh failed at %s: %s%s\n",
		ColorDim, f.Stream, f.At.Format(time.TimeOnly), dapp.Describe(f.Err), ColorReset)
}

// PrintTransaction shows a confirmed or failed write.
func (c *Console) PrintTransaction(op dapp.PendingOperation) {
	color := ColorGreen
	if op.State == dapp.Failed {
		color = ColorRed
	}
	c.printf("    %s%s%s %s%s%s │ %s%s%s │ %s\n",
		color, op.State, ColorReset,
		ColorBold, op.Method, ColorReset,
		ColorDim, op.TxHash, ColorReset,
		FormatDuration(time.Since(op.SubmittedAt)))
}

// FormatEther renders a wei amount in ether without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(wei, big.NewInt(1_000_000_000_000_000_000))
	s := r.FloatString(18)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// FormatGwei renders a wei gas price in gwei.
func FormatGwei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(wei, big.NewInt(1_000_000_000))
	s := strings.TrimRight(r.FloatString(9), "0")
	return strings.TrimSuffix(s, ".")
}

// FormatNumber adds commas to large numbers
func FormatNumber(n uint64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	s := fmt.Sprintf("%d", n)
	result := make([]byte, 0, len(s)+(len(s)-1)/3)
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}

// FormatDuration formats duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", h, m)
}
