package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Amr-9/DevMint/pkg/dapp"
)

// Session is an authenticated, network-checked handle to the wallet.
// Sessions are immutable; attaching a signer produces a new one.
type Session struct {
	Connected bool
	ChainID   int64
	Address   string // Signing address, set only on write sessions

	provider Provider
	signer   Signer
}

// NewSession builds a session around an already validated provider.
func NewSession(p Provider, chainID int64, signer Signer) *Session {
	s := &Session{Connected: true, ChainID: chainID, provider: p, signer: signer}
	if signer != nil {
		s.Address = signer.Address().Hex()
	}
	return s
}

// Backend returns the signer-less connection.
func (s *Session) Backend() Backend {
	return s.provider.Backend()
}

// Signer returns the signer attached by a write-access request.
func (s *Session) Signer() (Signer, bool) {
	return s.signer, s.signer != nil
}

// Gate issues sessions and refuses any provider on the wrong network.
type Gate struct {
	wallet   Wallet
	expected int64
	log      *slog.Logger

	mu      sync.Mutex
	session *Session
}

// NewGate creates a gate that accepts only expectedChainID.
func NewGate(w Wallet, expectedChainID int64, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{wallet: w, expected: expectedChainID, log: logger}
}

// ExpectedChainID returns the configured network identifier.
func (g *Gate) ExpectedChainID() int64 {
	return g.expected
}

// Authenticate connects the wallet and checks its network. Any previous
// session is dropped first.
func (g *Gate) Authenticate(ctx context.Context) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authenticateLocked(ctx)
}

func (g *Gate) authenticateLocked(ctx context.Context) (*Session, error) {
	g.dropLocked()

	p, err := g.wallet.Connect(ctx)
	if err != nil {
		g.log.Warn("wallet connect failed", "err", err)
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	id, err := p.ChainID(ctx)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if id != g.expected {
		p.Close()
		g.log.Warn("provider on wrong network", "chain_id", id, "expected", g.expected)
		return nil, fmt.Errorf("authenticate: %w: provider reports chain %d, expected %d", dapp.ErrWrongNetwork, id, g.expected)
	}

	g.session = NewSession(p, id, nil)
	g.log.Info("wallet connected", "chain_id", id)
	return g.session, nil
}

// Session returns the cached session after re-checking its network, or
// authenticates when there is none. With requireWrite the signer is
// resolved and its address attached.
func (g *Gate) Session(ctx context.Context, requireWrite bool) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.session
	if s == nil {
		var err error
		if s, err = g.authenticateLocked(ctx); err != nil {
			return nil, err
		}
	} else {
		id, err := s.provider.ChainID(ctx)
		if err != nil {
			return nil, err
		}
		if id != g.expected {
			g.log.Warn("network changed, session dropped", "chain_id", id, "expected", g.expected)
			g.dropLocked()
			return nil, fmt.Errorf("%w: provider reports chain %d, expected %d", dapp.ErrWrongNetwork, id, g.expected)
		}
	}

	if requireWrite && s.signer == nil {
		signer, err := s.provider.Signer(ctx)
		if err != nil {
			return nil, err
		}
		s = NewSession(s.provider, s.ChainID, signer)
		g.session = s
	}
	return s, nil
}

// Current returns the cached session without touching the network.
func (g *Gate) Current() *Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

// Disconnect destroys the session and closes its provider.
func (g *Gate) Disconnect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dropLocked()
}

func (g *Gate) dropLocked() {
	if g.session == nil {
		return
	}
	g.session.provider.Close()
	g.session = nil
}
