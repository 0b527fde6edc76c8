package main

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/Amr-9/DevMint/internal/config"
	"github.com/Amr-9/DevMint/internal/ui"
	"github.com/Amr-9/DevMint/pkg/dapp"
	"github.com/Amr-9/DevMint/pkg/dapp/wallet"
)

// keySource builds the unlock step for the chosen wallet. Secrets come from
// the configured environment variables first and are prompted for otherwise.
func keySource(ctx context.Context, console *ui.Console, cfg config.WalletConfig, source string) (wallet.KeySource, error) {
	secret := func(envName, label string) (string, error) {
		if v := os.Getenv(envName); v != "" {
			return v, nil
		}
		return console.Prompt(ctx, label)
	}

	switch source {
	case config.SourceKeystore:
		path := cfg.Keystore
		if path == "" {
			var err error
			if path, err = console.Prompt(ctx, "Keystore path"); err != nil {
				return nil, err
			}
		}
		password := &passwordCache{ask: func() (string, error) {
			return secret(cfg.PasswordEnv, "Keystore password")
		}}
		return keystoreSource{
			file:     wallet.KeystoreFile{Path: path, Password: password.get},
			password: password,
		}, nil

	case config.SourcePrivateKey:
		key, err := secret(cfg.PrivateKeyEnv, "Private key (hex)")
		if err != nil {
			return nil, err
		}
		return wallet.HexKey(key), nil

	case config.SourceMnemonic:
		phrase, err := secret(cfg.MnemonicEnv, "Mnemonic phrase")
		if err != nil {
			return nil, err
		}
		return wallet.Mnemonic{Phrase: phrase, Index: cfg.AccountIndex}, nil

	default:
		return wallet.ReadOnly{}, nil
	}
}

// passwordCache asks once and reuses the answer, so re-authenticating after
// a network change does not prompt again.
type passwordCache struct {
	mu    sync.Mutex
	ask   func() (string, error)
	value string
	ok    bool
}

func (p *passwordCache) get() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ok {
		return p.value, nil
	}
	v, err := p.ask()
	if err != nil {
		return "", err
	}
	p.value, p.ok = v, true
	return v, nil
}

func (p *passwordCache) forget() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value, p.ok = "", false
}

// keystoreSource drops the cached password when it fails to unlock the
// file, so the next connect asks again.
type keystoreSource struct {
	file     wallet.KeystoreFile
	password *passwordCache
}

func (k keystoreSource) Unlock() (wallet.Signer, error) {
	signer, err := k.file.Unlock()
	if errors.Is(err, dapp.ErrConnectionRejected) {
		k.password.forget()
	}
	return signer, err
}
