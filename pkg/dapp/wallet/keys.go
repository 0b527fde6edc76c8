package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"

	"github.com/Amr-9/DevMint/pkg/dapp"
)

// KeySource unlocks the signing key. A nil Signer with a nil error means
// the wallet is read-only.
type KeySource interface {
	Unlock() (Signer, error)
}

// ReadOnly is a wallet without a key. Sessions from it can observe but not write.
type ReadOnly struct{}

// Unlock returns no signer.
func (ReadOnly) Unlock() (Signer, error) {
	return nil, nil
}

// HexKey is a raw secp256k1 private key, with or without 0x prefix.
type HexKey string

// Unlock parses the key.
func (h HexKey) Unlock() (Signer, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(string(h)), "0x")
	if raw == "" {
		return nil, fmt.Errorf("%w: empty private key", dapp.ErrConnectionRejected)
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key", dapp.ErrConnectionRejected)
	}
	return NewKeySigner(key), nil
}

// PasswordFunc supplies a passphrase. Returning an error cancels the unlock.
type PasswordFunc func() (string, error)

// KeystoreFile is an encrypted Web3 Secret Storage JSON file.
type KeystoreFile struct {
	Path     string
	Password PasswordFunc
}

// Unlock reads and decrypts the keystore. A wrong passphrase counts as a
// rejected connection, a missing file does not.
func (k KeystoreFile) Unlock() (Signer, error) {
	data, err := os.ReadFile(k.Path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	if k.Password == nil {
		return nil, fmt.Errorf("%w: no passphrase source", dapp.ErrConnectionRejected)
	}
	pass, err := k.Password()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dapp.ErrConnectionRejected, err)
	}
	key, err := keystore.DecryptKey(data, pass)
	if err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			return nil, fmt.Errorf("%w: wrong passphrase", dapp.ErrConnectionRejected)
		}
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return NewKeySigner(key.PrivateKey), nil
}

// Mnemonic derives the account at m/44'/60'/0'/0/Index from a BIP-39 phrase.
type Mnemonic struct {
	Phrase     string
	Passphrase string
	Index      uint32
}

// Unlock validates the phrase and derives the key.
func (m Mnemonic) Unlock() (Signer, error) {
	phrase := strings.Join(strings.Fields(m.Phrase), " ")
	seed, err := bip39.NewSeedWithErrorChecking(phrase, m.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dapp.ErrConnectionRejected, err)
	}

	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	path := []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 60,
		hdkeychain.HardenedKeyStart + 0,
		0,
		m.Index,
	}
	for _, i := range path {
		key, err = key.Derive(i)
		if err != nil {
			return nil, fmt.Errorf("derive child %d: %w", i, err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("extract key: %w", err)
	}
	ecKey, err := toECDSA(priv)
	if err != nil {
		return nil, err
	}
	return NewKeySigner(ecKey), nil
}

// toECDSA re-parses the scalar so the key carries go-ethereum's curve.
func toECDSA(priv *btcec.PrivateKey) (*ecdsa.PrivateKey, error) {
	key, err := crypto.ToECDSA(priv.Serialize())
	if err != nil {
		return nil, fmt.Errorf("convert key: %w", err)
	}
	return key, nil
}
