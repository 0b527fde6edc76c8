// Package config loads the DevMint settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Wallet sources.
const (
	SourcePrompt     = ""
	SourceKeystore   = "keystore"
	SourcePrivateKey = "privatekey"
	SourceMnemonic   = "mnemonic"
	SourceReadOnly   = "readonly"
)

const (
	defaultChainID      = 11155111
	defaultMintPriceWei = "10000000000000000"
	defaultTotalSupply  = 20
	defaultPollInterval = 5 * time.Second
	defaultRateLimit    = 5
	defaultBurst        = 2
	defaultLogFile      = "devmint.log"

	envPrefix = "DEVMINT_"
)

// Config is the resolved runtime configuration.
type Config struct {
	RPCURL          string
	ContractAddress string
	ExpectedChainID int64
	MintPriceWei    *big.Int
	TotalSupply     uint64
	PollInterval    time.Duration

	RPC     RPCConfig
	Wallet  WalletConfig
	Log     LogConfig
	Metrics MetricsConfig
}

type RPCConfig struct {
	CallTimeout time.Duration
	RateLimit   float64
	Burst       int
}

type WalletConfig struct {
	Source        string
	Keystore      string
	PasswordEnv   string
	PrivateKeyEnv string
	MnemonicEnv   string
	AccountIndex  uint32
}

type LogConfig struct {
	Level string
	File  string
}

type MetricsConfig struct {
	Addr string
}

// FileConfig mirrors the YAML layout. Pointers distinguish unset from zero.
type FileConfig struct {
	RPCURL          string        `yaml:"rpcURL"`
	ContractAddress string        `yaml:"contractAddress"`
	ExpectedChainID int64         `yaml:"expectedChainID"`
	MintPriceWei    string        `yaml:"mintPriceWei"`
	TotalSupply     *uint64       `yaml:"totalSupply"`
	PollInterval    time.Duration `yaml:"pollInterval"`

	RPC struct {
		CallTimeout time.Duration `yaml:"callTimeout"`
		RateLimit   *float64      `yaml:"rateLimit"`
		Burst       int           `yaml:"burst"`
	} `yaml:"rpc"`

	Wallet struct {
		Source        string  `yaml:"source"`
		Keystore      string  `yaml:"keystore"`
		PasswordEnv   string  `yaml:"passwordEnv"`
		PrivateKeyEnv string  `yaml:"privateKeyEnv"`
		MnemonicEnv   string  `yaml:"mnemonicEnv"`
		AccountIndex  *uint32 `yaml:"accountIndex"`
	} `yaml:"wallet"`

	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// Default returns the built-in settings. There is no default contract.
func Default() Config {
	price, _ := new(big.Int).SetString(defaultMintPriceWei, 10)
	return Config{
		ExpectedChainID: defaultChainID,
		MintPriceWei:    price,
		TotalSupply:     defaultTotalSupply,
		PollInterval:    defaultPollInterval,
		RPC: RPCConfig{
			RateLimit: defaultRateLimit,
			Burst:     defaultBurst,
		},
		Wallet: WalletConfig{
			PasswordEnv:   envPrefix + "KEYSTORE_PASSWORD",
			PrivateKeyEnv: envPrefix + "PRIVATE_KEY",
			MnemonicEnv:   envPrefix + "MNEMONIC",
		},
		Log: LogConfig{Level: "info", File: defaultLogFile},
	}
}

// Load reads configPath, or the first default candidate that exists, over
// the defaults and applies DEVMINT_* overrides. An explicit path must exist.
func Load(configPath string) (Config, error) {
	cfg := Default()

	candidates := []string{configPath}
	if configPath == "" {
		candidates = []string{"devmint.yaml", "configs/devmint.yaml"}
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if configPath == "" && errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		var parsed FileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if err := Merge(&cfg, parsed); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
		break
	}

	if err := ApplyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Merge copies every field set in src onto dst.
func Merge(dst *Config, src FileConfig) error {
	if src.RPCURL != "" {
		dst.RPCURL = src.RPCURL
	}
	if src.ContractAddress != "" {
		dst.ContractAddress = src.ContractAddress
	}
	if src.ExpectedChainID != 0 {
		dst.ExpectedChainID = src.ExpectedChainID
	}
	if src.MintPriceWei != "" {
		price, err := parseWei(src.MintPriceWei)
		if err != nil {
			return err
		}
		dst.MintPriceWei = price
	}
	if src.TotalSupply != nil {
		dst.TotalSupply = *src.TotalSupply
	}
	if src.PollInterval != 0 {
		dst.PollInterval = src.PollInterval
	}
	if src.RPC.CallTimeout != 0 {
		dst.RPC.CallTimeout = src.RPC.CallTimeout
	}
	if src.RPC.RateLimit != nil {
		dst.RPC.RateLimit = *src.RPC.RateLimit
	}
	if src.RPC.Burst != 0 {
		dst.RPC.Burst = src.RPC.Burst
	}
	if src.Wallet.Source != "" {
		dst.Wallet.Source = src.Wallet.Source
	}
	if src.Wallet.Keystore != "" {
		dst.Wallet.Keystore = src.Wallet.Keystore
	}
	if src.Wallet.PasswordEnv != "" {
		dst.Wallet.PasswordEnv = src.Wallet.PasswordEnv
	}
	if src.Wallet.PrivateKeyEnv != "" {
		dst.Wallet.PrivateKeyEnv = src.Wallet.PrivateKeyEnv
	}
	if src.Wallet.MnemonicEnv != "" {
		dst.Wallet.MnemonicEnv = src.Wallet.MnemonicEnv
	}
	if src.Wallet.AccountIndex != nil {
		dst.Wallet.AccountIndex = *src.Wallet.AccountIndex
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.File != "" {
		dst.Log.File = src.Log.File
	}
	if src.Metrics.Addr != "" {
		dst.Metrics.Addr = src.Metrics.Addr
	}
	return nil
}

// ApplyEnvOverrides applies DEVMINT_* variables on top of cfg.
func ApplyEnvOverrides(cfg *Config) error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(envPrefix + name)); v != "" {
			*dst = v
		}
	}
	str("RPC_URL", &cfg.RPCURL)
	str("CONTRACT_ADDRESS", &cfg.ContractAddress)
	str("WALLET_SOURCE", &cfg.Wallet.Source)
	str("KEYSTORE", &cfg.Wallet.Keystore)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FILE", &cfg.Log.File)
	str("METRICS_ADDR", &cfg.Metrics.Addr)

	if raw := strings.TrimSpace(os.Getenv(envPrefix + "CHAIN_ID")); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("config: %sCHAIN_ID: %w", envPrefix, err)
		}
		cfg.ExpectedChainID = v
	}
	if raw := strings.TrimSpace(os.Getenv(envPrefix + "MINT_PRICE_WEI")); raw != "" {
		price, err := parseWei(raw)
		if err != nil {
			return fmt.Errorf("config: %sMINT_PRICE_WEI: %w", envPrefix, err)
		}
		cfg.MintPriceWei = price
	}
	if raw := strings.TrimSpace(os.Getenv(envPrefix + "POLL_INTERVAL")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("config: %sPOLL_INTERVAL: %w", envPrefix, err)
		}
		cfg.PollInterval = d
	}
	return nil
}

// Validate checks that the configuration can drive a session.
func (c Config) Validate() error {
	if strings.TrimSpace(c.RPCURL) == "" {
		return errors.New("config: rpcURL is required")
	}
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("config: contractAddress %q is not a valid address", c.ContractAddress)
	}
	if c.ExpectedChainID <= 0 {
		return fmt.Errorf("config: expectedChainID must be positive, got %d", c.ExpectedChainID)
	}
	if c.MintPriceWei == nil || c.MintPriceWei.Sign() < 0 {
		return errors.New("config: mintPriceWei must be a non-negative integer")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: pollInterval must be positive, got %s", c.PollInterval)
	}
	if c.RPC.RateLimit < 0 || c.RPC.Burst < 0 {
		return errors.New("config: rpc.rateLimit and rpc.burst cannot be negative")
	}
	switch c.Wallet.Source {
	case SourcePrompt, SourceReadOnly, SourcePrivateKey, SourceMnemonic:
	case SourceKeystore:
		if c.Wallet.Keystore == "" {
			return errors.New("config: wallet.keystore is required for the keystore source")
		}
	default:
		return fmt.Errorf("config: unknown wallet.source %q", c.Wallet.Source)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Contract returns the parsed contract address.
func (c Config) Contract() common.Address {
	return common.HexToAddress(c.ContractAddress)
}

// SlogLevel parses Log.Level.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return level, nil
}

func parseWei(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid wei amount %q", raw)
	}
	return v, nil
}
