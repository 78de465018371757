package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Chain struct {
		RPC     string `yaml:"rpc" env:"MSIG_RPC_URL"`
		ChainID int64  `yaml:"chain_id" env:"MSIG_CHAIN_ID"`
	} `yaml:"chain"`
	Contract struct {
		Multisig string `yaml:"multisig" env:"MSIG_CONTRACT"`
		Variant  string `yaml:"variant" env:"MSIG_VARIANT"`
		Storage  string `yaml:"storage" env:"MSIG_STORAGE_CONTRACT"`
	} `yaml:"contract"`
	Signer struct {
		KeyStore string `yaml:"key_store" env:"MSIG_KEY_STORE"`
		Account  string `yaml:"account" env:"MSIG_ACCOUNT"`
	} `yaml:"signer"`
	Sync struct {
		TickMillis                int  `yaml:"tick_millis" env:"MSIG_TICK_MILLIS"`
		PollSeconds               int  `yaml:"poll_seconds" env:"MSIG_POLL_SECONDS"`
		ReadTimeoutSeconds        int  `yaml:"read_timeout_seconds" env:"MSIG_READ_TIMEOUT_SECONDS"`
		WatchLogs                 bool `yaml:"watch_logs" env:"MSIG_WATCH_LOGS"`
		AutoApproveBelowThreshold bool `yaml:"auto_approve_below_threshold" env:"MSIG_AUTO_APPROVE"`
	} `yaml:"sync"`
	Log struct {
		Level string `yaml:"level" env:"MSIG_LOG_LEVEL"`
	} `yaml:"log"`
	Metrics struct {
		Addr string `yaml:"addr" env:"MSIG_METRICS_ADDR"`
	} `yaml:"metrics"`
}

func Default(home string) Config {
	cfg := Config{}
	cfg.Chain.RPC = "http://localhost:8545"
	cfg.Chain.ChainID = 0
	cfg.Contract.Multisig = ""
	cfg.Contract.Variant = "deadline"
	cfg.Contract.Storage = ""
	cfg.Signer.KeyStore = filepath.Join(home, ".msigd", "keys")
	cfg.Signer.Account = ""
	cfg.Sync.TickMillis = 1000
	cfg.Sync.PollSeconds = 15
	cfg.Sync.ReadTimeoutSeconds = 10
	cfg.Sync.WatchLogs = true
	cfg.Sync.AutoApproveBelowThreshold = false
	cfg.Log.Level = "INFO"
	cfg.Metrics.Addr = ""
	return cfg
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// ApplyEnv overrides fields whose MSIG_* variable is set; unset variables leave the file value alone.
func ApplyEnv(cfg *Config) error {
	return env.Parse(cfg)
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Chain.RPC) == "" {
		return errors.New("chain.rpc is required")
	}
	if c.Contract.Multisig != "" && !common.IsHexAddress(c.Contract.Multisig) {
		return errors.Errorf("contract.multisig is not an address: %q", c.Contract.Multisig)
	}
	if c.Contract.Storage != "" && !common.IsHexAddress(c.Contract.Storage) {
		return errors.Errorf("contract.storage is not an address: %q", c.Contract.Storage)
	}
	switch strings.ToLower(strings.TrimSpace(c.Contract.Variant)) {
	case "", "deadline", "basic", "admin":
	default:
		return errors.Errorf("contract.variant must be deadline, basic or admin, got %q", c.Contract.Variant)
	}
	if c.Sync.TickMillis < 0 || c.Sync.PollSeconds < 0 || c.Sync.ReadTimeoutSeconds < 0 {
		return errors.New("sync intervals must not be negative")
	}
	return nil
}

func Path(home string) string {
	return filepath.Join(home, ".msigd", "config.yaml")
}
