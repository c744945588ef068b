package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"reservehook/crypto"
)

type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	NetworkName    string `toml:"NetworkName"`
	Environment    string `toml:"Environment"`

	Owner         string `toml:"Owner"`
	YieldReceiver string `toml:"YieldReceiver"`
	// ThresholdWad is the idle-reserve target as a fraction of outstanding
	// supply, scaled by 1e18. "100000000000000000" keeps 10% idle.
	ThresholdWad string `toml:"ThresholdWad"`

	LogFile       string `toml:"LogFile"`
	LogMaxSizeMB  int    `toml:"LogMaxSizeMB"`
	LogMaxBackups int    `toml:"LogMaxBackups"`
	LogMaxAgeDays int    `toml:"LogMaxAgeDays"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the operator-supplied fields that cannot be defaulted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Owner) != "" {
		if _, err := crypto.DecodeAddress(c.Owner); err != nil {
			return fmt.Errorf("config: invalid Owner address: %w", err)
		}
	}
	if strings.TrimSpace(c.YieldReceiver) != "" {
		if _, err := crypto.DecodeAddress(c.YieldReceiver); err != nil {
			return fmt.Errorf("config: invalid YieldReceiver address: %w", err)
		}
	}
	threshold, err := c.Threshold()
	if err != nil {
		return err
	}
	wad := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	if threshold.Sign() < 0 || threshold.Cmp(wad) > 0 {
		return fmt.Errorf("config: ThresholdWad must be within [0, 1e18], got %s", threshold)
	}
	return nil
}

// Threshold parses ThresholdWad into an integer.
func (c *Config) Threshold() (*big.Int, error) {
	raw := strings.TrimSpace(c.ThresholdWad)
	if raw == "" {
		return big.NewInt(0), nil
	}
	threshold, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("config: ThresholdWad is not a base-10 integer: %q", c.ThresholdWad)
	}
	return threshold, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./reserve-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "nrv-local"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "dev"
	}
	if cfg.LogMaxSizeMB <= 0 {
		cfg.LogMaxSizeMB = 100
	}
	if cfg.LogMaxBackups <= 0 {
		cfg.LogMaxBackups = 3
	}
	if cfg.LogMaxAgeDays <= 0 {
		cfg.LogMaxAgeDays = 28
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:     ":8080",
		MetricsAddress: ":9090",
		DataDir:        "./reserve-data",
		NetworkName:    "nrv-local",
		Environment:    "dev",
		ThresholdWad:   "100000000000000000",
		LogMaxSizeMB:   100,
		LogMaxBackups:  3,
		LogMaxAgeDays:  28,
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
