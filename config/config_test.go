package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.RPCAddress)
	require.Equal(t, ":9090", cfg.MetricsAddress)
	require.Equal(t, "nrv-local", cfg.NetworkName)
	require.Equal(t, "100000000000000000", cfg.ThresholdWad)

	// The default file was persisted and loads back identically.
	_, err = os.Stat(path)
	require.NoError(t, err)
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, reloaded)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("RPCAddress = \":7000\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.RPCAddress)
	require.Equal(t, ":9090", cfg.MetricsAddress)
	require.Equal(t, "./reserve-data", cfg.DataDir)
	require.Equal(t, 100, cfg.LogMaxSizeMB)
}

func TestValidateRejectsBadAddresses(t *testing.T) {
	cfg := &Config{Owner: "not-a-bech32-address"}
	require.Error(t, cfg.Validate())

	cfg = &Config{YieldReceiver: "also-bad"}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsThresholdOutOfRange(t *testing.T) {
	cfg := &Config{ThresholdWad: "2000000000000000000"} // 200%
	require.Error(t, cfg.Validate())

	cfg = &Config{ThresholdWad: "not-a-number"}
	require.Error(t, cfg.Validate())

	cfg = &Config{ThresholdWad: "1000000000000000000"} // exactly 100%
	require.NoError(t, cfg.Validate())
}

func TestThresholdDefaultsToZero(t *testing.T) {
	cfg := &Config{}
	threshold, err := cfg.Threshold()
	require.NoError(t, err)
	require.Zero(t, threshold.Sign())
}
