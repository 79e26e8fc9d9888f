package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/cuemby/podlease/pkg/types"
)

// defaultDir is the dotfile directory under the user's home directory
// holding config and identity files.
const defaultDir = ".podlease"

// ProviderConfig is the on-disk shape of a Provider's configuration
// file, loaded from ~/.podlease/provider.json unless overridden.
type ProviderConfig struct {
	IdentitySeedPath       string         `mapstructure:"identity_seed_path"`
	Hostname               string         `mapstructure:"hostname"`
	Location               string         `mapstructure:"location"`
	APIEndpoint            string         `mapstructure:"api_endpoint"`
	Instructions           []string       `mapstructure:"instructions"`
	Specs                  []types.PodSpec `mapstructure:"specs"`
	WhitelistedMints       []string       `mapstructure:"whitelisted_mints"`
	HeartbeatIntervalSecs  int64          `mapstructure:"heartbeat_interval_secs"`
	MinimumDurationSeconds int64          `mapstructure:"minimum_duration_seconds"`
	IDRangeLo              int64          `mapstructure:"id_range_lo"`
	IDRangeHi              int64          `mapstructure:"id_range_hi"`
	PortRangeLo            int            `mapstructure:"port_range_lo"`
	PortRangeHi            int            `mapstructure:"port_range_hi"`
	TotalCPUMillicores     int64          `mapstructure:"total_cpu_millicores"`
	TotalMemoryMB          int64          `mapstructure:"total_memory_mb"`
	TotalStorageGB         int64          `mapstructure:"total_storage_gb"`
	RelayURLs              []string       `mapstructure:"relay_urls"`
	DataDir                string         `mapstructure:"data_dir"`
	BackendKind            string         `mapstructure:"backend_kind"` // "containerd", "rest", or "lima"
	BackendAddr            string         `mapstructure:"backend_addr"`
	BackendToken           string         `mapstructure:"backend_token"`
	MetricsAddr            string         `mapstructure:"metrics_addr"`
}

// ClientConfig is the on-disk shape of a Client's configuration file,
// loaded from ~/.podlease/client.json unless overridden.
type ClientConfig struct {
	IdentitySeedPath string   `mapstructure:"identity_seed_path"`
	RelayURLs        []string `mapstructure:"relay_urls"`
	SpawnTimeoutSecs int64    `mapstructure:"spawn_timeout_secs"`
	StatusTimeoutSecs int64   `mapstructure:"status_timeout_secs"`
}

// DefaultDir returns ~/.podlease, creating it if absent.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(home, defaultDir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// LoadProvider reads a ProviderConfig from path, or from
// ~/.podlease/provider.json if path is empty. Values may be overridden
// by PODLEASE_* environment variables (e.g. PODLEASE_HOSTNAME).
func LoadProvider(path string) (*ProviderConfig, error) {
	v, err := newViper(path, "provider")
	if err != nil {
		return nil, err
	}

	var cfg ProviderConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal provider config: %w", err)
	}
	return &cfg, nil
}

// LoadClient reads a ClientConfig from path, or from
// ~/.podlease/client.json if path is empty.
func LoadClient(path string) (*ClientConfig, error) {
	v, err := newViper(path, "client")
	if err != nil {
		return nil, err
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client config: %w", err)
	}
	return &cfg, nil
}

func newViper(path, name string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("PODLEASE")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName(name)
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s config: %w", name, err)
		}
	}

	return v, nil
}
