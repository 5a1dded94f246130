package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/ratevault/internal/domain"
)

// Asset drivers.
const (
	AssetMemory = "memory"
	AssetERC20  = "erc20"
)

// Config holds the escrow daemon configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Escrow    EscrowConfig    `yaml:"escrow"`
	Asset     AssetConfig     `yaml:"asset"`
	Auth      AuthConfig      `yaml:"auth"`
	Journal   JournalConfig   `yaml:"journal"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig maps bearer tokens to the caller address they act as.
type AuthConfig struct {
	Principals map[string]string `yaml:"principals"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings. No addrs disables checkpoints.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis (default)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Enabled reports whether a store is configured.
func (d DatabaseConfig) Enabled() bool { return len(d.Addrs) > 0 }

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// EscrowConfig holds the immutable escrow parameters.
type EscrowConfig struct {
	ID                string `yaml:"id"`
	Agent             string `yaml:"agent"`
	DrawRatePerSecond string `yaml:"draw_rate_per_second"`
}

// SeedAccount pre-funds an address on the memory asset.
type SeedAccount struct {
	Address string `yaml:"address"`
	Balance string `yaml:"balance"`
	// Approve is the allowance granted to the pool.
	Approve string `yaml:"approve"`
}

// AssetConfig selects and configures the custody asset.
type AssetConfig struct {
	Driver string `yaml:"driver"` // memory (default), erc20
	Symbol string `yaml:"symbol"`

	// memory
	Pool string        `yaml:"pool"`
	Seed []SeedAccount `yaml:"seed"`

	// erc20
	RPCURL            string `yaml:"rpc_url"`
	Contract          string `yaml:"contract"`
	PrivateKey        string `yaml:"private_key"`
	ChainID           int64  `yaml:"chain_id"`
	ConfirmTimeoutSec int    `yaml:"confirm_timeout_sec"`
}

// ConfirmTimeout returns the receipt wait as a duration.
func (a AssetConfig) ConfirmTimeout() time.Duration {
	return time.Duration(a.ConfirmTimeoutSec) * time.Second
}

// JournalConfig holds operation journal settings. Empty path disables the journal.
type JournalConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// SchedulerConfig holds cron specs (with seconds field). Empty disables the job.
type SchedulerConfig struct {
	GaugesCron     string `yaml:"gauges_cron"`
	CheckpointCron string `yaml:"checkpoint_cron"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// erc20 handlers block until the transaction is mined
		c.HTTP.WriteTimeoutSec = 180
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "ratevault:"
	}
	if c.Escrow.ID == "" {
		c.Escrow.ID = "default"
	}
	if c.Asset.Driver == "" {
		c.Asset.Driver = AssetMemory
	}
	if c.Asset.Symbol == "" {
		c.Asset.Symbol = "USDX"
	}
	if c.Asset.ConfirmTimeoutSec <= 0 {
		c.Asset.ConfirmTimeoutSec = 120
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Database.Driver != "redis" {
		return fmt.Errorf("database.driver must be \"redis\", got %q", c.Database.Driver)
	}
	if _, err := domain.ParseAddress(c.Escrow.Agent); err != nil {
		return fmt.Errorf("escrow.agent: %w", err)
	}
	if _, err := domain.ParseAmount(c.Escrow.DrawRatePerSecond); err != nil {
		return fmt.Errorf("escrow.draw_rate_per_second: %w", err)
	}
	if err := c.Asset.validate(); err != nil {
		return err
	}
	if _, err := c.Auth.Callers(); err != nil {
		return err
	}
	return nil
}

func (a *AssetConfig) validate() error {
	switch a.Driver {
	case AssetMemory:
		if _, err := domain.ParseAddress(a.Pool); err != nil {
			return fmt.Errorf("asset.pool: %w", err)
		}
		for i, s := range a.Seed {
			if _, err := domain.ParseAddress(s.Address); err != nil {
				return fmt.Errorf("asset.seed[%d].address: %w", i, err)
			}
			for field, v := range map[string]string{"balance": s.Balance, "approve": s.Approve} {
				if v == "" {
					continue
				}
				if _, err := domain.ParseAmount(v); err != nil {
					return fmt.Errorf("asset.seed[%d].%s: %w", i, field, err)
				}
			}
		}
	case AssetERC20:
		if a.RPCURL == "" {
			return fmt.Errorf("asset.rpc_url is required for the erc20 driver")
		}
		if _, err := domain.ParseAddress(a.Contract); err != nil {
			return fmt.Errorf("asset.contract: %w", err)
		}
		if a.PrivateKey == "" {
			return fmt.Errorf("asset.private_key is required for the erc20 driver")
		}
	default:
		return fmt.Errorf("asset.driver must be %q or %q, got %q", AssetMemory, AssetERC20, a.Driver)
	}
	return nil
}

// Callers parses auth.principals into token -> address.
func (a AuthConfig) Callers() (map[string]common.Address, error) {
	out := make(map[string]common.Address, len(a.Principals))
	for token, addr := range a.Principals {
		if token == "" {
			continue
		}
		parsed, err := domain.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("auth.principals: %w", err)
		}
		out[token] = parsed
	}
	return out, nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
