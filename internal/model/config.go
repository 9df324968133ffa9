package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DatabaseConfig holds local store settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig holds structured logger settings.
type LoggingConfig struct {
	// Level is a zerolog level name ("debug", "info", "warn", ...).
	Level string `mapstructure:"level" yaml:"level"`

	// Pretty switches from JSON lines to human-readable console output.
	Pretty bool `mapstructure:"pretty" yaml:"pretty"`
}

// WorkerConfig controls the syncback request runner.
type WorkerConfig struct {
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	BatchSize       int `mapstructure:"batch_size" yaml:"batch_size"`

	// MaxAttempts bounds retries of non-fatal failures per request.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Worker   WorkerConfig   `mapstructure:"worker" yaml:"worker"`
	Accounts []Account      `mapstructure:"accounts" yaml:"accounts"`
}

// Account returns the configured account with the given ID, or nil.
func (c *AppConfig) Account(id string) *Account {
	for i := range c.Accounts {
		if c.Accounts[i].ID == id {
			return &c.Accounts[i]
		}
	}
	return nil
}

// configDir returns ~/.config/syncback, or the working directory when the
// home directory cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "syncback")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/syncback/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Database: DatabaseConfig{
			Path: filepath.Join(configDir(), "syncback.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Worker: WorkerConfig{
			PollIntervalSec: 15,
			BatchSize:       20,
			MaxAttempts:     5,
		},
		Accounts: []Account{},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	def := defaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SYNCBACK")
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.pretty", false)
	v.SetDefault("worker.poll_interval_sec", def.Worker.PollIntervalSec)
	v.SetDefault("worker.batch_size", def.Worker.BatchSize)
	v.SetDefault("worker.max_attempts", def.Worker.MaxAttempts)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return def, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return def, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	for i := range cfg.Accounts {
		acct := &cfg.Accounts[i]
		if acct.ID == "" {
			return nil, fmt.Errorf("account %d in %s has no id", i, path)
		}
		if acct.Provider == "" {
			acct.Provider = ProviderIMAP
		}
		if !acct.Provider.Valid() {
			return nil, fmt.Errorf(
				"account %s: unknown provider %q", acct.ID, acct.Provider,
			)
		}
		if acct.IMAPPort == "" {
			acct.IMAPPort = "993"
			if !v.IsSet(fmt.Sprintf("accounts.%d.imap_tls", i)) {
				acct.IMAPTLS = true
			}
		}
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database", cfg.Database)
	v.Set("logging", cfg.Logging)
	v.Set("worker", cfg.Worker)
	v.Set("accounts", cfg.Accounts)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
