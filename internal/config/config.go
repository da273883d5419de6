package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Default configuration values
const (
	DefaultCargoPath     = "cargo"
	DefaultLockTimeout   = 15 * time.Minute
	DefaultLogLevel      = "info"
	DefaultLogMaxSize    = 10 // megabytes
	DefaultLogMaxBackups = 3
)

// Holds the configuration options for localbin
type Config struct {
	// Root of the shared build cache; defaults to ~/.cargo/local-install
	CacheRoot string `mapstructure:"cache_root"`

	// Shared cargo target directory; defaults to <cache_root>/target
	TargetDir string `mapstructure:"target_dir"`

	// Path to the cargo executable
	CargoPath string `mapstructure:"cargo_path"`

	// Bound on waiting for another process's build lock
	LockTimeout time.Duration `mapstructure:"lock_timeout"`

	// Logging
	LogLevel      string `mapstructure:"log_level"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSize    int    `mapstructure:"log_max_size"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := viper.Unmarshal(cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	// Apply defaults if not set
	if cfg.CacheRoot == "" {
		root, err := DefaultCacheRoot()
		if err != nil {
			return nil, err
		}
		cfg.CacheRoot = root
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultCacheRoot returns the per-user cache location, ~/.cargo/local-install
func DefaultCacheRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("couldn't determine cache root: %w", err)
	}

	return filepath.Join(home, ".cargo", "local-install"), nil
}

func (c *Config) Validate() error {
	abs, err := filepath.Abs(c.CacheRoot)
	if err != nil {
		return fmt.Errorf("invalid cache root: %v", err)
	}
	c.CacheRoot = abs

	if c.TargetDir == "" {
		c.TargetDir = filepath.Join(c.CacheRoot, "target")
	} else {
		abs, err := filepath.Abs(c.TargetDir)
		if err != nil {
			return fmt.Errorf("invalid target dir: %v", err)
		}
		c.TargetDir = abs
	}

	if c.CargoPath == "" {
		c.CargoPath = DefaultCargoPath
	}

	if c.LockTimeout < 0 {
		return fmt.Errorf("lock_timeout must not be negative")
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = DefaultLockTimeout
	}

	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	return nil
}
