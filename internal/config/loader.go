package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Loader handles configuration loading from various sources
type Loader struct{}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadForCommand loads configuration for a command invocation, layering
// defaults, the global config file, a project-local config file found by
// walking up from the working directory, environment variables, and flags.
func (l *Loader) LoadForCommand(cmd *cobra.Command) (*Config, error) {
	l.setupViperDefaults()
	l.setupEnv()
	l.loadGlobalConfig()
	l.loadLocalConfig()
	l.bindCommandFlags(cmd)

	return Load()
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	viper.SetDefault("cargo_path", DefaultCargoPath)
	viper.SetDefault("lock_timeout", DefaultLockTimeout)
	viper.SetDefault("log_level", DefaultLogLevel)
	viper.SetDefault("log_max_size", DefaultLogMaxSize)
	viper.SetDefault("log_max_backups", DefaultLogMaxBackups)
}

// setupEnv wires LOCALBIN_* environment variables
func (l *Loader) setupEnv() {
	viper.SetEnvPrefix("LOCALBIN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// loadGlobalConfig loads the per-user configuration file
func (l *Loader) loadGlobalConfig() {
	if explicit := os.Getenv("LOCALBIN_CONFIG"); explicit != "" {
		viper.SetConfigFile(explicit)
		_ = viper.ReadInConfig()
		return
	}

	confDir, err := os.UserConfigDir()
	if err != nil {
		return
	}

	globalDir := filepath.Join(confDir, "localbin")
	for _, ext := range []string{"yml", "yaml", "json", "toml"} {
		globalPath := filepath.Join(globalDir, "config."+ext)

		if _, err := os.Stat(globalPath); err == nil {
			viper.SetConfigFile(globalPath)

			if err := viper.ReadInConfig(); err == nil {
				break
			}
		}
	}
}

// loadLocalConfig loads project configuration from the working directory
// or an ancestor
func (l *Loader) loadLocalConfig() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	localPath := FindLocalConfig(cwd)
	if localPath != "" {
		viper.SetConfigFile(localPath)
		_ = viper.MergeInConfig()
	}
}

// bindCommandFlags binds command flags to viper
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	_ = viper.BindPFlag("cache_root", cmd.Flags().Lookup("cache-root"))
	_ = viper.BindPFlag("target_dir", cmd.Flags().Lookup("target-dir"))
	_ = viper.BindPFlag("cargo_path", cmd.Flags().Lookup("cargo-path"))
	_ = viper.BindPFlag("lock_timeout", cmd.Flags().Lookup("lock-timeout"))
	_ = viper.BindPFlag("log_level", cmd.Flags().Lookup("log-level"))
	_ = viper.BindPFlag("log_file", cmd.Flags().Lookup("log-file"))
}
