package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/localbin/localbin/internal/install"
	"github.com/localbin/localbin/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "localbin",
	Short: "Shared build cache for cargo install",
	Long: `Install Rust binaries into per-project bin/ directories backed by one
shared build cache, so projects pinning the same tool version never
rebuild it.`,
	SilenceUsage: true,
}

// Execute runs the CLI and exits with a code reflecting the error kind
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps engine error kinds to process exit codes
func exitCode(err error) int {
	switch {
	case errors.Is(err, install.ErrLockConflict):
		return 2
	case errors.Is(err, install.ErrBuildFailed):
		return 3
	case errors.Is(err, install.ErrLockTimeout):
		return 4
	case errors.Is(err, install.ErrPublishFailed):
		return 5
	case errors.Is(err, install.ErrLinkFailed):
		return 6
	default:
		return 1
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)

	rootCmd.PersistentFlags().String("cache-root", "", "Shared cache root (default ~/.cargo/local-install)")
	rootCmd.PersistentFlags().String("target-dir", "", "Shared cargo target directory (default <cache-root>/target)")
	rootCmd.PersistentFlags().String("cargo-path", "", "Path to the cargo executable")
	rootCmd.PersistentFlags().Duration("lock-timeout", 0, "Bound on waiting for another process's build lock")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "Write JSON logs to this rotated file instead of stderr")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(listCmd)
}
