package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/localbin/localbin/internal/builder"
	"github.com/localbin/localbin/internal/cache"
	"github.com/localbin/localbin/internal/config"
	"github.com/localbin/localbin/internal/install"
	"github.com/localbin/localbin/internal/linker"
	"github.com/localbin/localbin/internal/logging"
)

var installCmd = &cobra.Command{
	Use:   "install [flags] [--] <crate>...",
	Short: "Install crate binaries through the shared cache",
	Long: `Install one or more crates, reusing previously built binaries from the
shared cache when the exact same configuration was built before.

Examples:
  localbin install --locked --version 0.6.26 cargo-web
  localbin install --root tools --unlocked wasm-bindgen-cli
  localbin install --features vendored-openssl cargo-update`,
	Args:         cobra.MinimumNArgs(1),
	RunE:         runInstall,
	SilenceUsage: true,
}

func init() {
	installCmd.Flags().String("version", "", "Version to install (exact or constraint)")
	installCmd.Flags().String("resolved-version", "", "Exact version produced by an external resolution step")
	installCmd.Flags().String("pinned-version", "", "Exact version pinned by a lock file")
	installCmd.Flags().Bool("locked", false, "Require a pinned, exact version")
	installCmd.Flags().Bool("unlocked", false, "Tolerate unpinned versions without warning")
	installCmd.Flags().StringSlice("features", nil, "Features to enable")
	installCmd.Flags().Bool("no-default-features", false, "Do not activate the crate's default features")
	installCmd.Flags().Bool("all-features", false, "Activate all available features")
	installCmd.Flags().String("target", "", "Build for the target triple")
	installCmd.Flags().String("toolchain", "", "Rustup toolchain to build with")
	installCmd.Flags().String("profile", "", "Cargo build profile")
	installCmd.Flags().Bool("debug", false, "Build in debug mode instead of release mode")
	installCmd.Flags().String("root", "", "Project directory to place bin/ links in (default cwd)")
	installCmd.Flags().Bool("dry-run", false, "Print the cargo invocations without running them")
	installCmd.Flags().BoolP("quiet", "q", false, "Only log warnings and errors")
	installCmd.Flags().BoolP("verbose", "v", false, "Log debug detail")
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().LoadForCommand(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if q, _ := flags.GetBool("quiet"); q {
		cfg.LogLevel = "warn"
	}
	if v, _ := flags.GetBool("verbose"); v {
		cfg.LogLevel = "debug"
	}

	log, err := logging.Init(cfg)
	if err != nil {
		return err
	}

	store, err := cache.New(cfg.CacheRoot, log)
	if err != nil {
		return err
	}

	invoker := builder.New(cfg.CargoPath, cfg.TargetDir, log)
	engine := install.NewEngine(store, invoker, linker.New(log), log, cfg.LockTimeout)

	root, _ := flags.GetString("root")
	if root == "" {
		root = "."
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("invalid --root: %w", err)
	}

	dryRun, _ := flags.GetBool("dry-run")

	for _, crate := range args {
		req, err := requestFromFlags(cmd, crate, root)
		if err != nil {
			return err
		}

		if dryRun {
			fmt.Printf("Skipped `%s %s` (--dry-run)\n", cfg.CargoPath,
				strings.Join(invoker.Args(req, "<cache slot>"), " "))
			continue
		}

		res, err := engine.Install(cmd.Context(), req)
		if err != nil {
			return err
		}

		report(res)
	}

	if !dryRun {
		log.Warnf("be sure to add `%s` to your PATH to be able to run the installed binaries",
			filepath.Join(root, "bin"))
	}

	return nil
}

// requestFromFlags assembles the immutable install request for one crate
func requestFromFlags(cmd *cobra.Command, crate, root string) (*install.Request, error) {
	flags := cmd.Flags()

	versionReq, _ := flags.GetString("version")
	resolved, _ := flags.GetString("resolved-version")
	pinned, _ := flags.GetString("pinned-version")
	features, _ := flags.GetStringSlice("features")
	noDefault, _ := flags.GetBool("no-default-features")
	allFeatures, _ := flags.GetBool("all-features")
	target, _ := flags.GetString("target")
	toolchain, _ := flags.GetString("toolchain")
	profile, _ := flags.GetString("profile")
	debug, _ := flags.GetBool("debug")

	if debug {
		if profile != "" && profile != "debug" {
			return nil, fmt.Errorf("--debug conflicts with --profile %s", profile)
		}
		profile = "debug"
	}

	return &install.Request{
		Package:         crate,
		VersionReq:      versionReq,
		ResolvedVersion: resolved,
		PinnedVersion:   pinned,
		Features:        features,
		DefaultFeatures: !noDefault,
		AllFeatures:     allFeatures,
		Target:          target,
		Toolchain:       toolchain,
		Profile:         profile,
		Strictness:      strictnessFromFlags(cmd),
		Root:            root,
	}, nil
}

// strictnessFromFlags maps the --locked/--unlocked pair onto the lock policy
func strictnessFromFlags(cmd *cobra.Command) install.Strictness {
	locked, _ := cmd.Flags().GetBool("locked")
	unlocked, _ := cmd.Flags().GetBool("unlocked")

	switch {
	case locked:
		return install.StrictnessLocked
	case unlocked:
		return install.StrictnessUnlocked
	default:
		return install.StrictnessUnspecified
	}
}

func report(res *install.Result) {
	action := "Reused"
	if res.Rebuilt {
		action = "Built"
	}
	fmt.Printf("%s %s %s\n", action, res.Entry.Package, res.Entry.ResolvedVersion)

	for _, link := range res.Links {
		switch link.Mode {
		case linker.ModeSymlink:
			fmt.Printf("  Linked `%s` to `%s`\n", link.Path, link.Target)
		case linker.ModeCopy:
			fmt.Printf("  Replaced `%s` with a copy of `%s`\n", link.Path, link.Target)
		}
	}
}
