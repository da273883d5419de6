// Package builder invokes cargo install for a single request, directing
// the install root at the cache's staging directory and the target
// directory at the shared build tree.
package builder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/localbin/localbin/internal/install"
)

// Commander interface for testing
type Commander interface {
	Run() error
}

// Invoker runs cargo install commands
type Invoker struct {
	cargoPath string
	targetDir string
	log       *logrus.Logger

	execCommand func(ctx context.Context, name string, args ...string) Commander
}

// New creates an invoker using the cargo binary at cargoPath and the
// shared target directory targetDir
func New(cargoPath, targetDir string, log *logrus.Logger) *Invoker {
	return &Invoker{
		cargoPath: cargoPath,
		targetDir: targetDir,
		log:       log,
		execCommand: func(ctx context.Context, name string, args ...string) Commander {
			return exec.CommandContext(ctx, name, args...)
		},
	}
}

// Args builds the cargo command line for req, installing into root. The
// flag order is deterministic so log output and dry runs are stable.
func (iv *Invoker) Args(req *install.Request, root string) []string {
	var args []string

	// always name the toolchain explicitly; the cache key assumes the
	// canonical toolchain, not whatever rustup default happens to be active
	args = append(args, "+"+req.CanonicalToolchain())

	args = append(args, "install")

	if req.Strictness == install.StrictnessLocked {
		args = append(args, "--locked")
	}

	if v := req.CanonicalVersion(); v != "" {
		args = append(args, "--version", v)
	}

	if len(req.Features) > 0 {
		args = append(args, "--features", strings.Join(sortedFeatures(req.Features), ","))
	}
	if !req.DefaultFeatures {
		args = append(args, "--no-default-features")
	}
	if req.AllFeatures {
		args = append(args, "--all-features")
	}

	if req.Target != "" {
		args = append(args, "--target", req.Target)
	}

	if req.Profile != "" && req.Profile != "release" {
		args = append(args, "--profile", req.Profile)
	}

	args = append(args, "--target-dir", iv.targetDir)
	args = append(args, "--root", root)
	args = append(args, "--", req.Package)

	return args
}

// sortedFeatures returns the user's feature list deduplicated and sorted,
// keeping the command line deterministic
func sortedFeatures(features []string) []string {
	out := make([]string, 0, len(features))
	seen := make(map[string]bool, len(features))
	for _, f := range features {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Build runs cargo install for req with its install root pointed at
// stagingRoot, so binaries land in stagingRoot/bin. Cargo's own output
// streams through to the caller's terminal.
func (iv *Invoker) Build(ctx context.Context, req *install.Request, stagingRoot string) error {
	args := iv.Args(req, stagingRoot)
	iv.log.WithField("command", iv.cargoPath+" "+strings.Join(args, " ")).Debug("running cargo install")

	c := iv.execCommand(ctx, iv.cargoPath, args...)
	if cmd, ok := c.(*exec.Cmd); ok {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	if err := c.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code := exitErr.ExitCode()
			return fmt.Errorf("cargo install exited with code %d: %s", code, ExitMessage(code))
		}
		return fmt.Errorf("failed to execute %s: %w", iv.cargoPath, err)
	}

	return nil
}
