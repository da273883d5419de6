// Package install implements the build/reuse decision engine for cargo
// binaries installed through the shared local cache.
//
// One invocation flows: canonicalize the request, derive its fingerprint,
// consult the cache store, and either reuse the committed artifact or
// acquire the per-fingerprint build lock, run cargo install into a staging
// directory and commit the result. Materializing into the project bin/
// directory happens last and is the only step that touches the caller's
// tree.
package install

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/localbin/localbin/internal/cache"
	"github.com/localbin/localbin/internal/linker"
)

// Builder runs the underlying cargo install, producing bin/ under
// stagingRoot. It has no internally imposed timeout.
type Builder interface {
	Build(ctx context.Context, req *Request, stagingRoot string) error
}

// Linker materializes a committed cache entry into a project bin directory
type Linker interface {
	Materialize(entry *cache.Entry, outDir string) ([]linker.LinkResult, error)
}

// Engine decides between reusing a cached build and triggering a fresh one
type Engine struct {
	store    *cache.Store
	builder  Builder
	linker   Linker
	log      *logrus.Logger
	lockWait time.Duration

	// collapses concurrent in-process requests for the same fingerprint
	// before they contend on the cross-process file lock
	flight singleflight.Group
}

// NewEngine creates an engine over the given collaborators. lockWait bounds
// how long a request waits for another process's build; zero means wait as
// long as the caller's context allows.
func NewEngine(store *cache.Store, builder Builder, lnk Linker, log *logrus.Logger, lockWait time.Duration) *Engine {
	return &Engine{
		store:    store,
		builder:  builder,
		linker:   lnk,
		log:      log,
		lockWait: lockWait,
	}
}

// Result reports a completed installation
type Result struct {
	// Entry is the cache entry the project links now point into
	Entry *cache.Entry

	// Links are the materialized binaries under <root>/bin
	Links []linker.LinkResult

	// Rebuilt is true when this invocation ran cargo rather than reusing
	// the cache
	Rebuilt bool

	// Fingerprint is the cache key the request mapped to
	Fingerprint string
}

// Install performs one install request end to end
func (e *Engine) Install(ctx context.Context, req *Request) (*Result, error) {
	if err := e.checkStrictness(req); err != nil {
		return nil, err
	}

	fp := Fingerprint(req)
	log := e.log.WithFields(logrus.Fields{
		"package":     req.Package,
		"version":     req.CanonicalVersion(),
		"fingerprint": fp[:12],
	})

	entry, rebuilt, err := e.ensure(ctx, req, fp, log)
	if err != nil {
		return nil, err
	}

	outDir := filepath.Join(req.Root, "bin")
	links, err := e.linker.Materialize(entry, outDir)
	if err != nil {
		return nil, &Error{Op: "link", Package: req.Package, Kind: ErrLinkFailed, Err: err}
	}

	return &Result{
		Entry:       entry,
		Links:       links,
		Rebuilt:     rebuilt,
		Fingerprint: fp,
	}, nil
}

type ensureResult struct {
	entry   *cache.Entry
	rebuilt bool
}

// ensure guarantees the fingerprint's cache slot is populated, building at
// most once per process (singleflight) and at most once across processes
// (the store's build lock).
func (e *Engine) ensure(ctx context.Context, req *Request, fp string, log *logrus.Entry) (*cache.Entry, bool, error) {
	v, err, _ := e.flight.Do(fp, func() (interface{}, error) {
		entry, rebuilt, err := e.ensureSlot(ctx, req, fp, log)
		if err != nil {
			return nil, err
		}
		return ensureResult{entry: entry, rebuilt: rebuilt}, nil
	})
	if err != nil {
		return nil, false, err
	}

	res := v.(ensureResult)
	return res.entry, res.rebuilt, nil
}

func (e *Engine) ensureSlot(ctx context.Context, req *Request, fp string, log *logrus.Entry) (*cache.Entry, bool, error) {
	entry, err := e.store.Lookup(fp)
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", req.Package, err)
	}
	if entry != nil {
		log.Debug("cache hit")
		return entry, false, nil
	}

	lockCtx := ctx
	if e.lockWait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, e.lockWait)
		defer cancel()
	}

	lock, entry, err := e.store.BeginBuild(lockCtx, fp)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, false, &Error{Op: "lock", Package: req.Package, Kind: ErrLockTimeout, Err: err}
		}
		return nil, false, fmt.Errorf("lock %s: %w", req.Package, err)
	}
	if entry != nil {
		// another process finished the build while we waited
		log.Debug("cache populated by concurrent build")
		return entry, false, nil
	}

	log.Info("building")
	if err := e.builder.Build(ctx, req, lock.StagingDir()); err != nil {
		e.store.Abort(lock)
		return nil, false, &Error{Op: "build", Package: req.Package, Kind: ErrBuildFailed, Err: err}
	}

	committed, err := e.store.Commit(lock, &cache.Entry{
		Package:         req.Package,
		ResolvedVersion: req.CanonicalVersion(),
		Features:        req.CanonicalFeatures(),
		Target:          req.CanonicalTarget(),
		Toolchain:       req.CanonicalToolchain(),
		Profile:         req.CanonicalProfile(),
		Locked:          req.Strictness == StrictnessLocked,
	})
	if err != nil {
		return nil, false, &Error{Op: "publish", Package: req.Package, Kind: ErrPublishFailed, Err: err}
	}

	log.WithField("bins", committed.Bins).Info("build committed")
	return committed, true, nil
}

// checkStrictness enforces the lock policy before any build work starts
func (e *Engine) checkStrictness(req *Request) error {
	switch req.Strictness {
	case StrictnessLocked:
		if req.PinnedVersion != "" && req.ResolvedVersion != "" && req.PinnedVersion != req.ResolvedVersion {
			return &Error{
				Op:      "resolve",
				Package: req.Package,
				Kind:    ErrLockConflict,
				Err: errors.New("lock file pins " + req.PinnedVersion +
					" but " + req.ResolvedVersion + " was resolved from " + req.VersionReq),
			}
		}
		if req.PinnedVersion != "" && IsExactVersion(req.VersionReq) && req.VersionReq != req.PinnedVersion {
			return &Error{
				Op:      "resolve",
				Package: req.Package,
				Kind:    ErrLockConflict,
				Err: errors.New("lock file pins " + req.PinnedVersion +
					" but " + req.VersionReq + " was requested"),
			}
		}
		if !IsExactVersion(req.CanonicalVersion()) {
			return &Error{
				Op:      "resolve",
				Package: req.Package,
				Kind:    ErrLockConflict,
				Err:     errors.New("--locked requires an exact version, got " + quoteOrNone(req.CanonicalVersion())),
			}
		}
	case StrictnessUnspecified:
		e.log.Warn("either specify --locked to use the same dependencies the crate was built with, or --unlocked to get rid of this warning")
	case StrictnessUnlocked:
		if req.PinnedVersion == "" && !IsExactVersion(req.CanonicalVersion()) {
			e.log.WithField("package", req.Package).Warn("no version pin in effect; consider --locked for reproducible installs")
		}
	}
	return nil
}

func quoteOrNone(v string) string {
	if v == "" {
		return "none"
	}
	return `"` + v + `"`
}
