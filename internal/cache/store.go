// Package cache persists completed cargo builds under a shared cache root,
// one slot directory per fingerprint.
//
// The filesystem is the state. A slot is visible only once it contains the
// completion marker (entry.json), which Commit writes after atomically
// renaming the staged build into place; a crash at any earlier point leaves
// either nothing or a markerless directory, both of which Lookup treats as
// a miss. Cross-process mutual exclusion per fingerprint uses flock-style
// advisory locks under .locks/, which the kernel releases if the holding
// process dies.
//
// Layout under the root:
//
//	crates/<fingerprint>/bin/*   built binaries
//	crates/<fingerprint>/entry.json
//	.locks/<fingerprint>.lock
//	.tmp/<uuid>                  staging, promoted by rename
//	target/                      shared cargo target dir (see Builder)
//	index.db                     advisory bbolt index for list/stats
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	cratesDirName = "crates"
	locksDirName  = ".locks"
	tmpDirName    = ".tmp"
	targetDirName = "target"

	// markerName is the completion marker; a slot without it is a miss
	markerName = "entry.json"

	// lockPollInterval is the retry cadence while waiting on another
	// process's build lock
	lockPollInterval = 100 * time.Millisecond
)

// Store maps fingerprints to committed build artifacts on disk
type Store struct {
	root string
	log  *logrus.Logger
}

// New opens (creating if needed) a store rooted at dir
func New(dir string, log *logrus.Logger) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}

	for _, sub := range []string{cratesDirName, locksDirName, tmpDirName} {
		if err := os.MkdirAll(filepath.Join(abs, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	return &Store{root: abs, log: log}, nil
}

// Root returns the cache root directory
func (s *Store) Root() string {
	return s.root
}

// TargetDir returns the shared cargo target directory under the root.
// Sharing it across fingerprints amortizes dependency compilation; it is
// an optimization, not required for correctness.
func (s *Store) TargetDir() string {
	return filepath.Join(s.root, targetDirName)
}

func (s *Store) slotDir(fp string) string {
	return filepath.Join(s.root, cratesDirName, fp)
}

// Lookup returns the committed entry for fp, or nil on a miss. A slot
// directory without a readable completion marker is a miss, never a
// corrupt hit.
func (s *Store) Lookup(fp string) (*Entry, error) {
	dir := s.slotDir(fp)

	data, err := os.ReadFile(filepath.Join(dir, markerName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read completion marker: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// half-written marker from a crash; treat as absent
		s.log.WithField("fingerprint", fp).Warn("unreadable cache entry marker, treating as miss")
		return nil, nil
	}

	entry.Dir = dir
	return &entry, nil
}

// BuildLock is exclusive ownership of a fingerprint's slot for the
// duration of one build
type BuildLock struct {
	fp      string
	fl      *flock.Flock
	staging string
}

// StagingDir returns the directory the build must populate; its bin/
// subdirectory is promoted into the slot on Commit
func (l *BuildLock) StagingDir() string {
	return l.staging
}

// release unlocks the slot. The lock file itself stays behind: unlinking
// it would let a waiter on the old inode and a newcomer on a fresh file
// hold the "same" lock simultaneously.
func (l *BuildLock) release() {
	_ = l.fl.Unlock()
}

// BeginBuild acquires the build lock for fp, polling until the context
// expires. If another process committed the slot while we waited, the
// already-satisfied entry is returned instead of a lock.
func (s *Store) BeginBuild(ctx context.Context, fp string) (*BuildLock, *Entry, error) {
	fl := flock.New(filepath.Join(s.root, locksDirName, fp+".lock"))

	locked, err := fl.TryLockContext(ctx, lockPollInterval)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire build lock: %w", err)
	}
	if !locked {
		return nil, nil, fmt.Errorf("acquire build lock: %w", ctx.Err())
	}

	// re-check under the lock: the previous holder may have just committed
	entry, err := s.Lookup(fp)
	if err != nil {
		fl.Unlock()
		return nil, nil, err
	}
	if entry != nil {
		fl.Unlock()
		return nil, entry, nil
	}

	staging := filepath.Join(s.root, tmpDirName, uuid.NewString())
	if err := os.MkdirAll(staging, 0o755); err != nil {
		fl.Unlock()
		return nil, nil, fmt.Errorf("create staging directory: %w", err)
	}

	return &BuildLock{fp: fp, fl: fl, staging: staging}, nil, nil
}

// Commit atomically publishes the staged build into the slot and releases
// the lock. The staged directory is renamed into place first and the
// completion marker written second, so no concurrent Lookup can observe a
// partial entry.
func (s *Store) Commit(lock *BuildLock, entry *Entry) (*Entry, error) {
	defer lock.release()

	bins, err := collectBins(filepath.Join(lock.staging, "bin"))
	if err != nil {
		os.RemoveAll(lock.staging)
		return nil, err
	}
	if len(bins) == 0 {
		os.RemoveAll(lock.staging)
		return nil, fmt.Errorf("build produced no binaries in %s", filepath.Join(lock.staging, "bin"))
	}

	entry.Fingerprint = lock.fp
	entry.Bins = bins
	entry.CreatedAt = time.Now().UTC()

	slot := s.slotDir(lock.fp)

	// a crashed predecessor may have left a markerless slot behind; we
	// hold the lock, so clearing it is safe
	if _, err := os.Stat(slot); err == nil {
		if err := os.RemoveAll(slot); err != nil {
			os.RemoveAll(lock.staging)
			return nil, fmt.Errorf("clear stale slot: %w", err)
		}
	}

	if err := os.Rename(lock.staging, slot); err != nil {
		os.RemoveAll(lock.staging)
		return nil, fmt.Errorf("promote staged build: %w", err)
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	if err := os.WriteFile(filepath.Join(slot, markerName), data, 0o644); err != nil {
		return nil, fmt.Errorf("write completion marker: %w", err)
	}

	entry.Dir = slot

	// advisory index only; a failure here never invalidates the commit
	if err := s.recordInIndex(entry); err != nil {
		s.log.WithError(err).Warn("failed to record entry in install index")
	}

	return entry, nil
}

// Abort releases the lock without publishing and discards the staged
// build. Any previously committed entry for the fingerprint is untouched.
func (s *Store) Abort(lock *BuildLock) {
	os.RemoveAll(lock.staging)
	lock.release()
}

func (s *Store) recordInIndex(entry *Entry) error {
	idx, err := OpenIndex(s.root)
	if err != nil {
		return err
	}
	defer idx.Close()

	return idx.Record(entry)
}

// collectBins lists regular files in the staged bin directory
func collectBins(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read staged bin directory: %w", err)
	}

	var bins []string
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		bins = append(bins, ent.Name())
	}

	return bins, nil
}
