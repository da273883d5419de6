// Package linker materializes cached binaries into a project bin
// directory. Symlinking into the cache is preferred; when the filesystem
// refuses (permissions, FAT-style filesystems, policy), the bytes are
// copied instead. Both strategies yield the same observable contract: a
// working executable at the destination path.
package linker

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/localbin/localbin/internal/cache"
)

// Mode is the strategy that produced a materialized binary
type Mode string

const (
	ModeSymlink Mode = "symlink"
	ModeCopy    Mode = "copy"
)

// LinkResult is one materialized binary in the project directory
type LinkResult struct {
	// Name is the binary file name
	Name string

	// Path is the destination under the project bin directory
	Path string

	// Target is the cached binary the destination refers to
	Target string

	// Mode records whether a symlink or a copy was produced
	Mode Mode
}

// Linker places cached binaries into project directories
type Linker struct {
	log *logrus.Logger

	// injectable for exercising the copy fallback in tests
	symlink func(oldname, newname string) error
}

// New creates a Linker
func New(log *logrus.Logger) *Linker {
	return &Linker{
		log:     log,
		symlink: os.Symlink,
	}
}

// Materialize places every binary of entry into outDir, replacing any
// stale link or copy already there. It never mutates the cache; re-running
// with the same entry is idempotent.
func (l *Linker) Materialize(entry *cache.Entry, outDir string) ([]LinkResult, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create bin directory: %w", err)
	}

	if len(entry.Bins) == 0 {
		return nil, fmt.Errorf("cache entry %s has no binaries", entry.Fingerprint)
	}

	results := make([]LinkResult, 0, len(entry.Bins))
	for _, name := range entry.Bins {
		res, err := l.replace(entry.BinPath(name), filepath.Join(outDir, name))
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	return results, nil
}

// replace puts a link (or copy) to src at dst, removing whatever was there
func (l *Linker) replace(src, dst string) (LinkResult, error) {
	name := filepath.Base(dst)

	// stale symlinks make the subsequent symlink call fail with EEXIST
	_ = os.Remove(dst)

	err := l.symlink(src, dst)
	if err == nil {
		return LinkResult{Name: name, Path: dst, Target: src, Mode: ModeSymlink}, nil
	}
	l.log.WithFields(logrus.Fields{
		"dst": dst,
		"src": src,
	}).WithError(err).Debug("symlink failed, falling back to copy")

	if err := l.copyFile(src, dst); err != nil {
		return LinkResult{}, fmt.Errorf("replace %s: %w", dst, err)
	}

	return LinkResult{Name: name, Path: dst, Target: src, Mode: ModeCopy}, nil
}

// copyFile copies src over dst via a temp file and rename, so a crash
// mid-copy never leaves a truncated executable at the destination
func (l *Linker) copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, err = io.Copy(tmp, srcFile)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpName, srcInfo.Mode())
	}
	if err == nil {
		err = os.Rename(tmpName, dst)
	}
	if err != nil {
		os.Remove(tmpName)
		return err
	}

	return nil
}
