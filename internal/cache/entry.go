package cache

import (
	"path/filepath"
	"time"
)

// Entry describes one committed build in the cache. It is written as the
// slot's completion marker (entry.json) during Commit and is immutable
// afterwards.
type Entry struct {
	// Fingerprint is the cache key; also the slot directory name
	Fingerprint string `json:"fingerprint"`

	// Package is the crate name
	Package string `json:"package"`

	// ResolvedVersion is the exact version the build was performed at
	ResolvedVersion string `json:"resolved_version"`

	// Features is the canonical (sorted) feature set
	Features []string `json:"features,omitempty"`

	// Target is the rustc target triple
	Target string `json:"target"`

	// Toolchain is the rustup toolchain identifier
	Toolchain string `json:"toolchain"`

	// Profile is the cargo build profile
	Profile string `json:"profile"`

	// Locked records whether the build ran with --locked
	Locked bool `json:"locked"`

	// CreatedAt is when the entry was committed
	CreatedAt time.Time `json:"created_at"`

	// Bins lists the binary file names under the slot's bin directory
	Bins []string `json:"bins"`

	// Dir is the slot directory on disk; derived at load time, not stored
	Dir string `json:"-"`
}

// BinDir returns the directory holding the entry's built binaries
func (e *Entry) BinDir() string {
	return filepath.Join(e.Dir, "bin")
}

// BinPath returns the on-disk path of a named binary
func (e *Entry) BinPath(name string) string {
	return filepath.Join(e.Dir, "bin", name)
}
