package install

import (
	"errors"
	"fmt"
)

var (
	// ErrLockConflict indicates strict mode was requested but the pinned
	// and requested versions are ambiguous or contradictory
	ErrLockConflict = errors.New("lock conflict")

	// ErrBuildFailed indicates the underlying cargo install invocation failed
	ErrBuildFailed = errors.New("build failed")

	// ErrLockTimeout indicates another process held the build lock beyond
	// the configured bound; the operation is safe to re-run
	ErrLockTimeout = errors.New("timed out waiting for build lock")

	// ErrPublishFailed indicates the built artifact could not be committed
	// into the cache
	ErrPublishFailed = errors.New("publish failed")

	// ErrLinkFailed indicates neither a symlink nor a copy could be placed
	// in the project bin directory; the cache itself is unaffected
	ErrLinkFailed = errors.New("link failed")
)

// Error wraps a failure with the operation and package it occurred for.
// Kind is one of the sentinel errors above and is what errors.Is matches;
// Err carries the underlying diagnostic and remains reachable via Unwrap.
type Error struct {
	Op      string
	Package string
	Kind    error
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Package, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Package, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}
