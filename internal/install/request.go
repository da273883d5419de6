package install

import (
	"regexp"
	"runtime"
	"sort"
)

// Strictness controls whether an unpinned version is tolerated
type Strictness int

const (
	// StrictnessUnspecified means the caller passed neither --locked nor
	// --unlocked; the engine proceeds unlocked but warns
	StrictnessUnspecified Strictness = iota

	// StrictnessLocked requires an exact version pinned by a lock file
	StrictnessLocked

	// StrictnessUnlocked tolerates unpinned versions without the nag
	StrictnessUnlocked
)

func (s Strictness) String() string {
	switch s {
	case StrictnessLocked:
		return "locked"
	case StrictnessUnlocked:
		return "unlocked"
	default:
		return "unspecified"
	}
}

// Request describes a single crate installation. It is built once by the
// CLI and never mutated afterwards.
type Request struct {
	// Package is the crate name (e.g. "cargo-web")
	Package string

	// VersionReq is the user-supplied version constraint (may be a range
	// like "^0.6"); used only for diagnostics and as a last-resort cache
	// identity when no resolution was performed
	VersionReq string

	// ResolvedVersion is the exact version produced by the external
	// resolution step, when one ran
	ResolvedVersion string

	// PinnedVersion is the exact version recorded in a lock file, when
	// one exists
	PinnedVersion string

	// Features to enable, order-insensitive
	Features []string

	// DefaultFeatures controls the crate's "default" feature set; it is
	// an explicit part of the cache identity, not an implicit merge
	DefaultFeatures bool

	// AllFeatures enables every feature the crate declares
	AllFeatures bool

	// Target is the rustc target triple; empty means the host
	Target string

	// Toolchain is the rustup toolchain identifier (e.g. "stable")
	Toolchain string

	// Profile is the cargo build profile (e.g. "release", "debug")
	Profile string

	// Strictness is the lock policy for this invocation
	Strictness Strictness

	// Root is the project directory receiving bin/ links
	Root string
}

const (
	defaultToolchain = "stable"
	defaultProfile   = "release"
)

// CanonicalVersion returns the exact version string used for cache
// identity: the resolved version when present, else the lock file pin,
// else the raw requirement.
func (r *Request) CanonicalVersion() string {
	if r.ResolvedVersion != "" {
		return r.ResolvedVersion
	}
	if r.PinnedVersion != "" {
		return r.PinnedVersion
	}
	return r.VersionReq
}

// CanonicalFeatures returns the feature set sorted lexicographically,
// with default-feature and all-feature toggles represented as explicit
// elements so they participate in cache identity.
func (r *Request) CanonicalFeatures() []string {
	features := make([]string, 0, len(r.Features)+2)
	seen := make(map[string]bool, len(r.Features))
	for _, f := range r.Features {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		features = append(features, f)
	}
	if r.DefaultFeatures {
		features = append(features, "default")
	}
	if r.AllFeatures {
		features = append(features, "*")
	}
	sort.Strings(features)
	return features
}

// CanonicalTarget returns the target triple, defaulting to the host
func (r *Request) CanonicalTarget() string {
	if r.Target != "" {
		return r.Target
	}
	return HostTriple()
}

// CanonicalToolchain returns the toolchain identifier, defaulting to stable
func (r *Request) CanonicalToolchain() string {
	if r.Toolchain != "" {
		return r.Toolchain
	}
	return defaultToolchain
}

// CanonicalProfile returns the build profile, defaulting to release
func (r *Request) CanonicalProfile() string {
	if r.Profile != "" {
		return r.Profile
	}
	return defaultProfile
}

var exactVersionRe = regexp.MustCompile(`^v?\d+\.\d+\.\d+(?:[-+][0-9A-Za-z.+-]+)?$`)

// IsExactVersion reports whether v names a single version rather than a
// range constraint
func IsExactVersion(v string) bool {
	return exactVersionRe.MatchString(v)
}

// hostTriples maps the runtime platform to the rustc triple cargo would
// build for by default
var hostTriples = map[string]string{
	"linux/amd64":   "x86_64-unknown-linux-gnu",
	"linux/arm64":   "aarch64-unknown-linux-gnu",
	"linux/386":     "i686-unknown-linux-gnu",
	"darwin/amd64":  "x86_64-apple-darwin",
	"darwin/arm64":  "aarch64-apple-darwin",
	"windows/amd64": "x86_64-pc-windows-msvc",
	"windows/arm64": "aarch64-pc-windows-msvc",
	"freebsd/amd64": "x86_64-unknown-freebsd",
}

// HostTriple returns the rustc target triple for the current platform
func HostTriple() string {
	if triple, ok := hostTriples[runtime.GOOS+"/"+runtime.GOARCH]; ok {
		return triple
	}
	return runtime.GOARCH + "-unknown-" + runtime.GOOS
}
