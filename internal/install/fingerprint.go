package install

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
)

// Fingerprint derives the cache key for a request. It is a pure function
// of the canonical form: two requests that differ only in feature order,
// or whose requirement strings differ but resolve to the same exact
// version, hash identically; changing the resolved version, any feature,
// the target, the toolchain or the profile changes the key.
//
// The key is hex-encoded SHA256 and doubles as the cache slot directory
// name, so it must stay filesystem-safe.
func Fingerprint(r *Request) string {
	h := sha256.New()

	writeField(h, r.Package)
	writeField(h, r.CanonicalVersion())
	writeField(h, strings.Join(r.CanonicalFeatures(), "|"))
	writeField(h, r.CanonicalTarget())
	writeField(h, r.CanonicalToolchain())
	writeField(h, r.CanonicalProfile())

	return hex.EncodeToString(h.Sum(nil))
}

func writeField(w io.Writer, field string) {
	io.WriteString(w, field)
	// NUL keeps adjacent fields from gluing into ambiguous byte runs
	w.Write([]byte{0})
}
