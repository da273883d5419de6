package install

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func baseRequest() *Request {
	return &Request{
		Package:         "cargo-web",
		VersionReq:      "^0.6",
		ResolvedVersion: "0.6.26",
		Features:        []string{"vendored", "cli"},
		DefaultFeatures: true,
		Target:          "x86_64-unknown-linux-gnu",
		Toolchain:       "stable",
		Profile:         "release",
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	r1 := baseRequest()
	r2 := baseRequest()

	assert.Equal(t, Fingerprint(r1), Fingerprint(r2))
	assert.Len(t, Fingerprint(r1), 64, "fingerprint is hex sha256")
}

func TestFingerprint_FeatureOrderIrrelevant(t *testing.T) {
	r1 := baseRequest()
	r2 := baseRequest()
	r2.Features = []string{"cli", "vendored"} // reversed

	assert.Equal(t, Fingerprint(r1), Fingerprint(r2), "feature order must not affect the key")
}

func TestFingerprint_RequirementStringIrrelevantOnceResolved(t *testing.T) {
	r1 := baseRequest()
	r2 := baseRequest()
	r2.VersionReq = ">=0.6, <0.7" // different constraint, same resolution

	assert.Equal(t, Fingerprint(r1), Fingerprint(r2))
}

func TestFingerprint_Distinctness(t *testing.T) {
	base := Fingerprint(baseRequest())

	tests := []struct {
		name   string
		mutate func(r *Request)
	}{
		{"resolved version", func(r *Request) { r.ResolvedVersion = "0.6.25" }},
		{"extra feature", func(r *Request) { r.Features = append(r.Features, "tls") }},
		{"dropped feature", func(r *Request) { r.Features = r.Features[:1] }},
		{"default features off", func(r *Request) { r.DefaultFeatures = false }},
		{"target", func(r *Request) { r.Target = "aarch64-unknown-linux-gnu" }},
		{"toolchain", func(r *Request) { r.Toolchain = "nightly" }},
		{"profile", func(r *Request) { r.Profile = "debug" }},
		{"package", func(r *Request) { r.Package = "cargo-webb" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := baseRequest()
			tt.mutate(r)
			assert.NotEqual(t, base, Fingerprint(r))
		})
	}
}

func TestFingerprint_DefaultTargetIsCanonical(t *testing.T) {
	r1 := baseRequest()
	r1.Target = ""
	r2 := baseRequest()
	r2.Target = HostTriple()

	assert.Equal(t, Fingerprint(r1), Fingerprint(r2),
		"empty target must canonicalize to the host triple, not a distinct key")
}

func TestFingerprint_FieldsDoNotGlue(t *testing.T) {
	r1 := baseRequest()
	r1.Package = "ab"
	r1.ResolvedVersion = "c1.2.3"
	r2 := baseRequest()
	r2.Package = "abc"
	r2.ResolvedVersion = "1.2.3"

	assert.NotEqual(t, Fingerprint(r1), Fingerprint(r2))
}
