package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_RecordAndList(t *testing.T) {
	root := t.TempDir()

	idx, err := OpenIndex(root)
	require.NoError(t, err)

	entries := []*Entry{
		{Fingerprint: "bbb", Package: "wasm-bindgen-cli", ResolvedVersion: "0.2.92", Bins: []string{"wasm-bindgen"}},
		{Fingerprint: "aaa", Package: "cargo-web", ResolvedVersion: "0.6.26", Bins: []string{"cargo-web"}},
		{Fingerprint: "ccc", Package: "cargo-web", ResolvedVersion: "0.5.9", Bins: []string{"cargo-web"}},
	}
	for _, e := range entries {
		e.CreatedAt = time.Now().UTC()
		require.NoError(t, idx.Record(e))
	}
	require.NoError(t, idx.Close())

	// reopen to prove persistence
	idx, err = OpenIndex(root)
	require.NoError(t, err)
	defer idx.Close()

	listed, err := idx.List()
	require.NoError(t, err)
	require.Len(t, listed, 3)

	assert.Equal(t, "cargo-web", listed[0].Package)
	assert.Equal(t, "0.5.9", listed[0].ResolvedVersion)
	assert.Equal(t, "cargo-web", listed[1].Package)
	assert.Equal(t, "0.6.26", listed[1].ResolvedVersion)
	assert.Equal(t, "wasm-bindgen-cli", listed[2].Package)

	count, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestIndex_RecordOverwritesSameFingerprint(t *testing.T) {
	idx, err := OpenIndex(t.TempDir())
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Record(&Entry{Fingerprint: "aaa", Package: "cargo-web", ResolvedVersion: "0.6.25"}))
	require.NoError(t, idx.Record(&Entry{Fingerprint: "aaa", Package: "cargo-web", ResolvedVersion: "0.6.26"}))

	listed, err := idx.List()
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "0.6.26", listed[0].ResolvedVersion)
}
