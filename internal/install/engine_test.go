package install

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/localbin/localbin/internal/cache"
	"github.com/localbin/localbin/internal/linker"
)

// stubBuilder stands in for cargo: it drops a fake binary into the staging
// root and counts invocations
type stubBuilder struct {
	mu    sync.Mutex
	calls int
	fail  bool
	delay time.Duration
}

func (b *stubBuilder) Build(ctx context.Context, req *Request, stagingRoot string) error {
	b.mu.Lock()
	b.calls++
	fail := b.fail
	b.mu.Unlock()

	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	if fail {
		return errors.New("compile error")
	}

	binDir := filepath.Join(stagingRoot, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(binDir, req.Package), []byte("binary for "+req.Package), 0o755)
}

func (b *stubBuilder) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func newTestEngine(t *testing.T, b Builder) (*Engine, *cache.Store, *logtest.Hook) {
	t.Helper()

	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	store, err := cache.New(t.TempDir(), log)
	require.NoError(t, err)

	return NewEngine(store, b, linker.New(log), log, time.Minute), store, hook
}

func testRequest(root string) *Request {
	return &Request{
		Package:         "cargo-web",
		VersionReq:      "^0.6",
		ResolvedVersion: "0.6.26",
		Strictness:      StrictnessUnlocked,
		Root:            root,
	}
}

func TestEngine_BuildThenReuse(t *testing.T) {
	b := &stubBuilder{}
	engine, _, _ := newTestEngine(t, b)
	req := testRequest(t.TempDir())

	res1, err := engine.Install(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res1.Rebuilt, "first call must build")
	assert.Equal(t, 1, b.callCount())

	res2, err := engine.Install(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res2.Rebuilt, "second call must be a pure cache hit")
	assert.Equal(t, 1, b.callCount(), "builder must not run again")
	assert.Equal(t, res1.Fingerprint, res2.Fingerprint)
}

func TestEngine_CrossProjectReuse(t *testing.T) {
	b := &stubBuilder{}
	engine, _, _ := newTestEngine(t, b)

	projectA := t.TempDir()
	projectB := t.TempDir()

	resA, err := engine.Install(context.Background(), testRequest(projectA))
	require.NoError(t, err)

	resB, err := engine.Install(context.Background(), testRequest(projectB))
	require.NoError(t, err)

	assert.Equal(t, 1, b.callCount(), "second project must perform zero rebuild work")

	require.Len(t, resA.Links, 1)
	require.Len(t, resB.Links, 1)
	assert.Equal(t, filepath.Join(projectA, "bin", "cargo-web"), resA.Links[0].Path)
	assert.Equal(t, filepath.Join(projectB, "bin", "cargo-web"), resB.Links[0].Path)
	assert.Equal(t, resA.Links[0].Target, resB.Links[0].Target,
		"both projects must reference the same cached artifact")
}

func TestEngine_RequirementDifferenceStillReuses(t *testing.T) {
	b := &stubBuilder{}
	engine, _, _ := newTestEngine(t, b)

	req1 := testRequest(t.TempDir())
	req2 := testRequest(t.TempDir())
	req2.VersionReq = ">=0.6" // different constraint, same resolved version

	_, err := engine.Install(context.Background(), req1)
	require.NoError(t, err)
	_, err = engine.Install(context.Background(), req2)
	require.NoError(t, err)

	assert.Equal(t, 1, b.callCount())
}

func TestEngine_LockConflict_PinMismatch(t *testing.T) {
	b := &stubBuilder{}
	engine, _, _ := newTestEngine(t, b)

	req := testRequest(t.TempDir())
	req.Strictness = StrictnessLocked
	req.VersionReq = "^0.5"
	req.PinnedVersion = "0.6.26"
	req.ResolvedVersion = "0.5.9"

	_, err := engine.Install(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockConflict)
	assert.Equal(t, 0, b.callCount(), "conflict must surface before any build attempt")
}

func TestEngine_LockConflict_ExactRequestContradictsPin(t *testing.T) {
	b := &stubBuilder{}
	engine, _, _ := newTestEngine(t, b)

	// no external resolution ran, so the pin would win the canonical
	// version; the user's exact request still contradicts it
	req := testRequest(t.TempDir())
	req.Strictness = StrictnessLocked
	req.VersionReq = "0.5.0"
	req.PinnedVersion = "0.6.26"
	req.ResolvedVersion = ""

	_, err := engine.Install(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockConflict)
	assert.Equal(t, 0, b.callCount(), "conflict must surface before any build attempt")
}

func TestEngine_LockConflict_NoExactVersion(t *testing.T) {
	b := &stubBuilder{}
	engine, _, _ := newTestEngine(t, b)

	req := testRequest(t.TempDir())
	req.Strictness = StrictnessLocked
	req.ResolvedVersion = ""
	req.PinnedVersion = ""

	_, err := engine.Install(context.Background(), req)
	assert.ErrorIs(t, err, ErrLockConflict)
	assert.Equal(t, 0, b.callCount())
}

func TestEngine_BuildFailure(t *testing.T) {
	b := &stubBuilder{fail: true}
	engine, store, _ := newTestEngine(t, b)
	req := testRequest(t.TempDir())

	_, err := engine.Install(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBuildFailed)
	assert.Contains(t, err.Error(), "compile error", "builder diagnostic must surface verbatim")

	entry, lookupErr := store.Lookup(Fingerprint(req))
	require.NoError(t, lookupErr)
	assert.Nil(t, entry, "failed build must leave no cache entry")

	// the slot must be buildable again afterwards
	b.mu.Lock()
	b.fail = false
	b.mu.Unlock()

	res, err := engine.Install(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Rebuilt)
}

func TestEngine_ConcurrentRequestsBuildOnce(t *testing.T) {
	b := &stubBuilder{delay: 50 * time.Millisecond}
	engine, _, _ := newTestEngine(t, b)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		root := t.TempDir()
		g.Go(func() error {
			res, err := engine.Install(context.Background(), testRequest(root))
			if err != nil {
				return err
			}
			if len(res.Links) != 1 {
				return errors.New("expected one materialized binary")
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.Equal(t, 1, b.callCount(), "N concurrent requests must trigger exactly one build")
}

func TestEngine_LockTimeoutWhileBuildHeldElsewhere(t *testing.T) {
	b := &stubBuilder{}
	log, _ := logtest.NewNullLogger()
	store, err := cache.New(t.TempDir(), log)
	require.NoError(t, err)

	engine := NewEngine(store, b, linker.New(log), log, 250*time.Millisecond)
	req := testRequest(t.TempDir())

	// simulate another process mid-build by holding the slot's lock
	fl := flock.New(filepath.Join(store.Root(), ".locks", Fingerprint(req)+".lock"))
	locked, err := fl.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer fl.Unlock()

	_, err = engine.Install(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Equal(t, 0, b.callCount())
}

func TestEngine_WarnsWhenStrictnessUnspecified(t *testing.T) {
	b := &stubBuilder{}
	engine, _, hook := newTestEngine(t, b)

	req := testRequest(t.TempDir())
	req.Strictness = StrictnessUnspecified

	_, err := engine.Install(context.Background(), req)
	require.NoError(t, err)

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message != "" {
			warned = true
		}
	}
	assert.True(t, warned, "unspecified strictness must warn but still proceed")
}
