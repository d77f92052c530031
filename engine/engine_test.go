package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ottergen/snapper/backlink"
	"github.com/ottergen/snapper/config"
	"github.com/ottergen/snapper/gendir"
	"github.com/ottergen/snapper/vfs"
)

// steppingClock advances by one second on every call, guaranteeing
// each minted generation directory gets a distinct, increasing name
// even when a test drives many InitSnapshot/CommitSnapshot cycles
// back to back.
type steppingClock struct{ t time.Time }

func (c *steppingClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestEngine(t *testing.T, cfg config.Config) (*Engine, *steppingClock) {
	t.Helper()
	clk := &steppingClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	e, err := New(vfs.NewMem(), cfg, clk)
	require.NoError(t, err)
	return e, clk
}

func takeOneSnapshot(t *testing.T, e *Engine, key uint64, payload []byte) {
	t.Helper()
	require.NoError(t, e.InitSnapshot())
	require.NoError(t, e.TakeSnapshot(key, payload))
	require.NoError(t, e.CommitSnapshot())
}

func TestLifecycleInitTakeCommit(t *testing.T) {
	e, _ := newTestEngine(t, config.Defaults())
	takeOneSnapshot(t, e, 1, []byte("hello"))

	require.Equal(t, Dormant, e.State())
}

func TestOperationWrongStateReturnsInvalidState(t *testing.T) {
	e, _ := newTestEngine(t, config.Defaults())
	require.Error(t, e.TakeSnapshot(1, []byte("x")))
	require.Error(t, e.CommitSnapshot())
	_, err := e.Restore(1, make([]byte, 8))
	require.Error(t, err)
}

func TestCommitRejectsEmptyArchive(t *testing.T) {
	e, _ := newTestEngine(t, config.Defaults())
	require.NoError(t, e.InitSnapshot())
	require.Error(t, e.CommitSnapshot())
	require.Equal(t, Dormant, e.State())
}

func TestRestoreRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t, config.Defaults())
	payload := []byte("the quick brown fox")
	takeOneSnapshot(t, e, 42, payload)

	require.NoError(t, e.OpenGeneration(""))
	buf := make([]byte, len(payload))
	n, err := e.Restore(42, buf)
	require.NoError(t, err)
	require.Equal(t, payload, buf[:n])
	require.NoError(t, e.CloseGeneration())
	require.Equal(t, Dormant, e.State())
}

func TestRestoreNoMatchesForUnknownKey(t *testing.T) {
	e, _ := newTestEngine(t, config.Defaults())
	takeOneSnapshot(t, e, 1, []byte("a"))

	require.NoError(t, e.OpenGeneration(""))
	_, err := e.Restore(999, make([]byte, 8))
	require.ErrorIs(t, err, ErrNoMatches)
}

// TestTakeSnapshotSharesBacklinkWithinRedundancy drives spec scenarios
// S1-S3: repeating the same (key, payload) across generations shares
// one backlink, bumping its RefCount by exactly one per committing
// generation, until redundancy is exhausted and a second backlink is
// created.
func TestTakeSnapshotSharesBacklinkWithinRedundancy(t *testing.T) {
	cfg := config.Defaults()
	cfg.Redundancy = 3
	e, _ := newTestEngine(t, cfg)

	payload := []byte("shared payload")
	var firstPath string

	for i := 1; i <= 3; i++ {
		takeOneSnapshot(t, e, 1, payload)
		head, ok := e.arc.Head(1)
		require.True(t, ok)
		if i == 1 {
			firstPath = head
		} else {
			require.Equal(t, firstPath, head, "generation %d should still share the first backlink", i)
		}

		bl := backlink.New(e.fs, e.hasher, head)
		rc, err := bl.ReadRefCount()
		require.NoError(t, err)
		require.Equal(t, uint8(i), rc, "RefCount should advance by exactly one per committing generation")
	}

	// Redundancy (3) is now exhausted: the next commit of the same
	// (key, payload) must create a second, distinct backlink.
	takeOneSnapshot(t, e, 1, payload)
	head, ok := e.arc.Head(1)
	require.True(t, ok)
	require.NotEqual(t, firstPath, head, "exhausted redundancy should force a new backlink")
}

// TestTakeSnapshotEvictsQueueOnInvalidHead drives spec §4.1 step 3's
// third key-present outcome: when the head backlink fails validation,
// the whole queue for that key is evicted rather than appended to.
func TestTakeSnapshotEvictsQueueOnInvalidHead(t *testing.T) {
	e, _ := newTestEngine(t, config.Defaults())
	takeOneSnapshot(t, e, 1, []byte("original"))

	head, ok := e.arc.Head(1)
	require.True(t, ok)

	// Corrupt the on-disk backlink so IsValid fails on the next lookup.
	w, err := e.fs.OpenAppend(head)
	require.NoError(t, err)
	_, err = w.Write([]byte{0xff, 0xff, 0xff, 0xff, 0xff})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	takeOneSnapshot(t, e, 1, []byte("replacement"))

	queue := e.arc.Queue(1)
	require.Len(t, queue, 1, "an invalid head should be evicted, not appended alongside")
	require.NotEqual(t, head, queue[0])
}

func TestPurgeDeniedBelowMinSnapshots(t *testing.T) {
	cfg := config.Defaults()
	cfg.MinSnapshots = 1
	e, _ := newTestEngine(t, cfg)
	takeOneSnapshot(t, e, 1, []byte("a"))

	require.ErrorIs(t, e.Purge(""), ErrPurgeDenied)
}

func TestPurgeReclaimsOldestGeneration(t *testing.T) {
	e, _ := newTestEngine(t, config.Defaults())
	takeOneSnapshot(t, e, 1, []byte("a"))
	takeOneSnapshot(t, e, 2, []byte("b"))

	require.NoError(t, e.Purge(""))
	valid, err := e.validGenerations()
	require.NoError(t, err)
	require.Len(t, valid, 1)
}

func TestPurgeExpiredEnforcesMaxSnapshots(t *testing.T) {
	cfg := config.Defaults()
	cfg.MaxSnapshots = 1
	e, _ := newTestEngine(t, cfg)

	takeOneSnapshot(t, e, 1, []byte("a")) // triggers PurgeExpired internally, no-op at count 1
	takeOneSnapshot(t, e, 2, []byte("b")) // now over quota, PurgeExpired should reclaim the first

	valid, err := e.validGenerations()
	require.NoError(t, err)
	require.Len(t, valid, 1)
}

func TestPurgeZombiesReclaimsUnreferencedBacklinks(t *testing.T) {
	e, _ := newTestEngine(t, config.Defaults())
	require.NoError(t, e.InitSnapshot())
	require.NoError(t, e.TakeSnapshot(1, []byte("orphan")))

	// Simulate a crash before commit_snapshot: the generation directory
	// is left behind with a snapshot/ subtree but no archive file.
	unfinished := e.gen.Name
	e.mu.Lock()
	e.state = Dormant
	e.mu.Unlock()

	require.NoError(t, e.PurgeZombies())
	files, err := gendir.WalkFiles(e.fs, gendir.Open(e.fs, unfinished).SnapshotPath())
	require.NoError(t, err)
	require.Empty(t, files)
}
