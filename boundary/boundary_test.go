package boundary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ottergen/snapper/config"
	"github.com/ottergen/snapper/engine"
	"github.com/ottergen/snapper/vfs"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func newTestBoundary(t *testing.T) *Boundary {
	t.Helper()
	cfg := config.Defaults()
	cfg.BufSize = 64
	eng, err := engine.New(vfs.NewMem(), cfg, fixedClock{time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	return New(eng, cfg.BufSize)
}

func TestBoundaryLifecycle(t *testing.T) {
	b := newTestBoundary(t)

	require.NoError(t, b.InitSnapshot())
	require.NoError(t, b.TakeSnapshot(1, []byte("hello")))
	require.NoError(t, b.CommitSnapshot())
	require.Equal(t, engine.Dormant, b.State())

	require.NoError(t, b.OpenGeneration(""))
	out := make([]byte, 5)
	n, err := b.Restore(1, out)
	require.NoError(t, err)
	require.Equal(t, "hello", string(out[:n]))
	require.NoError(t, b.CloseGeneration())
}

func TestTakeSnapshotRejectsOversizedPayload(t *testing.T) {
	b := newTestBoundary(t)
	require.NoError(t, b.InitSnapshot())
	oversized := make([]byte, 1024)
	require.Error(t, b.TakeSnapshot(1, oversized))
}
