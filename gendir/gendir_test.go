package gendir

import (
	"testing"
	"time"

	"github.com/ottergen/snapper/vfs"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func TestNewMintsGenerationAndSnapshotDir(t *testing.T) {
	fs := vfs.NewMem()
	now := fixedClock{time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}

	d, err := New(fs, now)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !fs.Exists(d.SnapshotPath()) {
		t.Fatalf("expected snapshot dir %s to exist", d.SnapshotPath())
	}
	if d.HasArchive() {
		t.Fatalf("freshly minted generation should have no archive")
	}
}

func TestListSortsLexicographically(t *testing.T) {
	fs := vfs.NewMem()
	for _, name := range []string{"2026-01-03 00:00:00", "2026-01-01 00:00:00", "2026-01-02 00:00:00"} {
		fs.MkdirAll(name + "/" + SnapshotDirName)
	}
	got, err := List(fs)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"2026-01-01 00:00:00", "2026-01-02 00:00:00", "2026-01-03 00:00:00"}
	if len(got) != len(want) {
		t.Fatalf("List: have %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List[%d]: have %q, want %q", i, got[i], want[i])
		}
	}
}

func TestOverflowOpensExtAtThreshold(t *testing.T) {
	fs := vfs.NewMem()
	fs.MkdirAll("gen/snapshot")
	o := NewOverflow(fs, "gen/snapshot", 2)

	if o.Dir() != "gen/snapshot" {
		t.Fatalf("initial Dir: have %q, want gen/snapshot", o.Dir())
	}
	dir, name, err := o.Place()
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if dir != "gen/snapshot" || name != "1" {
		t.Fatalf("Place #1: have (%q, %q), want (gen/snapshot, 1)", dir, name)
	}
	dir, name, err = o.Place()
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if dir != "gen/snapshot/ext" || name != "0" {
		t.Fatalf("Place #2 (threshold reached): have (%q, %q), want (gen/snapshot/ext, 0)", dir, name)
	}
	if !fs.Exists("gen/snapshot/ext") {
		t.Fatalf("expected ext/ directory to have been created")
	}
}

func TestOverflowDisabledAtZeroThreshold(t *testing.T) {
	fs := vfs.NewMem()
	fs.MkdirAll("gen/snapshot")
	o := NewOverflow(fs, "gen/snapshot", 0)
	for i := 0; i < 500; i++ {
		if _, _, err := o.Place(); err != nil {
			t.Fatalf("Place: %v", err)
		}
	}
	if o.Dir() != "gen/snapshot" {
		t.Fatalf("Dir with threshold=0: have %q, want unchanged", o.Dir())
	}
}

// Spec §4.1's purge bullet: a single backlink's cascade-delete walks
// "up to (but not including) the engine root" — which, since the
// generation directory itself is unlinked separately as purge's final
// step, means an empty generation directory CAN be swept up by this
// same routine if every backlink and the snapshot/ subtree under it
// are already gone. The engine root itself (represented as "" in a
// FileSystem already scoped to it) is the only thing cascade-delete
// never touches.
func TestCascadeDeleteStopsAtEngineRoot(t *testing.T) {
	fs := vfs.NewMem()
	fs.MkdirAll("gen/snapshot/ext")
	w, _ := fs.Create("gen/snapshot/ext/0000000001")
	w.Close()

	if err := CascadeDelete(fs, "gen/snapshot/ext/0000000001", ""); err != nil {
		t.Fatalf("CascadeDelete: %v", err)
	}
	if fs.Exists("gen/snapshot/ext/0000000001") {
		t.Fatalf("file should be removed")
	}
	if fs.Exists("gen/snapshot/ext") {
		t.Fatalf("now-empty ext dir should be removed")
	}
	if fs.Exists("gen/snapshot") {
		t.Fatalf("now-empty snapshot dir should be removed")
	}
	if fs.Exists("gen") {
		t.Fatalf("now-empty generation dir should also be swept up, since stopAt is the engine root")
	}
}

// Cascade-delete of a single backlink inside a generation that's
// still otherwise populated (e.g. mid-purge with other keys still
// referenced) must stop at the generation boundary when callers pass
// it explicitly as stopAt, leaving the generation directory itself
// untouched even though the routine walked that far up.
func TestCascadeDeleteRespectsExplicitStopAt(t *testing.T) {
	fs := vfs.NewMem()
	fs.MkdirAll("gen/snapshot/ext")
	w, _ := fs.Create("gen/snapshot/ext/0000000001")
	w.Close()

	if err := CascadeDelete(fs, "gen/snapshot/ext/0000000001", "gen"); err != nil {
		t.Fatalf("CascadeDelete: %v", err)
	}
	if fs.Exists("gen/snapshot") {
		t.Fatalf("now-empty snapshot dir should be removed")
	}
	if !fs.Exists("gen") {
		t.Fatalf("gen (explicit stopAt) must survive")
	}
}

func TestCascadeDeleteStopsWhenDirectoryNonEmpty(t *testing.T) {
	fs := vfs.NewMem()
	fs.MkdirAll("gen/snapshot")
	w1, _ := fs.Create("gen/snapshot/a")
	w1.Close()
	w2, _ := fs.Create("gen/snapshot/b")
	w2.Close()

	if err := CascadeDelete(fs, "gen/snapshot/a", ""); err != nil {
		t.Fatalf("CascadeDelete: %v", err)
	}
	if fs.Exists("gen/snapshot/a") {
		t.Fatalf("gen/snapshot/a should be removed")
	}
	if !fs.Exists("gen/snapshot/b") {
		t.Fatalf("gen/snapshot/b should survive")
	}
	if !fs.Exists("gen/snapshot") {
		t.Fatalf("gen/snapshot should survive since b is still in it")
	}
}
