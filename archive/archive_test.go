package archive

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ottergen/snapper/hashutil"
)

func newHasher(t *testing.T) hashutil.Hasher {
	t.Helper()
	h, err := hashutil.New(hashutil.XXH32)
	if err != nil {
		t.Fatalf("hashutil.New: %v", err)
	}
	return h
}

func TestInsertHeadIsMostRecent(t *testing.T) {
	a := New()
	if err := a.Insert(1, "gen/snapshot/0000000001"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := a.Insert(1, "gen/snapshot/0000000005"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	head, ok := a.Head(1)
	if !ok || head != "gen/snapshot/0000000005" {
		t.Fatalf("Head: have (%q, %v), want (0000000005, true)", head, ok)
	}
	if got := a.Queue(1); len(got) != 2 {
		t.Fatalf("Queue: have %d entries, want 2", len(got))
	}
}

func TestRemoveDeletesWholeChain(t *testing.T) {
	a := New()
	a.Insert(1, "a")
	a.Insert(1, "b")
	a.Insert(2, "c")
	a.Remove(1)
	if _, ok := a.Head(1); ok {
		t.Fatalf("Head(1) after Remove: expected absent")
	}
	if got := a.Len(); got != 1 {
		t.Fatalf("Len after Remove: have %d, want 1", got)
	}
	for _, k := range a.Keys() {
		if k == 1 {
			t.Fatalf("Keys still contains removed key 1")
		}
	}
}

func TestContainsPath(t *testing.T) {
	a := New()
	a.Insert(1, "x/y/z")
	if !a.ContainsPath("x/y/z") {
		t.Fatalf("ContainsPath: want true")
	}
	if a.ContainsPath("nope") {
		t.Fatalf("ContainsPath: want false")
	}
}

func TestInsertRejectsOverlongPath(t *testing.T) {
	a := New()
	long := make([]byte, PathWidth)
	for i := range long {
		long[i] = 'a'
	}
	if err := a.Insert(1, string(long)); err == nil {
		t.Fatalf("Insert: expected error for path at exactly PathWidth bytes (no room for NUL)")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	hasher := newHasher(t)
	a := New()
	a.Insert(1, "gen/snapshot/0000000001")
	a.Insert(2, "gen/snapshot/0000000002")
	a.Insert(1, "gen/snapshot/ext/0000000003")

	raw := Encode(a, hasher)
	decoded, err := Decode(raw, hasher)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if diff := cmp.Diff(a.Entries(), decoded.Entries(), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("round trip mismatch (-want +have):\n%s", diff)
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	hasher := newHasher(t)
	a := New()
	a.Insert(1, "p")
	raw := Encode(a, hasher)
	raw[0] = 0xFF
	if _, err := Decode(raw, hasher); err != ErrVersionMismatch {
		t.Fatalf("Decode: have %v, want ErrVersionMismatch", err)
	}
}

func TestDecodeRejectsHashMismatch(t *testing.T) {
	hasher := newHasher(t)
	a := New()
	a.Insert(1, "p")
	raw := Encode(a, hasher)
	raw[len(raw)-1] ^= 0xFF
	if _, err := Decode(raw, hasher); err != ErrHashMismatch {
		t.Fatalf("Decode: have %v, want ErrHashMismatch", err)
	}
}

func TestDecodeRejectsTruncatedBody(t *testing.T) {
	hasher := newHasher(t)
	a := New()
	a.Insert(1, "p")
	raw := Encode(a, hasher)
	if _, err := Decode(raw[:len(raw)-1], hasher); err == nil {
		t.Fatalf("Decode: expected error for truncated body")
	}
}

func TestEntriesOrderIsInsertionOrder(t *testing.T) {
	a := New()
	a.Insert(3, "c")
	a.Insert(1, "a")
	a.Insert(3, "c2")
	want := []Entry{{Key: 3, Path: "c"}, {Key: 3, Path: "c2"}, {Key: 1, Path: "a"}}
	if diff := cmp.Diff(want, a.Entries()); diff != "" {
		t.Fatalf("Entries order mismatch (-want +have):\n%s", diff)
	}
}
