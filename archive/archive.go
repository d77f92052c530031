// Package archive implements the in-memory Archive spec §3/§4.3
// describe (a map from ArchiveKey to an insertion-ordered queue of
// backlink paths) and its bit-exact on-disk codec. Grounded on
// original_source/src/lib/archive.cc's insert/commit/remove and
// __for_each_pair_in_archive_file, translated from Genode's
// Dictionary+Fifo pair into an ordinary Go map of slices — Go's map
// iteration order is undefined, so Archive tracks key insertion order
// separately to keep Encode deterministic (spec §5a: "the resulting
// archive body lists entries in insertion order").
package archive

import (
	"errors"
	"fmt"
)

// PathWidth bounds a BacklinkPath's on-disk width: the fixed-width,
// null-padded string field spec §3/§6 describe for each archive body
// entry. A minted path is a generation name, snapshot/, one "ext/" per
// overflow level and a filename of up to 8 hex digits, which leaves
// room for about fifty nested ext/ levels; Insert rejects a longer
// path with ErrPathTooLong.
const PathWidth = 256

// Version is the archive file format version, sharing the backlink
// package's VERSION constant conceptually but tracked separately since
// the two formats could diverge.
const Version uint8 = 2

const (
	versionSize = 1
	hashSize    = 4
	countSize   = 8
	headerSize  = versionSize + hashSize + countSize
	keySize     = 8
	entrySize   = keySize + PathWidth
)

var (
	// ErrPathTooLong is returned by Insert if a path doesn't fit
	// PathWidth once null-terminated, and so also by Decode for a path
	// field with no null terminator.
	ErrPathTooLong = errors.New("archive: backlink path exceeds fixed width")
	// ErrMalformed is returned by Decode for a structurally invalid
	// input (short header, body length not matching the entry count).
	ErrMalformed = errors.New("archive: malformed archive body")
	// ErrVersionMismatch is returned by Decode when the stored version
	// doesn't match Version.
	ErrVersionMismatch = errors.New("archive: version mismatch")
	// ErrHashMismatch is returned by Decode when the stored hash
	// doesn't match the hash of the body.
	ErrHashMismatch = errors.New("archive: hash mismatch")
)

// Entry is one {key, path} pair as it appears in archive body order.
type Entry struct {
	Key  uint64
	Path string
}

// Archive is the in-memory mapping from ArchiveKey to its
// insertion-ordered redundancy chain of backlink paths. The zero value
// is not usable; use New.
type Archive struct {
	paths map[uint64][]string
	// order preserves the sequence keys were first inserted in, since
	// map iteration order is not insertion order in Go (it is in the
	// teacher's Genode::Dictionary, which is what archive.cc's
	// for_each relies on for the on-disk layout).
	order []uint64
	seen  map[uint64]bool
}

// New returns an empty Archive.
func New() *Archive {
	return &Archive{paths: make(map[uint64][]string), seen: make(map[uint64]bool)}
}

// Insert enqueues path at the tail of key's redundancy chain (spec
// §4.1 step 5: "Enqueue the new path at the tail of archive[key]").
func (a *Archive) Insert(key uint64, path string) error {
	if len(path)+1 > PathWidth {
		return fmt.Errorf("%w: %q (%d bytes)", ErrPathTooLong, path, len(path))
	}
	if !a.seen[key] {
		a.seen[key] = true
		a.order = append(a.order, key)
	}
	a.paths[key] = append(a.paths[key], path)
	return nil
}

// Remove deletes every queued path for key (archive.cc's remove:
// destroys every Backlink in the entry's queue, then the entry
// itself). It is a no-op if key is absent.
func (a *Archive) Remove(key uint64) {
	if !a.seen[key] {
		return
	}
	delete(a.paths, key)
	delete(a.seen, key)
	for i, k := range a.order {
		if k == key {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// Head returns the most recently enqueued path for key — "considered
// authoritative for reads" per spec §3 — and whether key is present.
func (a *Archive) Head(key uint64) (string, bool) {
	q := a.paths[key]
	if len(q) == 0 {
		return "", false
	}
	return q[len(q)-1], true
}

// Queue returns key's full redundancy chain in insertion order. The
// returned slice must not be mutated by the caller.
func (a *Archive) Queue(key uint64) []string {
	return a.paths[key]
}

// ContainsPath reports whether path appears anywhere in the archive,
// under any key (archive.cc's archive_file_contains_backlink — used
// by purge_zombies to decide whether an on-disk backlink is still
// reachable from some valid generation).
func (a *Archive) ContainsPath(path string) bool {
	for _, q := range a.paths {
		for _, p := range q {
			if p == path {
				return true
			}
		}
	}
	return false
}

// Keys returns every key currently present, in insertion order.
func (a *Archive) Keys() []uint64 {
	out := make([]uint64, len(a.order))
	copy(out, a.order)
	return out
}

// Entries flattens the archive into body order: outer for-each over
// keys (insertion order), inner for-each over each key's queue (spec
// §4.2 step 2: "ordering: outer for-each over keys, inner for-each
// over queued paths").
func (a *Archive) Entries() []Entry {
	var out []Entry
	for _, key := range a.order {
		for _, path := range a.paths[key] {
			out = append(out, Entry{Key: key, Path: path})
		}
	}
	return out
}

// Len returns the total number of {key, path} entries across all
// keys, matching archive.cc's total_backlinks counter.
func (a *Archive) Len() int {
	n := 0
	for _, q := range a.paths {
		n += len(q)
	}
	return n
}
