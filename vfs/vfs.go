// Package vfs is the filesystem abstraction spec §1/§6 describe only
// through its interface ("directory, read-only file, append/new-file,
// unlink, stat, rename") and leaves as an external collaborator. This
// package defines that interface plus two concrete realizations: osFS
// (the real filesystem, used in production) and memFS (an in-memory
// test double), the same relationship the teacher's ethdb.KeyValueStore
// interface has to its leveldb/relaydb concrete stores.
package vfs

import (
	"io"
	"time"
)

// FileInfo is the subset of os.FileInfo the engine needs.
type FileInfo struct {
	Name  string
	Size  int64
	IsDir bool
	ModTime time.Time
}

// ReadOnlyFile is a read-only, random-access handle on an existing
// file. Implementations may back it with a memory mapping (see
// osfs.go) so payload reads are zero-copy.
type ReadOnlyFile interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// Appender is a write-only handle opened in append mode; every Write
// call is atomic from the caller's perspective (spec §4.4: "This is an
// atomic rewrite from the caller's perspective").
type Appender interface {
	io.Writer
	io.Closer
}

// FileSystem is the directory/file operations the engine needs,
// scoped under one root. Paths passed to every method are
// forward-slash-delimited and relative to that root, per spec §3.
type FileSystem interface {
	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error
	// ReadDir lists the immediate children of dir.
	ReadDir(dir string) ([]FileInfo, error)
	// Stat returns info about path, or an error if it doesn't exist.
	Stat(path string) (FileInfo, error)
	// Exists is a convenience wrapper around Stat.
	Exists(path string) bool

	// OpenRead opens an existing file read-only.
	OpenRead(path string) (ReadOnlyFile, error)
	// Create creates a new file, failing if it already exists, and
	// returns it open for appending.
	Create(path string) (Appender, error)
	// OpenAppend opens path for writing, truncating it to zero length
	// first (and creating it if absent); backlink.WriteRefCount uses it
	// to rewrite the whole record in place.
	OpenAppend(path string) (Appender, error)

	// Remove unlinks a file or an empty directory.
	Remove(path string) error
	// RemoveAll recursively removes path and everything under it.
	RemoveAll(path string) error

	// Rename moves oldpath to newpath.
	Rename(oldpath, newpath string) error
}
