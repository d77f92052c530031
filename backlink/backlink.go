// Package backlink implements the on-disk backlink file spec §3/§4.4
// describe: a single file holding {version, hash, refcount, payload},
// read and updated as a unit. The binary layout is fixed-width and
// hand-marshaled with encoding/binary rather than a self-describing
// codec like RLP, the same choice freezer_table.go makes for its own
// fixed-width index records (spec §3's layout is bit-exact, which RLP
// can't guarantee).
package backlink

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ottergen/snapper/hashutil"
	"github.com/ottergen/snapper/metrics"
	"github.com/ottergen/snapper/vfs"
)

// Version is the engine's compiled format version. A backlink whose
// stored version doesn't match this is treated as a new-writer target
// (spec §4.4 "Creating a new backlink") rather than repaired in place.
const Version uint8 = 2

// Header sizes, in bytes, matching snapper.h's VERSION (1 byte) and
// the spec's "fixed-width integer (4 bytes)" hash, and the source's
// uint8_t RC.
const (
	versionSize  = 1
	hashSize     = 4
	refcountSize = 1
	headerSize   = versionSize + hashSize + refcountSize
)

// Errors mirror the source's Backlink::Error enum (spec §4.4): each
// read/write operation reports one of a small closed set of typed
// failures rather than a bare error string.
var (
	ErrOpen              = errors.New("backlink: open failed")
	ErrMissingField      = errors.New("backlink: missing field")
	ErrStats             = errors.New("backlink: stat failed")
	ErrInvalidVersion    = errors.New("backlink: invalid version")
	ErrInvalidIntegrity  = errors.New("backlink: invalid integrity")
	ErrInsufficientSize  = errors.New("backlink: destination buffer too small")
	ErrWrite             = errors.New("backlink: write failed")
)

var (
	readMeter  = metrics.NewRegisteredMeter("snapper/backlink/read")
	writeMeter = metrics.NewRegisteredMeter("snapper/backlink/write")
)

// Backlink is a handle on one backlink file at Path, relative to the
// engine root, read and written through fs.
type Backlink struct {
	fs     vfs.FileSystem
	hasher hashutil.Hasher
	Path   string
}

// New returns a handle on the backlink at path. It does not touch the
// filesystem; path need not yet exist (Write creates it).
func New(fs vfs.FileSystem, hasher hashutil.Hasher, path string) *Backlink {
	return &Backlink{fs: fs, hasher: hasher, Path: path}
}

func (b *Backlink) readHeader() (version uint8, hash uint32, refcount uint8, size int64, err error) {
	if !b.fs.Exists(b.Path) {
		return 0, 0, 0, 0, fmt.Errorf("%w: %s", ErrOpen, b.Path)
	}
	f, err := b.fs.OpenRead(b.Path)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("%w: %s: %v", ErrOpen, b.Path, err)
	}
	defer f.Close()

	if f.Size() < headerSize {
		return 0, 0, 0, 0, fmt.Errorf("%w: %s", ErrMissingField, b.Path)
	}
	buf := make([]byte, headerSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("%w: %s: %v", ErrMissingField, b.Path, err)
	}
	version = buf[0]
	hash = binary.LittleEndian.Uint32(buf[versionSize:])
	refcount = buf[versionSize+hashSize]
	size = f.Size() - headerSize
	readMeter.Mark(headerSize)
	return version, hash, refcount, size, nil
}

// ReadVersion reads just the version byte.
func (b *Backlink) ReadVersion() (uint8, error) {
	version, _, _, _, err := b.readHeader()
	return version, err
}

// ReadHash reads the stored payload hash.
func (b *Backlink) ReadHash() (uint32, error) {
	_, hash, _, _, err := b.readHeader()
	return hash, err
}

// ReadRefCount reads the current reference count.
func (b *Backlink) ReadRefCount() (uint8, error) {
	_, _, refcount, _, err := b.readHeader()
	return refcount, err
}

// ReadPayloadSize returns the payload length, excluding the header.
// It reports ErrInsufficientSize if the file has no payload at all
// (a zero-length payload is considered malformed, per the source's
// get_data_size returning InsufficientSizeErr on size == 0).
func (b *Backlink) ReadPayloadSize() (int64, error) {
	_, _, _, size, err := b.readHeader()
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, fmt.Errorf("%w: %s", ErrInsufficientSize, b.Path)
	}
	return size, nil
}

// ReadPayload copies the payload into buf, which must be at least as
// large as the stored payload (ReadPayloadSize). It does not validate
// version or hash; callers that need validated reads use IsValid plus
// ReadPayload, the way the source's get_data separates the integrity
// check from the raw byte copy.
func (b *Backlink) ReadPayload(buf []byte) (int, error) {
	size, err := b.ReadPayloadSize()
	if err != nil {
		return 0, err
	}
	if int64(len(buf)) < size {
		return 0, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrInsufficientSize, b.Path, size, len(buf))
	}
	f, err := b.fs.OpenRead(b.Path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrOpen, b.Path, err)
	}
	defer f.Close()
	n, err := f.ReadAt(buf[:size], headerSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMissingField, b.Path, err)
	}
	readMeter.Mark(int64(n))
	return n, nil
}

// IsValid reports whether the backlink's stored version matches
// Version and its stored hash matches expectedPayloadHash.
func (b *Backlink) IsValid(expectedPayloadHash uint32) bool {
	version, hash, _, _, err := b.readHeader()
	if err != nil {
		return false
	}
	return version == Version && hash == expectedPayloadHash
}

// Create writes a brand-new backlink file: header plus payload in a
// single append, with RefCount starting at 0 (spec §4.1: "Newly
// created backlinks start with RefCount = 0; commit will raise them to
// 1").
func (b *Backlink) Create(payload []byte) error {
	w, err := b.fs.Create(b.Path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, b.Path, err)
	}
	defer w.Close()

	hash := b.hasher.Sum32(payload)
	buf := make([]byte, headerSize+len(payload))
	buf[0] = Version
	binary.LittleEndian.PutUint32(buf[versionSize:], hash)
	buf[versionSize+hashSize] = 0
	copy(buf[headerSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, b.Path, err)
	}
	writeMeter.Mark(int64(len(buf)))
	return nil
}

// WriteRefCount rewrites the entire file in place with a new refcount,
// preserving version, hash, and payload: {version, hash, new,
// payload}. Spec §4.4: "This is an atomic rewrite from the caller's
// perspective; if the write fails, the file's prior state is
// considered undefined and the caller treats the backlink as lost."
func (b *Backlink) WriteRefCount(newCount uint8) error {
	version, hash, _, size, err := b.readHeader()
	if err != nil {
		return err
	}
	payload := make([]byte, size)
	if size > 0 {
		if _, err := b.ReadPayload(payload); err != nil {
			return err
		}
	}

	w, err := b.fs.OpenAppend(b.Path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, b.Path, err)
	}
	defer w.Close()

	buf := make([]byte, headerSize+len(payload))
	buf[0] = version
	binary.LittleEndian.PutUint32(buf[versionSize:], hash)
	buf[versionSize+hashSize] = newCount
	copy(buf[headerSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, b.Path, err)
	}
	writeMeter.Mark(int64(len(buf)))
	return nil
}
