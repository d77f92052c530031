package vfs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
)

// osFS is the production FileSystem, rooted at a single base directory
// on the real filesystem. Read-only files are memory-mapped rather than
// read through a buffered handle, the same zero-copy approach
// freezer_table.go's openFreezerFileForReadOnly takes for its data
// files via golang.org/x/exp/mmap — here via edsrzf/mmap-go, the mmap
// library the pack actually vendors.
type osFS struct {
	root string
}

// NewOS returns a FileSystem rooted at root. root must already exist.
func NewOS(root string) FileSystem {
	return &osFS{root: root}
}

func (fs *osFS) abs(path string) string {
	return filepath.Join(fs.root, filepath.FromSlash(path))
}

func (fs *osFS) MkdirAll(dir string) error {
	return os.MkdirAll(fs.abs(dir), 0o755)
}

func (fs *osFS) ReadDir(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(fs.abs(dir))
	if err != nil {
		return nil, err
	}
	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		out = append(out, FileInfo{
			Name:    e.Name(),
			Size:    info.Size(),
			IsDir:   e.IsDir(),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}

func (fs *osFS) Stat(path string) (FileInfo, error) {
	info, err := os.Stat(fs.abs(path))
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Name: info.Name(), Size: info.Size(), IsDir: info.IsDir(), ModTime: info.ModTime()}, nil
}

func (fs *osFS) Exists(path string) bool {
	_, err := os.Stat(fs.abs(path))
	return err == nil
}

// mmapFile is a ReadOnlyFile backed by a read-only memory mapping, the
// way freezer_table.go keeps its immutable segments mapped for the
// lifetime of the handle rather than issuing a syscall per read.
type mmapFile struct {
	f   *os.File
	mm  mmap.MMap
}

func (fs *osFS) OpenRead(path string) (ReadOnlyFile, error) {
	f, err := os.Open(fs.abs(path))
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		// mmap-go rejects zero-length mappings; an empty backlink/
		// archive file is a legitimate (if useless) state, so fall
		// back to a handle that just reports zero bytes everywhere.
		return &emptyFile{f: f}, nil
	}
	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &mmapFile{f: f, mm: mm}, nil
}

func (m *mmapFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.mm)) {
		return 0, fmt.Errorf("vfs: ReadAt offset %d out of range (size %d)", off, len(m.mm))
	}
	n := copy(p, m.mm[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *mmapFile) Size() int64 { return int64(len(m.mm)) }

func (m *mmapFile) Close() error {
	if err := m.mm.Unmap(); err != nil {
		m.f.Close()
		return err
	}
	return m.f.Close()
}

type emptyFile struct{ f *os.File }

func (e *emptyFile) ReadAt(p []byte, off int64) (int, error) { return 0, io.EOF }
func (e *emptyFile) Size() int64                             { return 0 }
func (e *emptyFile) Close() error                            { return e.f.Close() }

type osAppender struct{ f *os.File }

func (a *osAppender) Write(p []byte) (int, error) { return a.f.Write(p) }
func (a *osAppender) Close() error                { return a.f.Close() }

func (fs *osFS) Create(path string) (Appender, error) {
	f, err := os.OpenFile(fs.abs(path), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	return &osAppender{f: f}, nil
}

func (fs *osFS) OpenAppend(path string) (Appender, error) {
	f, err := os.OpenFile(fs.abs(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &osAppender{f: f}, nil
}

func (fs *osFS) Remove(path string) error {
	return os.Remove(fs.abs(path))
}

func (fs *osFS) RemoveAll(path string) error {
	return os.RemoveAll(fs.abs(path))
}

func (fs *osFS) Rename(oldpath, newpath string) error {
	return os.Rename(fs.abs(oldpath), fs.abs(newpath))
}
