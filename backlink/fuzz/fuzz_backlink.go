// Package fuzz exercises the backlink header decode path with
// arbitrary byte strings, the same bare go-fuzz convention
// tests/fuzzers/transactions/tx_fuzzer.go uses: a plain func Fuzz, no
// fuzzing library import.
package fuzz

import (
	"github.com/ottergen/snapper/backlink"
	"github.com/ottergen/snapper/hashutil"
	"github.com/ottergen/snapper/vfs"
)

// Fuzz writes data verbatim as a backlink file's bytes and exercises
// every read accessor against it. None of them should panic no matter
// how malformed data is; read failures are expected and ignored.
func Fuzz(data []byte) int {
	fs := vfs.NewMem()
	w, err := fs.Create("fuzzed")
	if err != nil {
		return 0
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return 0
	}
	w.Close()

	hasher, _ := hashutil.New(hashutil.CRC32)
	b := backlink.New(fs, hasher, "fuzzed")

	b.ReadVersion()
	b.ReadHash()
	b.ReadRefCount()
	if size, err := b.ReadPayloadSize(); err == nil {
		buf := make([]byte, size)
		b.ReadPayload(buf)
	}
	b.IsValid(0)

	return 1
}
