// Package fuzz exercises archive.Decode against arbitrary byte
// strings, following the same bare go-fuzz convention as
// backlink/fuzz.
package fuzz

import (
	"github.com/ottergen/snapper/archive"
	"github.com/ottergen/snapper/hashutil"
)

func Fuzz(data []byte) int {
	hasher, _ := hashutil.New(hashutil.CRC32)
	a, err := archive.Decode(data, hasher)
	if err != nil {
		return 0
	}
	_ = a.Entries()
	_ = archive.Encode(a, hasher)
	return 1
}
