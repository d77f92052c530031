package archive

import (
	"encoding/binary"

	"github.com/ottergen/snapper/hashutil"
)

// body serializes just the entry records — {key, path} pairs — the
// part the stored hash covers (spec §3: "Hash ... over the body").
func body(entries []Entry) []byte {
	buf := make([]byte, len(entries)*entrySize)
	for i, e := range entries {
		off := i * entrySize
		binary.LittleEndian.PutUint64(buf[off:], e.Key)
		copy(buf[off+keySize:off+entrySize], e.Path)
		// buf is zero-initialized by make, so the remainder of the
		// PathWidth field is already null-padded.
	}
	return buf
}

// Encode serializes a into the bit-exact on-disk archive layout:
// {version, hash, count, body}. hasher computes the hash stored in
// the header, over body only.
func Encode(a *Archive, hasher hashutil.Hasher) []byte {
	entries := a.Entries()
	b := body(entries)
	hash := hasher.Sum32(b)

	out := make([]byte, headerSize+len(b))
	out[0] = Version
	binary.LittleEndian.PutUint32(out[versionSize:], hash)
	binary.LittleEndian.PutUint64(out[versionSize+hashSize:], uint64(len(entries)))
	copy(out[headerSize:], b)
	return out
}

// Decode parses raw archive file bytes, validating version and hash,
// and returns a freshly populated Archive with entries inserted in
// their on-disk order (spec §4.3 step 4: "insert each {key, path} into
// the in-memory archive (insertion order preserved)").
func Decode(raw []byte, hasher hashutil.Hasher) (*Archive, error) {
	if len(raw) < headerSize {
		return nil, ErrMalformed
	}
	version := raw[0]
	if version != Version {
		return nil, ErrVersionMismatch
	}
	hash := binary.LittleEndian.Uint32(raw[versionSize:])
	count := binary.LittleEndian.Uint64(raw[versionSize+hashSize:])

	b := raw[headerSize:]
	if hasher.Sum32(b) != hash {
		return nil, ErrHashMismatch
	}
	if uint64(len(b)) != count*entrySize {
		return nil, ErrMalformed
	}

	a := New()
	for i := uint64(0); i < count; i++ {
		off := int(i) * entrySize
		key := binary.LittleEndian.Uint64(b[off:])
		path := decodePath(b[off+keySize : off+entrySize])
		if err := a.Insert(key, path); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// decodePath trims a fixed-width field at its first null byte, the
// inverse of body's null-padding (archive.cc reads the field back with
// Genode::Cstring, which stops at the first NUL).
func decodePath(field []byte) string {
	for i, c := range field {
		if c == 0 {
			return string(field[:i])
		}
	}
	return string(field)
}
