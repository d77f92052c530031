// Package config holds the engine's startup settings. The real
// configuration reader spec.md describes is XML/attribute-based and,
// per spec §1/§6, is an external collaborator specified only through
// its interface — Source is that interface. TOMLSource is the one
// concrete, runnable default this repo ships, the same relationship
// ethdb.KeyValueStore has to its leveldb/memorydb realizations.
package config

import (
	"time"

	"github.com/ottergen/snapper/hashutil"
)

// Config is the engine's immutable, once-loaded settings record. It's
// built once at startup and passed by value into engine.New, which
// keeps its own copy for every helper that needs it, rather than
// threaded field-by-field through call sites.
type Config struct {
	// Verbose turns on informational logging.
	Verbose bool
	// Redundancy is the max RefCount a shared backlink head may reach
	// before take_snapshot forces a new redundant copy instead.
	Redundancy uint8
	// Integrity, when true, makes integrity failures fatal; when
	// false, they're returned to the caller as an error code.
	Integrity bool
	// Threshold is the max backlink files per snapshot directory
	// before an ext/ overflow directory opens.
	Threshold uint32
	// MaxSnapshots caps the number of valid generations; 0 disables.
	MaxSnapshots uint32
	// MinSnapshots is the floor purge operations refuse to cross.
	MinSnapshots uint32
	// Expiration is the age past which purge_expired reclaims a
	// generation; 0 disables age-based expiry.
	Expiration time.Duration
	// BufSize sizes the shared boundary buffer between client and
	// engine. Dropped from the distilled config table but present in
	// the original (Config::_bufsize); default 1MiB.
	BufSize uint32
	// HashAlgorithm selects the digest used by both backlink and
	// archive codecs. Mixing algorithms within one deployment is
	// forbidden (spec §9); it's resolved once here and threaded
	// through as a single hashutil.Hasher value.
	HashAlgorithm hashutil.Algorithm
}

// Defaults returns the configuration spec §6's table specifies when an
// option is absent from the source.
func Defaults() Config {
	return Config{
		Verbose:       false,
		Redundancy:    3,
		Integrity:     true,
		Threshold:     100,
		MaxSnapshots:  0,
		MinSnapshots:  0,
		Expiration:    0,
		BufSize:       1024 * 1024,
		HashAlgorithm: hashutil.CRC32,
	}
}

// Source is the pluggable configuration reader. Load is called once
// at engine startup.
type Source interface {
	Load() (Config, error)
}

// Static wraps an already-built Config as a Source, useful for tests
// and for callers assembling Config programmatically rather than from
// a file.
type Static Config

func (s Static) Load() (Config, error) { return Config(s), nil }
