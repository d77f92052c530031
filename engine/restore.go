package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/ottergen/snapper/archive"
	"github.com/ottergen/snapper/backlink"
	"github.com/ottergen/snapper/gendir"
)

// OpenGeneration transitions Dormant → Restoration, loading the named
// generation's archive (or the lexicographically greatest valid one if
// name is empty) as described by spec §4.1/§4.3.
func (e *Engine) OpenGeneration(name string) error {
	if err := e.requireState(Dormant); err != nil {
		return err
	}

	resolved, arc, err := e.loadGen(name)
	if err != nil {
		return err
	}
	if resolved == "" {
		return ErrNoPriorGen
	}

	e.mu.Lock()
	e.gen = gendir.Open(e.fs, resolved)
	e.arc = arc
	e.state = Restoration
	e.mu.Unlock()

	e.verbose("open_generation", "generation", resolved)
	return nil
}

// loadGen implements spec §4.3: resolve a target generation name
// (explicit, or "lexicographically greatest valid" when empty),
// validate its archive file, and decode it. A cache of recently loaded
// generations avoids re-parsing archives repeatedly during restore-
// heavy workloads, the same role Tree's layer map plays for
// recently-touched state roots in the teacher.
func (e *Engine) loadGen(name string) (resolved string, arc *archive.Archive, err error) {
	if name == "" {
		names, err := gendir.List(e.fs)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrLoadGenFailed, err)
		}
		for i := len(names) - 1; i >= 0; i-- {
			if a, ok := e.tryLoadValidated(names[i]); ok {
				return names[i], a, nil
			}
		}
		return "", nil, nil
	}

	if cached, ok := e.genCache.Get(name); ok {
		return name, cached.(*archive.Archive), nil
	}
	d := gendir.Open(e.fs, name)
	if !d.HasArchive() {
		return "", nil, ErrLoadGenFailed
	}
	a, validErr := e.readArchiveFile(d)
	if validErr != nil {
		if e.cfg.Integrity {
			return "", nil, e.fatal(InvalidArchiveFile, ErrLoadGenFailed, "generation", name, "err", validErr)
		}
		return "", nil, fmt.Errorf("%w: %v", ErrLoadGenFailed, validErr)
	}
	e.genCache.Add(name, a)
	return name, a, nil
}

// tryLoadValidated loads name's archive under integrity=off semantics
// regardless of Config.Integrity, since scanning for "the latest valid
// generation" must be able to skip an invalid candidate rather than
// crash the whole scan.
func (e *Engine) tryLoadValidated(name string) (*archive.Archive, bool) {
	if cached, ok := e.genCache.Get(name); ok {
		return cached.(*archive.Archive), true
	}
	d := gendir.Open(e.fs, name)
	if !d.HasArchive() {
		return nil, false
	}
	a, err := e.readArchiveFile(d)
	if err != nil {
		return nil, false
	}
	e.genCache.Add(name, a)
	return a, true
}

func (e *Engine) readArchiveFile(d gendir.Dir) (*archive.Archive, error) {
	f, err := e.fs.OpenRead(d.ArchivePath())
	if err != nil {
		return nil, err
	}
	defer f.Close()
	raw := make([]byte, f.Size())
	if _, err := f.ReadAt(raw, 0); err != nil {
		return nil, err
	}
	return archive.Decode(raw, e.hasher)
}

// Restore zero-fills buf, then copies key's payload into it from the
// first backlink in the queue that validates, per spec §4.1 restore.
func (e *Engine) Restore(key uint64, buf []byte) (int, error) {
	if err := e.requireState(Restoration); err != nil {
		return 0, err
	}
	for i := range buf {
		buf[i] = 0
	}

	queue := e.arc.Queue(key)
	if len(queue) == 0 {
		return 0, ErrNoMatches
	}

	e.metrics.restores.Inc(1)

	var lastErr error
	for _, path := range queue {
		n, err := e.restoreFrom(path, buf)
		if err == nil {
			return n, nil
		}
		lastErr = err
	}
	return 0, lastErr
}

// restoreFrom implements the per-backlink validation steps spec §4.1
// lists: version check, payload read, hash check, against a
// read-through payload cache keyed by path+hash, so a payload that
// changed on disk since it was cached (an integrity=off corruption, not
// a legitimate state this engine ever produces on its own) misses the
// cache and still takes the full read-verify path below rather than
// being served unchecked.
func (e *Engine) restoreFrom(path string, buf []byte) (int, error) {
	bl := backlink.New(e.fs, e.hasher, path)

	version, err := bl.ReadVersion()
	if err != nil {
		return 0, ErrIntegrityFailed
	}
	if version != backlink.Version {
		return 0, ErrInvalidVersion
	}

	hash, err := bl.ReadHash()
	if err != nil {
		return 0, ErrIntegrityFailed
	}
	cacheKey := payloadCacheKey(path, hash)

	if cached := e.payloadCache.Get(nil, cacheKey); cached != nil {
		if len(buf) < len(cached) {
			return 0, ErrRestoreFailed
		}
		copy(buf, cached)
		return len(cached), nil
	}

	size, err := bl.ReadPayloadSize()
	if err != nil {
		return 0, ErrIntegrityFailed
	}
	if int64(len(buf)) < size {
		return 0, ErrRestoreFailed
	}

	n, err := bl.ReadPayload(buf)
	if err != nil {
		return 0, ErrIntegrityFailed
	}
	if e.hasher.Sum32(buf[:n]) != hash {
		return 0, ErrIntegrityFailed
	}

	e.payloadCache.Set(cacheKey, buf[:n])
	return n, nil
}

// payloadCacheKey combines a backlink path with its stored hash so the
// cache can never serve a payload for a hash it wasn't validated
// against.
func payloadCacheKey(path string, hash uint32) []byte {
	key := make([]byte, len(path)+4)
	copy(key, path)
	binary.LittleEndian.PutUint32(key[len(path):], hash)
	return key
}

// CloseGeneration transitions Restoration → Dormant. The archive
// loaded from this generation stays in memory until the next
// open_generation or init_snapshot replaces it; init_snapshot does not
// reuse it, but loads its baseline from the latest valid generation on
// disk.
func (e *Engine) CloseGeneration() error {
	if err := e.requireState(Restoration); err != nil {
		return err
	}

	e.mu.Lock()
	e.gen = gendir.Dir{}
	e.state = Dormant
	e.mu.Unlock()

	e.verbose("close_generation")
	return e.PurgeExpired()
}
