package engine

import (
	"fmt"

	mapset "github.com/deckarep/golang-set"

	"github.com/ottergen/snapper/archive"
	"github.com/ottergen/snapper/backlink"
	"github.com/ottergen/snapper/gendir"
)

// InitSnapshot transitions Dormant → Creation. It first prunes any
// unfinished generation left behind by a prior crash (spec §5c: "a
// generation directory with no valid archive is always a purge target
// on next init_snapshot"), then mints a fresh generation directory.
func (e *Engine) InitSnapshot() error {
	if err := e.requireState(Dormant); err != nil {
		return err
	}

	if err := e.pruneUnfinished(); err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}

	// spec §4.1 init_snapshot step 5: load the latest valid prior
	// generation's archive as the baseline take_snapshot consults for
	// key sharing. loadGen("") returns a nil archive when no generation
	// has ever committed, in which case the baseline starts empty. The
	// archive is decoded afresh rather than taken from genCache, since
	// take_snapshot mutates the baseline and the cached copy must keep
	// matching that generation's sealed archive file.
	latest, baseline, err := e.loadGen("")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	if latest != "" {
		if baseline, err = e.readArchiveFile(gendir.Open(e.fs, latest)); err != nil {
			return fmt.Errorf("%w: %v", ErrInitFailed, err)
		}
	}
	if baseline == nil {
		baseline = archive.New()
	}

	gen, err := gendir.New(e.fs, e.clock)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}

	e.mu.Lock()
	e.gen = gen
	e.arc = baseline
	e.overflow = gendir.NewOverflow(e.fs, gen.SnapshotPath(), e.cfg.Threshold)
	e.archiveEntryCount = 0
	e.state = Creation
	e.mu.Unlock()

	e.verbose("init_snapshot", "generation", gen.Name)
	return nil
}

// pruneUnfinished removes every generation directory that has no
// valid archive file, the recovery sweep spec §4.1 describes as
// happening before a new generation is minted.
func (e *Engine) pruneUnfinished() error {
	names, err := gendir.List(e.fs)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, ok := e.tryLoadValidated(name); ok {
			continue
		}
		e.verbose("pruning unfinished generation", "generation", name)
		if err := e.fs.RemoveAll(name); err != nil {
			return fmt.Errorf("removing unfinished generation %s: %w", name, err)
		}
	}
	return nil
}

// TakeSnapshot writes payload under key into the currently open
// generation, sharing an existing backlink when the key was already
// seen in the baseline archive and redundancy allows it (spec §4.1
// take_snapshot).
func (e *Engine) TakeSnapshot(key uint64, payload []byte) error {
	if err := e.requireState(Creation); err != nil {
		return err
	}

	e.archiveEntryCount++
	e.metrics.snapshots.Inc(1)

	path, reused, err := e.placeOrShare(key, payload)
	if err != nil {
		abortErr := e.abort()
		if abortErr != nil {
			e.log.Error("abort failed after take_snapshot error", "err", abortErr)
		}
		return e.fatal(SnapshotNotPossible, err, "key", key, "err", err)
	}

	if !reused {
		if err := e.arc.Insert(key, path); err != nil {
			abortErr := e.abort()
			if abortErr != nil {
				e.log.Error("abort failed after archive insert error", "err", abortErr)
			}
			return e.fatal(SnapshotNotPossible, err, "key", key, "err", err)
		}
	}

	e.verbose("take_snapshot", "key", key, "path", path, "reused", reused)
	return nil
}

// placeOrShare implements spec §4.1 step 3's key-present branch and
// step 4's key-absent branch, returning the backlink path that ends up
// representing key for this session, and whether an existing backlink
// was reused rather than a new one created. A reused backlink's
// RefCount is left untouched here; commit_snapshot's bumpReferenceCounts
// bumps it exactly once for the whole committing generation.
func (e *Engine) placeOrShare(key uint64, payload []byte) (path string, reused bool, err error) {
	head, ok := e.arc.Head(key)
	if !ok {
		path, err = e.createBacklink(payload)
		return path, false, err
	}

	bl := backlink.New(e.fs, e.hasher, head)
	hash := e.hasher.Sum32(payload)
	if bl.IsValid(hash) {
		rc, rcErr := bl.ReadRefCount()
		if rcErr == nil {
			// RefCount is bumped once per committing generation by
			// bumpReferenceCounts, not here — take_snapshot only
			// decides whether redundancy still allows sharing.
			if rc < e.cfg.Redundancy {
				return head, true, nil
			}
			// Redundancy exhausted: push a new redundant backlink to
			// the queue's tail, where it becomes the new head; the
			// existing backlink stays in the queue.
			path, err = e.createBacklink(payload)
			return path, false, err
		}
	}

	// Head is invalid (version/hash mismatch) or its RefCount couldn't
	// be read: evict the entire queue and proceed as if key were absent
	// (spec §4.1 step 3).
	e.arc.Remove(key)
	path, err = e.createBacklink(payload)
	return path, false, err
}

// createBacklink implements spec §4.1 step 4: place the file per the
// directory overflow policy, write it, and return its root-relative
// path.
func (e *Engine) createBacklink(payload []byte) (string, error) {
	dir, name, err := e.overflow.Place()
	if err != nil {
		return "", err
	}
	path := dir + "/" + name
	bl := backlink.New(e.fs, e.hasher, path)
	if err := bl.Create(payload); err != nil {
		return "", err
	}
	return path, nil
}

// CommitSnapshot transitions Creation → Dormant, sealing the
// generation's archive file and bumping every referenced backlink's
// RefCount (spec §4.1 commit_snapshot).
func (e *Engine) CommitSnapshot() error {
	if err := e.requireState(Creation); err != nil {
		return err
	}
	if e.arc.Len() == 0 {
		if err := e.abort(); err != nil {
			e.log.Error("abort failed for empty-archive commit", "err", err)
		}
		return ErrInvalidState
	}

	raw := archive.Encode(e.arc, e.hasher)
	w, err := e.fs.Create(e.gen.ArchivePath())
	if err != nil {
		if abortErr := e.abort(); abortErr != nil {
			e.log.Error("abort failed after archive create error", "err", abortErr)
		}
		return e.fatal(SnapshotNotPossible, err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		if abortErr := e.abort(); abortErr != nil {
			e.log.Error("abort failed after archive write error", "err", abortErr)
		}
		return e.fatal(SnapshotNotPossible, err)
	}
	w.Close()

	if err := e.bumpReferenceCounts(); err != nil {
		return e.fatal(RefCountFailed, ErrIntegrityFailed, "err", err)
	}

	e.verbose("commit_snapshot", "generation", e.gen.Name, "entries", e.archiveEntryCount)
	e.logMemoryFootprint()

	e.mu.Lock()
	e.gen = gendir.Dir{}
	e.overflow = nil
	e.state = Dormant
	e.mu.Unlock()

	return e.PurgeExpired()
}

// bumpReferenceCounts walks every backlink referenced by the archive
// just committed and increments its on-disk RefCount by one (spec §4.1
// commit_snapshot step 4).
func (e *Engine) bumpReferenceCounts() error {
	seen := mapset.NewSet()
	for _, entry := range e.arc.Entries() {
		if seen.Contains(entry.Path) {
			continue
		}
		seen.Add(entry.Path)

		bl := backlink.New(e.fs, e.hasher, entry.Path)
		rc, err := bl.ReadRefCount()
		if err != nil {
			if e.cfg.Integrity {
				return fmt.Errorf("reading refcount of %s: %w", entry.Path, err)
			}
			e.log.Warn("unreadable backlink during commit", "path", entry.Path, "err", err)
			continue
		}
		if err := bl.WriteRefCount(rc + 1); err != nil {
			if e.cfg.Integrity {
				return fmt.Errorf("bumping refcount of %s: %w", entry.Path, err)
			}
			e.log.Warn("could not bump refcount during commit", "path", entry.Path, "err", err)
		}
	}
	return nil
}

// abort is spec §4.2's abort helper: recursively unlinks the
// snapshot/ subtree and the generation directory, discards in-flight
// generation state, and preserves the prior baseline archive so the
// engine can retry cleanly.
func (e *Engine) abort() error {
	name := e.gen.Name
	var err error
	if name != "" {
		err = e.fs.RemoveAll(name)
	}

	e.mu.Lock()
	e.gen = gendir.Dir{}
	e.overflow = nil
	e.state = Dormant
	e.mu.Unlock()

	return err
}
