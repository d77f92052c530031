package engine

import (
	"fmt"

	mapset "github.com/deckarep/golang-set"

	"github.com/ottergen/snapper/archive"
	"github.com/ottergen/snapper/backlink"
	"github.com/ottergen/snapper/clock"
	"github.com/ottergen/snapper/gendir"
)

// validGenerations returns every generation name (ascending) whose
// archive loads and validates, consulting the same load path
// open_generation uses.
func (e *Engine) validGenerations() ([]string, error) {
	names, err := gendir.List(e.fs)
	if err != nil {
		return nil, err
	}
	var valid []string
	for _, name := range names {
		if _, ok := e.tryLoadValidated(name); ok {
			valid = append(valid, name)
		}
	}
	return valid, nil
}

// Purge transitions Dormant → Dormant, releasing the target
// generation's backlink references and removing its directory (spec
// §4.1 purge).
func (e *Engine) Purge(name string) error {
	if err := e.requireState(Dormant); err != nil {
		return err
	}

	valid, err := e.validGenerations()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoadGenFailed, err)
	}

	target := name
	if target == "" {
		if len(valid) == 0 {
			return nil
		}
		target = valid[0]
	}

	remaining := uint32(len(valid))
	for _, v := range valid {
		if v == target {
			remaining--
			break
		}
	}
	if e.cfg.MinSnapshots > 0 && remaining < e.cfg.MinSnapshots {
		return ErrPurgeDenied
	}

	if err := e.purgeGeneration(target); err != nil {
		return e.fatal(PurgeFailed, ErrLoadGenFailed, "generation", target, "err", err)
	}

	e.metrics.purges.Inc(1)
	e.verbose("purge", "generation", target)
	return nil
}

// purgeGeneration implements the per-generation body of spec §4.1
// purge: decrement every referenced backlink's RefCount, unlinking
// those that hit zero (or are unreadable under integrity=off) along
// with their now-empty parent chain, then removes the archive and the
// generation directory itself.
func (e *Engine) purgeGeneration(name string) error {
	d := gendir.Open(e.fs, name)
	arc, err := e.readArchiveFile(d)
	if err != nil {
		return err
	}

	seen := mapset.NewSet()
	for _, entry := range arc.Entries() {
		if seen.Contains(entry.Path) {
			continue
		}
		seen.Add(entry.Path)
		if err := e.releaseBacklink(entry.Path, name); err != nil {
			return err
		}
	}

	e.genCache.Remove(name)
	if err := e.fs.Remove(d.ArchivePath()); err != nil {
		return fmt.Errorf("removing archive for %s: %w", name, err)
	}
	return e.fs.RemoveAll(name)
}

// releaseBacklink implements the Open Question decision recorded in
// DESIGN.md: decrement-and-rewrite when RefCount > 1, unlink only when
// RefCount is 1 or the backlink is unreadable under integrity=off (a
// backlink file that no longer exists is skipped) — never the source's
// aggressive unlink-on-any-decrement-failure path.
func (e *Engine) releaseBacklink(path, genName string) error {
	bl := backlink.New(e.fs, e.hasher, path)
	rc, err := bl.ReadRefCount()
	if err != nil {
		if e.cfg.Integrity {
			return fmt.Errorf("reading refcount of %s: %w", path, err)
		}
		if !e.fs.Exists(path) {
			e.log.Warn("missing backlink during purge, skipping", "path", path, "err", err)
			return nil
		}
		e.log.Warn("unreadable backlink during purge, unlinking", "path", path, "err", err)
	} else if rc > 1 {
		return bl.WriteRefCount(rc - 1)
	}

	stopAt := genName + "/" + gendir.SnapshotDirName
	if err := gendir.CascadeDelete(e.fs, path, stopAt); err != nil {
		return fmt.Errorf("cascade-deleting %s: %w", path, err)
	}
	return nil
}

// PurgeExpired enforces the quota and age policies spec §4.1
// purge_expired describes. It is run automatically after
// commit_snapshot and close_generation.
func (e *Engine) PurgeExpired() error {
	for {
		valid, err := e.validGenerations()
		if err != nil {
			return e.fatal(PurgeFailed, ErrLoadGenFailed, "err", err)
		}
		if !(e.cfg.MaxSnapshots > 0 && uint32(len(valid)) > e.cfg.MaxSnapshots && uint32(len(valid)) > e.cfg.MinSnapshots) {
			break
		}
		if err := e.purgeGeneration(valid[0]); err != nil {
			return e.fatal(PurgeFailed, ErrLoadGenFailed, "generation", valid[0], "err", err)
		}
		e.metrics.purges.Inc(1)
	}

	if e.cfg.Expiration <= 0 {
		return nil
	}

	names, err := gendir.List(e.fs)
	if err != nil {
		return e.fatal(PurgeFailed, ErrLoadGenFailed, "err", err)
	}
	now := e.clock.Now()
	for _, name := range names {
		age, err := clock.Age(name, now)
		if err != nil {
			continue
		}
		if age <= e.cfg.Expiration {
			continue
		}
		if err := e.purgeGeneration(name); err != nil {
			return e.fatal(PurgeFailed, ErrLoadGenFailed, "generation", name, "err", err)
		}
		e.metrics.purges.Inc(1)
	}
	return nil
}

// PurgeZombies is the supplemented operation from original_source's
// `__purge_zombies`: a conservative alternative to init_snapshot's
// blanket pruning of unfinished generations. Rather than discarding an
// unfinished generation's metadata outright, it reclaims only the
// backlink files under it that no valid generation's archive still
// references.
func (e *Engine) PurgeZombies() error {
	if err := e.requireState(Dormant); err != nil {
		return err
	}

	names, err := gendir.List(e.fs)
	if err != nil {
		return e.fatal(PurgeFailed, ErrLoadGenFailed, "err", err)
	}

	var validArchives []*archive.Archive
	for _, name := range names {
		if a, ok := e.tryLoadValidated(name); ok {
			validArchives = append(validArchives, a)
		}
	}

	for _, name := range names {
		if _, ok := e.tryLoadValidated(name); ok {
			continue
		}
		candidates, err := gendir.WalkFiles(e.fs, gendir.Open(e.fs, name).SnapshotPath())
		if err != nil {
			return e.fatal(PurgeFailed, ErrLoadGenFailed, "generation", name, "err", err)
		}
		for _, path := range candidates {
			if referencedByAny(validArchives, path) {
				continue
			}
			if err := gendir.CascadeDelete(e.fs, path, name+"/"+gendir.SnapshotDirName); err != nil {
				return e.fatal(PurgeFailed, ErrLoadGenFailed, "path", path, "err", err)
			}
			e.verbose("purge_zombies", "removed", path)
		}
	}

	e.metrics.purges.Inc(1)
	return nil
}

func referencedByAny(archives []*archive.Archive, path string) bool {
	for _, a := range archives {
		if a.ContainsPath(path) {
			return true
		}
	}
	return false
}
