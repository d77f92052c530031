package engine

import (
	"fmt"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	lru "github.com/hashicorp/golang-lru"

	"github.com/ottergen/snapper/archive"
	"github.com/ottergen/snapper/clock"
	"github.com/ottergen/snapper/config"
	"github.com/ottergen/snapper/gendir"
	"github.com/ottergen/snapper/hashutil"
	"github.com/ottergen/snapper/log"
	"github.com/ottergen/snapper/metrics"
	"github.com/ottergen/snapper/vfs"
)

// genCacheSize bounds how many parsed-but-not-current generation
// archives Engine keeps warm, the same fixed small-N LRU shape
// Tree.layers's neighboring caches use in the teacher for
// recently-touched state roots.
const genCacheSize = 8

// payloadCacheBytes sizes the read-through fastcache fronting backlink
// payload reads during restore, mirroring snapshot.go's
// "cache: fastcache.New(512 * 1024 * 1024)" disk-layer cache, scaled
// down since Snapper payloads are caller-supplied blobs rather than
// full trie nodes.
const payloadCacheBytes = 32 * 1024 * 1024

// Engine is the Snapper state machine. It is not safe for concurrent
// use by more than one goroutine — spec §5 makes the engine
// cooperatively single-threaded, with all external concurrency
// confined to the boundary package's mutex-guarded buffer.
type Engine struct {
	cfg    config.Config
	fs     vfs.FileSystem
	clock  clock.Clock
	hasher hashutil.Hasher
	log    log.Logger

	mu    sync.Mutex // guards state/archive/gen fields below for diagnostic reads; the engine itself is single-threaded, this exists only so State can be read concurrently with an in-flight boundary call (see boundary.Boundary.State)
	state State

	// archive is the in-memory archive: replaced wholesale by
	// init_snapshot (with the latest valid generation's archive, or an
	// empty one) and by open_generation (with the opened generation's
	// archive). close_generation and commit_snapshot leave it in
	// place until the next of those calls replaces it.
	arc *archive.Archive

	// gen is the currently open generation, valid during Creation and
	// Restoration only.
	gen      gendir.Dir
	overflow *gendir.Overflow

	// archiveEntryCount counts every take_snapshot call in the current
	// session, including reused-head cases, per the resolved Open
	// Question in DESIGN.md ("count all archive entries in this
	// session"). snapshotFileCount (tracked inside overflow) counts
	// only new-backlink creations, since that's what drives ext/
	// fan-out.
	archiveEntryCount int

	genCache     *lru.Cache
	payloadCache *fastcache.Cache

	metrics struct {
		snapshots metrics.Counter
		restores  metrics.Counter
		purges    metrics.Counter
	}
}

// New constructs an Engine rooted at fs, configured by cfg. The
// engine starts Dormant with no generation open and an empty baseline
// archive; callers normally follow New with open_generation or
// init_snapshot depending on whether they intend to read or write.
func New(fs vfs.FileSystem, cfg config.Config, clk clock.Clock) (*Engine, error) {
	hasher, err := hashutil.New(cfg.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	genCache, err := lru.New(genCacheSize)
	if err != nil {
		return nil, fmt.Errorf("engine: allocating generation cache: %w", err)
	}

	e := &Engine{
		cfg:          cfg,
		fs:           fs,
		clock:        clk,
		hasher:       hasher,
		log:          log.New("module", "snapper/engine"),
		state:        Dormant,
		arc:          archive.New(),
		genCache:     genCache,
		payloadCache: fastcache.New(payloadCacheBytes),
	}
	e.metrics.snapshots = metrics.NewRegisteredCounter("snapper/engine/snapshots")
	e.metrics.restores = metrics.NewRegisteredCounter("snapper/engine/restores")
	e.metrics.purges = metrics.NewRegisteredCounter("snapper/engine/purges")
	return e, nil
}

// State reports the engine's current lifecycle phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// fatal reports a crash state. Under Config.Integrity, it logs via
// log.Crit, which terminates the process (spec §7 band 2: "surfaced as
// fatal crash states ... The engine is expected to terminate and be
// restarted; no partial state is returned"). Under integrity=off, the
// caller is expected to instead return fallback, the matching
// caller-protocol error.
func (e *Engine) fatal(cs CrashState, fallback error, ctx ...interface{}) error {
	if e.cfg.Integrity {
		e.log.Crit(string(cs), ctx...)
		return fallback // unreachable: log.Crit exits the process
	}
	e.log.Warn(string(cs), ctx...)
	return fallback
}

func (e *Engine) verbose(msg string, ctx ...interface{}) {
	if e.cfg.Verbose {
		e.log.Info(msg, ctx...)
	}
}

// requireState enforces spec §4.1's "any operation called in a wrong
// state returns InvalidState and makes no change."
func (e *Engine) requireState(want State) error {
	if e.state != want {
		return fmt.Errorf("%w: have %s, want %s", ErrInvalidState, e.state, want)
	}
	return nil
}
