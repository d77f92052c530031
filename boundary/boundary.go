// Package boundary is the synchronous, mutex-guarded client/engine
// surface spec §1 and §6 require without specifying a transport:
// "a synchronous, mutex-guarded shared buffer between a single client
// and the engine." Its mutex serializes every client call and guards
// the shared buffer; the engine itself is cooperatively
// single-threaded, and its own small mutex only guards the state
// fields State reads (see State below).
package boundary

import (
	"fmt"
	"sync"

	"github.com/pborman/uuid"

	"github.com/ottergen/snapper/engine"
	"github.com/ottergen/snapper/log"
)

// Boundary serializes every client call onto one shared buffer and one
// underlying Engine, the same role a single IPC session plays in front
// of the original Genode component.
type Boundary struct {
	mu  sync.Mutex
	eng *engine.Engine
	buf []byte
	log log.Logger
}

// New wraps eng with a shared buffer sized by bufSize (Config.BufSize).
func New(eng *engine.Engine, bufSize uint32) *Boundary {
	return &Boundary{
		eng: eng,
		buf: make([]byte, bufSize),
		log: log.New("module", "snapper/boundary"),
	}
}

func (b *Boundary) sessionID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return "unknown"
	}
	return id.String()
}

// InitSnapshot begins a new snapshot generation.
func (b *Boundary) InitSnapshot() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sid := b.sessionID()
	b.log.Debug("boundary: init_snapshot", "session", sid)
	return b.eng.InitSnapshot()
}

// TakeSnapshot copies payload into the shared buffer before handing it
// to the engine, the boundary's only caller-to-engine data copy.
func (b *Boundary) TakeSnapshot(key uint64, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(payload) > len(b.buf) {
		return fmt.Errorf("boundary: payload of %d bytes exceeds buffer size %d", len(payload), len(b.buf))
	}
	n := copy(b.buf, payload)
	return b.eng.TakeSnapshot(key, b.buf[:n])
}

// CommitSnapshot seals the open generation.
func (b *Boundary) CommitSnapshot() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eng.CommitSnapshot()
}

// OpenGeneration opens a generation (the latest valid one if name is
// empty) for restoration.
func (b *Boundary) OpenGeneration(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sid := b.sessionID()
	b.log.Debug("boundary: open_generation", "session", sid, "generation", name)
	return b.eng.OpenGeneration(name)
}

// Restore copies the engine's recovered payload for key out of the
// shared buffer and into out.
func (b *Boundary) Restore(key uint64, out []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(out)
	if n > len(b.buf) {
		n = len(b.buf)
	}
	got, err := b.eng.Restore(key, b.buf[:n])
	if err != nil {
		return 0, err
	}
	return copy(out, b.buf[:got]), nil
}

// CloseGeneration ends the open restoration session.
func (b *Boundary) CloseGeneration() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eng.CloseGeneration()
}

// Purge reclaims one generation (the oldest valid one if name is
// empty).
func (b *Boundary) Purge(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eng.Purge(name)
}

// PurgeExpired enforces the quota and age policies.
func (b *Boundary) PurgeExpired() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eng.PurgeExpired()
}

// PurgeZombies reclaims orphaned backlinks under unfinished
// generations without discarding their recoverable metadata outright.
func (b *Boundary) PurgeZombies() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eng.PurgeZombies()
}

// State reports the underlying engine's lifecycle phase. Unlike every
// other method here it does not take the boundary mutex — Engine.State
// guards its own read, letting a caller poll state concurrently with
// an in-flight boundary call (spec §5's carve-out).
func (b *Boundary) State() engine.State {
	return b.eng.State()
}
