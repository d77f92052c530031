// Package metrics provides lightweight counters and meters, mirroring
// the teacher's own metrics.Meter / metrics.NewRegisteredMeter API
// surface (see core/rawdb/freezer_table.go's readMeter/writeMeter).
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a monotonic or adjustable integer counter.
type Counter interface {
	Inc(int64)
	Count() int64
}

type counter struct{ v int64 }

func (c *counter) Inc(n int64)  { atomic.AddInt64(&c.v, n) }
func (c *counter) Count() int64 { return atomic.LoadInt64(&c.v) }

// Meter tracks a running total and an exponentially-decaying moving
// average rate, the way freezer_table.go's readMeter/writeMeter do
// ("Mark" the number of bytes moved).
type Meter interface {
	Mark(int64)
	Count() int64
	Rate1() float64
}

type meter struct {
	mu      sync.Mutex
	total   int64
	rate    float64
	last    time.Time
}

func (m *meter) Mark(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total += n
	now := time.Now()
	if !m.last.IsZero() {
		dt := now.Sub(m.last).Seconds()
		if dt > 0 {
			instant := float64(n) / dt
			const alpha = 0.2
			m.rate = alpha*instant + (1-alpha)*m.rate
		}
	}
	m.last = now
}

func (m *meter) Count() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

func (m *meter) Rate1() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate
}

// Registry tracks named counters/meters for a process. Unlike a real
// metrics exporter, nothing here ever goes over the wire — spec's
// Non-goals exclude networking entirely, so Registry is purely an
// in-process introspection point (used by `cmd/snapper stats`).
type Registry struct {
	mu       sync.Mutex
	counters map[string]Counter
	meters   map[string]Meter
}

// DefaultRegistry is the process-wide registry engine components
// register against, mirroring the teacher's package-level metrics
// registrations.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{counters: make(map[string]Counter), meters: make(map[string]Meter)}
}

func (r *Registry) NewRegisteredCounter(name string) Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := &counter{}
	r.counters[name] = c
	return c
}

func (r *Registry) NewRegisteredMeter(name string) Meter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.meters[name]; ok {
		return m
	}
	m := &meter{}
	r.meters[name] = m
	return m
}

// Snapshot returns a point-in-time copy of every counter/meter total,
// keyed by name, for the CLI's `stats` command to render.
func (r *Registry) Snapshot() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.counters)+len(r.meters))
	for name, c := range r.counters {
		out[name] = c.Count()
	}
	for name, m := range r.meters {
		out[name] = m.Count()
	}
	return out
}

func NewRegisteredCounter(name string) Counter { return DefaultRegistry.NewRegisteredCounter(name) }
func NewRegisteredMeter(name string) Meter     { return DefaultRegistry.NewRegisteredMeter(name) }
