package engine

import "github.com/fjl/memsize"

// logMemoryFootprint logs the deep memory footprint of the in-memory
// archive when verbose logging is enabled, the same memsize-based
// diagnostic idiom geth's own debug tooling uses for its larger
// in-memory structures (trie caches, snapshot layers).
func (e *Engine) logMemoryFootprint() {
	if !e.cfg.Verbose {
		return
	}
	sizes := memsize.Scan(e.arc)
	e.log.Info("archive memory footprint", "generation", e.gen.Name, "report", sizes.Report())
}
