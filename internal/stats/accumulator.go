package stats

import "sync"

// Accumulator holds the running merge of chunk estimates. It is safe for
// concurrent readers while a single writer adds chunks.
type Accumulator struct {
	mu           sync.RWMutex
	analysis     Analysis
	chunksMerged int
	totalChunks  int
}

// NewAccumulator starts an empty accumulator expecting totalChunks chunks.
func NewAccumulator(totalChunks int) *Accumulator {
	return &Accumulator{analysis: Empty(), totalChunks: totalChunks}
}

// ResumeAccumulator starts from previously merged state.
func ResumeAccumulator(analysis Analysis, chunksMerged, totalChunks int) *Accumulator {
	if analysis.ServeSpeed == "" {
		analysis.ServeSpeed = NoServeSpeed
	}
	return &Accumulator{analysis: analysis, chunksMerged: chunksMerged, totalChunks: totalChunks}
}

// Add merges a chunk estimate and returns the new snapshot.
func (a *Accumulator) Add(chunk Analysis) Analysis {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.analysis = Merge(a.analysis, chunk)
	a.chunksMerged++
	return a.analysis
}

// Snapshot returns the current merged analysis.
func (a *Accumulator) Snapshot() Analysis {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.analysis
}

// Progress reports how many chunks have been merged out of the expected total.
func (a *Accumulator) Progress() (merged, total int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.chunksMerged, a.totalChunks
}

// Done reports whether every expected chunk has been merged.
func (a *Accumulator) Done() bool {
	merged, total := a.Progress()
	return total > 0 && merged >= total
}
