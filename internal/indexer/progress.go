package indexer

import (
	"sync"
	"time"
)

// CycleState describes what the orchestrator is doing right now.
type CycleState string

const (
	StateIdle     CycleState = "idle"
	StateIndexing CycleState = "indexing"
)

// ProgressSnapshot is an immutable view of orchestrator progress.
type ProgressSnapshot struct {
	State           string    `json:"state"`
	CyclesCompleted int64     `json:"cycles_completed"`
	SourcesTotal    int       `json:"sources_total"`
	SourcesDone     int       `json:"sources_done"`
	CurrentSource   string    `json:"current_source,omitempty"`
	PassagesIndexed int64     `json:"passages_indexed"`
	LastCycleStart  time.Time `json:"last_cycle_start,omitzero"`
	LastCycleEnd    time.Time `json:"last_cycle_end,omitzero"`
	LastError       string    `json:"last_error,omitempty"`
}

// Progress provides thread-safe tracking of indexing activity for the
// status endpoint.
type Progress struct {
	mu sync.RWMutex

	state           CycleState
	cyclesCompleted int64
	sourcesTotal    int
	sourcesDone     int
	currentSource   string
	passagesIndexed int64
	lastCycleStart  time.Time
	lastCycleEnd    time.Time
	lastError       string
}

func NewProgress() *Progress {
	return &Progress{state: StateIdle}
}

// BeginCycle marks the start of a cycle over total sources.
func (p *Progress) BeginCycle(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = StateIndexing
	p.sourcesTotal = total
	p.sourcesDone = 0
	p.currentSource = ""
	p.lastCycleStart = time.Now()
}

// SetCurrentSource records the source being processed.
func (p *Progress) SetCurrentSource(uri string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.currentSource = uri
}

// SourceDone counts one source as finished, whatever its outcome.
func (p *Progress) SourceDone() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sourcesDone++
	p.currentSource = ""
}

// AddPassages counts passages written to the vector store.
func (p *Progress) AddPassages(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.passagesIndexed += int64(n)
}

// EndCycle marks the cycle finished, recording the error if any.
func (p *Progress) EndCycle(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = StateIdle
	p.cyclesCompleted++
	p.lastCycleEnd = time.Now()
	if err != nil {
		p.lastError = err.Error()
	} else {
		p.lastError = ""
	}
}

// CyclesCompleted returns the number of finished cycles.
func (p *Progress) CyclesCompleted() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cyclesCompleted
}

// Snapshot returns an immutable copy of the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ProgressSnapshot{
		State:           string(p.state),
		CyclesCompleted: p.cyclesCompleted,
		SourcesTotal:    p.sourcesTotal,
		SourcesDone:     p.sourcesDone,
		CurrentSource:   p.currentSource,
		PassagesIndexed: p.passagesIndexed,
		LastCycleStart:  p.lastCycleStart,
		LastCycleEnd:    p.lastCycleEnd,
		LastError:       p.lastError,
	}
}
