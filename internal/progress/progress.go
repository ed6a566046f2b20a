package progress

import (
	"fmt"
	"sync"
)

// Tracker counts what the bot has done since start
type Tracker struct {
	cycles        int
	changes       int
	failures      int
	retargeted    int
	skipped       int
	applyFailures int
	mu            sync.Mutex
}

// New creates a new Tracker
func New() *Tracker {
	return &Tracker{}
}

// CycleDone records a finished poll cycle with its new changes and the
// pages whose redirect could not be resolved
func (p *Tracker) CycleDone(changes, failures int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cycles++
	p.changes += changes
	p.failures += failures
}

// Retargeted records one saved redirect edit
func (p *Tracker) Retargeted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retargeted++
}

// Skipped records a candidate that was not a redirect
func (p *Tracker) Skipped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.skipped++
}

// ApplyFailed records a candidate whose edit failed
func (p *Tracker) ApplyFailed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyFailures++
}

// Snapshot is a copy of the counters
type Snapshot struct {
	Cycles        int
	Changes       int
	Failures      int
	Retargeted    int
	Skipped       int
	ApplyFailures int
}

// Snapshot returns the current counters
func (p *Tracker) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Cycles:        p.cycles,
		Changes:       p.changes,
		Failures:      p.failures,
		Retargeted:    p.retargeted,
		Skipped:       p.skipped,
		ApplyFailures: p.applyFailures,
	}
}

// Summary formats the counters for the log
func (p *Tracker) Summary() string {
	s := p.Snapshot()
	return fmt.Sprintf("cycles=%d changes=%d unresolved=%d retargeted=%d skipped=%d failed_edits=%d",
		s.Cycles, s.Changes, s.Failures, s.Retargeted, s.Skipped, s.ApplyFailures)
}
