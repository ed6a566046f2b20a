package crawler

import "github.com/SAScholar/STConverterWatchingDog/internal/types"

// CycleStatus tells how far a poll cycle got
type CycleStatus int

const (
	// CycleCompleted means every feed entry was examined without errors.
	CycleCompleted CycleStatus = iota
	// CyclePartial means some entries could not be resolved, or the
	// cycle stopped early on an error worth retrying. Changes holds the
	// entries that were recorded before that.
	CyclePartial
	// CycleFailed means the cycle could not read or write the record, or
	// could not read the feed.
	CycleFailed
)

func (s CycleStatus) String() string {
	switch s {
	case CycleCompleted:
		return "completed"
	case CyclePartial:
		return "partial"
	case CycleFailed:
		return "failed"
	}
	return "unknown"
}

// SkippedChange is a feed entry whose redirect could not be resolved
type SkippedChange struct {
	Change types.Change
	Err    error
}

// CycleResult is the outcome of one poll
type CycleResult struct {
	Status  CycleStatus
	Changes []types.Propagation
	Skipped []SkippedChange
	Err     error
}
