// Package crawler watches the wiki's recent changes for edits that moved a
// redirect and carries the new target over to the redirects named after the
// other Chinese script variants of the same title.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/SAScholar/STConverterWatchingDog/internal/progress"
	"github.com/SAScholar/STConverterWatchingDog/internal/queue"
	"github.com/SAScholar/STConverterWatchingDog/internal/types"
	"github.com/SAScholar/STConverterWatchingDog/internal/variant"
	"github.com/SAScholar/STConverterWatchingDog/internal/wiki"
)

// Wiki is the part of the wiki client the propagator uses
type Wiki interface {
	Exists(ctx context.Context, title string) (bool, error)
	IsRedirect(ctx context.Context, title string) (bool, error)
	RedirectTarget(ctx context.Context, title string) (types.PageRef, error)
	SetRedirectTarget(ctx context.Context, title string, target types.PageRef, opts wiki.SetOptions) (*wiki.Edit, error)
	RecentChanges(ctx context.Context, namespace int, tag string, limit int) ([]types.Change, error)
}

// Store persists the processed revision IDs
type Store interface {
	Lock(ctx context.Context) (func() error, error)
	Load() (*queue.SeenSet, error)
	Save(set *queue.SeenSet) error
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Options holds the propagator settings
type Options struct {
	Namespace int
	Tag       string
	Limit     int
	Summary   string
	Mode      variant.Mode
	Idle      time.Duration
	DryRun    bool
	Sleep     Sleeper
}

// Propagator runs the poll and apply cycle
type Propagator struct {
	wiki     Wiki
	conv     variant.Converter
	store    Store
	opts     Options
	log      *log.Logger
	progress *progress.Tracker
}

// New creates a Propagator. All collaborators are injected so tests can
// swap them for fakes.
func New(w Wiki, conv variant.Converter, store Store, opts Options, logger *log.Logger) *Propagator {
	if opts.Idle <= 0 {
		opts.Idle = 30 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	if opts.Mode == "" {
		opts.Mode = variant.ModeLiteral
	}
	return &Propagator{
		wiki:     w,
		conv:     conv,
		store:    store,
		opts:     opts,
		log:      logger,
		progress: progress.New(),
	}
}

// Progress returns the run counters
func (p *Propagator) Progress() *progress.Tracker {
	return p.progress
}

// Run polls until ctx is cancelled. A cycle that found nothing new, or
// failed, is followed by the idle wait; otherwise the next poll starts
// right away.
func (p *Propagator) Run(ctx context.Context) error {
	p.log.Info("watching recent changes", "tag", p.opts.Tag, "namespace", p.opts.Namespace,
		"idle", p.opts.Idle, "classify", p.opts.Mode, "dry_run", p.opts.DryRun)
	for {
		res := p.RunOnce(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if res.Status != CycleFailed && len(res.Changes) > 0 {
			continue
		}
		if err := p.opts.Sleep(ctx, p.opts.Idle); err != nil {
			return err
		}
	}
}

// RunOnce polls once and applies whatever the poll found
func (p *Propagator) RunOnce(ctx context.Context) CycleResult {
	res := p.Poll(ctx)
	p.progress.CycleDone(len(res.Changes), len(res.Skipped))

	switch res.Status {
	case CycleFailed:
		p.log.Error("poll cycle failed", "err", res.Err, "changes", len(res.Changes))
	case CyclePartial:
		p.log.Warn("poll cycle incomplete", "err", res.Err, "changes", len(res.Changes), "unresolved", len(res.Skipped))
	}

	if len(res.Changes) == 0 {
		p.log.Debug("no new redirect changes")
		return res
	}
	p.Apply(ctx, res.Changes)
	p.log.Info("cycle finished", "summary", p.progress.Summary())
	return res
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// pageErrors are failures tied to one page. Retrying them gives the same
// answer, so the revision is recorded and the cycle moves on.
var pageErrors = []error{
	wiki.ErrCircularRedirect,
	wiki.ErrInterwikiRedirect,
	wiki.ErrNotRedirect,
	wiki.ErrSection,
	wiki.ErrMissingPage,
}

func isPageError(err error) bool {
	for _, target := range pageErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Poll reads the recent changes feed under the record lock and returns the
// redirects changed since the last poll. Every revision examined is written
// to the record before the next one is looked at.
func (p *Propagator) Poll(ctx context.Context) CycleResult {
	unlock, err := p.store.Lock(ctx)
	if err != nil {
		return CycleResult{Status: CycleFailed, Err: fmt.Errorf("lock record: %w", err)}
	}
	defer func() {
		if err := unlock(); err != nil {
			p.log.Error("failed to release record lock", "err", err)
		}
	}()

	seen, err := p.store.Load()
	if err != nil {
		return CycleResult{Status: CycleFailed, Err: fmt.Errorf("load record: %w", err)}
	}

	feed, err := p.wiki.RecentChanges(ctx, p.opts.Namespace, p.opts.Tag, p.opts.Limit)
	if err != nil {
		return CycleResult{Status: CycleFailed, Err: err}
	}

	res := CycleResult{Status: CycleCompleted}
	for _, change := range feed {
		if seen.Has(change.RevisionID) {
			continue
		}

		target, resolveErr := p.wiki.RedirectTarget(ctx, change.Title)
		if resolveErr != nil {
			if !isPageError(resolveErr) || ctx.Err() != nil {
				res.Status = CyclePartial
				res.Err = fmt.Errorf("resolve %s: %w", change.Title, resolveErr)
				return res
			}
			p.log.Error("could not resolve redirect", "title", change.Title, "revid", change.RevisionID, "err", resolveErr)
			res.Status = CyclePartial
			res.Skipped = append(res.Skipped, SkippedChange{Change: change, Err: resolveErr})
		}

		seen.Add(change.RevisionID)
		if err := p.store.Save(seen); err != nil {
			res.Status = CycleFailed
			res.Err = fmt.Errorf("save record: %w", err)
			return res
		}
		if resolveErr == nil {
			res.Changes = append(res.Changes, types.Propagation{Title: change.Title, Target: target})
		}
	}
	return res
}
