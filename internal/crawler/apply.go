package crawler

import (
	"context"
	"errors"

	"github.com/SAScholar/STConverterWatchingDog/internal/types"
	"github.com/SAScholar/STConverterWatchingDog/internal/variant"
	"github.com/SAScholar/STConverterWatchingDog/internal/wiki"
)

// Apply points the variant redirects of every changed page at the page's
// new target. Failures are logged per candidate and never undo earlier
// edits.
func (p *Propagator) Apply(ctx context.Context, changes []types.Propagation) {
	for _, change := range changes {
		if ctx.Err() != nil {
			return
		}
		p.applyChange(ctx, change)
	}
}

func (p *Propagator) applyChange(ctx context.Context, change types.Propagation) {
	exists, err := p.wiki.Exists(ctx, change.Title)
	if err != nil {
		p.log.Error("failed to check page", "title", change.Title, "err", err)
		return
	}
	if !exists {
		p.log.Warn("changed page no longer exists", "title", change.Title)
		return
	}

	titles, err := variant.Titles(p.conv, change.Title, p.opts.Mode)
	if err != nil {
		p.log.Error("failed to compute variant titles", "title", change.Title, "err", err)
		return
	}

	done := make(map[string]bool, len(titles))
	for _, candidate := range titles {
		if types.SameTitle(candidate, change.Title) || done[candidate] {
			p.log.Debug("variant title needs no edit", "title", change.Title, "candidate", candidate)
			continue
		}
		done[candidate] = true
		p.applyCandidate(ctx, change, candidate)
	}
}

func (p *Propagator) applyCandidate(ctx context.Context, change types.Propagation, candidate string) {
	isRedirect, err := p.wiki.IsRedirect(ctx, candidate)
	if err != nil {
		p.progress.ApplyFailed()
		p.log.Error("failed to check candidate", "candidate", candidate, "err", err)
		return
	}
	if !isRedirect {
		p.progress.Skipped()
		p.log.Warn("candidate is not a redirect or does not exist, leaving it alone", "candidate", candidate, "source", change.Title)
		return
	}

	if p.opts.DryRun {
		p.log.Info("dry run: would retarget redirect", "page", candidate, "target", change.Target.Link())
		return
	}

	edit, err := p.wiki.SetRedirectTarget(ctx, candidate, change.Target, wiki.SetOptions{Summary: p.opts.Summary})
	switch {
	case errors.Is(err, wiki.ErrNotRedirect), errors.Is(err, wiki.ErrMissingPage):
		p.progress.Skipped()
		p.log.Warn("candidate is not a redirect or does not exist, leaving it alone", "candidate", candidate, "source", change.Title)
		return
	case err != nil:
		p.progress.ApplyFailed()
		p.log.Error("failed to retarget redirect", "page", candidate, "target", change.Target.Link(), "err", err)
		return
	}
	if !edit.Changed {
		p.log.Debug("redirect already points at target", "page", candidate, "target", change.Target.Link())
		return
	}
	p.progress.Retargeted()
	p.log.Info("retargeted redirect", "page", edit.Title, "from", edit.Previous.Link(), "to", change.Target.Link(), "source", change.Title)
}
