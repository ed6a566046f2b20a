package wiki

import (
	"context"
	"errors"
	"fmt"

	mwclient "cgt.name/pkg/go-mwclient"
	"cgt.name/pkg/go-mwclient/params"

	"github.com/SAScholar/STConverterWatchingDog/internal/types"
)

type page struct {
	Title     string     `json:"title"`
	Missing   bool       `json:"missing"`
	Invalid   bool       `json:"invalid"`
	Redirect  bool       `json:"redirect"`
	LastRevID int64      `json:"lastrevid"`
	Revisions []revision `json:"revisions"`
}

type revision struct {
	Timestamp string `json:"timestamp"`
	Slots     struct {
		Main struct {
			Content string `json:"content"`
		} `json:"main"`
	} `json:"slots"`
}

type redirectHop struct {
	From        string `json:"from"`
	To          string `json:"to"`
	ToFragment  string `json:"tofragment"`
	ToInterwiki string `json:"tointerwiki"`
}

type normalization struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type queryResponse struct {
	Query struct {
		Normalized []normalization `json:"normalized"`
		Redirects  []redirectHop   `json:"redirects"`
		Pages      []page          `json:"pages"`
	} `json:"query"`
}

// normalizedTitle returns the title the wiki used after normalizing title
func (r *queryResponse) normalizedTitle(title string) string {
	for _, n := range r.Query.Normalized {
		if n.From == title {
			return n.To
		}
	}
	return title
}

func (c *Client) pageInfo(ctx context.Context, title string) (*page, error) {
	var resp queryResponse
	err := c.get(ctx, params.Values{
		"action": "query",
		"prop":   "info",
		"titles": title,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("page info for %s: %w", title, err)
	}
	if len(resp.Query.Pages) == 0 {
		return nil, fmt.Errorf("page info for %s: empty response", title)
	}
	return &resp.Query.Pages[0], nil
}

// Exists reports whether title names an existing page
func (c *Client) Exists(ctx context.Context, title string) (bool, error) {
	p, err := c.pageInfo(ctx, title)
	if err != nil {
		return false, err
	}
	return !p.Missing && !p.Invalid, nil
}

// IsRedirect reports whether title is an existing redirect page
func (c *Client) IsRedirect(ctx context.Context, title string) (bool, error) {
	p, err := c.pageInfo(ctx, title)
	if err != nil {
		return false, err
	}
	return !p.Missing && !p.Invalid && p.Redirect, nil
}

// RedirectTarget returns the page title redirects to. Only the first hop
// is followed.
func (c *Client) RedirectTarget(ctx context.Context, title string) (types.PageRef, error) {
	var resp queryResponse
	err := c.get(ctx, params.Values{
		"action":    "query",
		"prop":      "info",
		"titles":    title,
		"redirects": "1",
	}, &resp)
	if err != nil {
		return types.PageRef{}, fmt.Errorf("resolve redirect %s: %w", title, err)
	}

	source := resp.normalizedTitle(title)

	var hop *redirectHop
	for i := range resp.Query.Redirects {
		r := &resp.Query.Redirects[i]
		if types.SameTitle(r.From, source) {
			hop = r
		}
	}
	if hop == nil {
		for _, p := range resp.Query.Pages {
			if types.SameTitle(p.Title, source) && (p.Missing || p.Invalid) {
				return types.PageRef{}, fmt.Errorf("%s: %w", title, ErrMissingPage)
			}
		}
		return types.PageRef{}, fmt.Errorf("%s: %w", title, ErrNotRedirect)
	}
	if hop.ToInterwiki != "" {
		return types.PageRef{}, fmt.Errorf("%s -> %s:%s: %w", title, hop.ToInterwiki, hop.To, ErrInterwikiRedirect)
	}
	for _, r := range resp.Query.Redirects {
		if types.SameTitle(r.To, source) {
			return types.PageRef{}, fmt.Errorf("%s: %w", title, ErrCircularRedirect)
		}
	}

	target := types.PageRef{Title: hop.To, Fragment: hop.ToFragment, Site: c.site}
	if target.Fragment != "" {
		ok, err := c.hasSection(ctx, target.Title, target.Fragment)
		if err != nil {
			return types.PageRef{}, fmt.Errorf("check section of %s: %w", target, err)
		}
		if !ok {
			return types.PageRef{}, fmt.Errorf("%s -> %s: %w", title, target, ErrSection)
		}
	}
	return target, nil
}

func (c *Client) hasSection(ctx context.Context, title, fragment string) (bool, error) {
	var resp struct {
		Parse struct {
			Sections []struct {
				Line   string `json:"line"`
				Anchor string `json:"anchor"`
			} `json:"sections"`
		} `json:"parse"`
	}
	err := c.get(ctx, params.Values{
		"action":    "parse",
		"page":      title,
		"prop":      "sections",
		"redirects": "1",
	}, &resp)
	if err != nil {
		return false, err
	}
	for _, s := range resp.Parse.Sections {
		if types.SameTitle(s.Anchor, fragment) || types.SameTitle(s.Line, fragment) {
			return true, nil
		}
	}
	return false, nil
}

// SetOptions controls SetRedirectTarget
type SetOptions struct {
	// Create allows writing a redirect to a page that does not exist yet.
	Create bool
	// Force overwrites a page that is not a redirect.
	Force   bool
	Summary string
}

// Edit describes the outcome of SetRedirectTarget
type Edit struct {
	Title    string
	Previous types.PageRef
	Changed  bool
}

// SetRedirectTarget points the redirect at title to target and saves the
// page. When title already points there nothing is saved and Changed is
// false.
func (c *Client) SetRedirectTarget(ctx context.Context, title string, target types.PageRef, opts SetOptions) (*Edit, error) {
	var resp queryResponse
	err := c.get(ctx, params.Values{
		"action":  "query",
		"prop":    "info|revisions",
		"rvprop":  "content|timestamp",
		"rvslots": "main",
		"titles":  title,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", title, err)
	}
	if len(resp.Query.Pages) == 0 {
		return nil, fmt.Errorf("read %s: empty response", title)
	}
	p := resp.Query.Pages[0]
	edit := &Edit{Title: p.Title}
	syntax := c.redirectSyntax(ctx)

	var text, baseTimestamp string
	if len(p.Revisions) > 0 {
		text = p.Revisions[0].Slots.Main.Content
		baseTimestamp = p.Revisions[0].Timestamp
	}

	var newText string
	switch {
	case p.Missing || p.Invalid:
		if !opts.Create {
			return nil, fmt.Errorf("%s: %w", title, ErrMissingPage)
		}
		newText = syntax.directive(target)
	default:
		cur, isRedirect := syntax.currentTarget(text)
		if isRedirect {
			edit.Previous = cur
			if cur.Equal(target) && cur.Fragment == target.Fragment {
				return edit, nil
			}
			newText, _ = syntax.retarget(text, target)
		} else {
			if !opts.Force {
				return nil, fmt.Errorf("%s: %w", title, ErrNotRedirect)
			}
			newText = syntax.directive(target)
		}
	}

	if err := c.editLimit.Wait(ctx); err != nil {
		return nil, err
	}

	editcfg := params.Values{
		"action":  "edit",
		"title":   p.Title,
		"text":    newText,
		"summary": opts.Summary,
		"bot":     "1",
		"minor":   "1",
	}
	if !opts.Create {
		editcfg["nocreate"] = "1"
	}
	if baseTimestamp != "" {
		editcfg["basetimestamp"] = baseTimestamp
	}

	// go-mwclient fetches and caches the csrf token itself
	err = c.mw.Edit(editcfg)
	switch {
	case errors.Is(err, mwclient.ErrEditNoChange):
		return edit, nil
	case err != nil:
		return nil, fmt.Errorf("edit %s: %w", title, err)
	}
	edit.Changed = true
	return edit, nil
}
