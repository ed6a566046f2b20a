package wiki

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"cgt.name/pkg/go-mwclient/params"

	"github.com/SAScholar/STConverterWatchingDog/internal/types"
)

// defaultRedirectKeywords are accepted on every wiki. The Chinese ones cover
// zh.wikipedia when siteinfo cannot be read.
var defaultRedirectKeywords = []string{"REDIRECT", "重定向", "重新导向", "重新導向"}

// redirectSyntax recognizes the redirect directive at the start of a page
type redirectSyntax struct {
	keyword string
	pattern *regexp.Regexp
}

var defaultRedirect = newRedirectSyntax(nil)

// newRedirectSyntax builds a matcher for the given magic word aliases plus
// the defaults. Aliases may carry their leading "#".
func newRedirectSyntax(aliases []string) *redirectSyntax {
	var words []string
	for _, a := range append(slices.Clone(aliases), defaultRedirectKeywords...) {
		a = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(a), "#"))
		if a == "" || slices.Contains(words, a) {
			continue
		}
		words = append(words, a)
	}
	// longest first so a keyword never stops at one of its prefixes
	slices.SortStableFunc(words, func(a, b string) int { return len(b) - len(a) })

	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return &redirectSyntax{
		keyword: "#REDIRECT",
		pattern: regexp.MustCompile(`(?is)^(\s*#\s*(?:` + strings.Join(quoted, "|") + `)\s*:?\s*)\[\[([^\]|]*)(?:\|[^\]]*)?\]\]`),
	}
}

// redirectSyntax returns the wiki's redirect matcher, reading the "redirect"
// magic word from siteinfo on first use. A failed lookup falls back to the
// defaults and is retried on the next call.
func (c *Client) redirectSyntax(ctx context.Context) *redirectSyntax {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.redirect != nil {
		return c.redirect
	}

	var resp struct {
		Query struct {
			MagicWords []struct {
				Name    string   `json:"name"`
				Aliases []string `json:"aliases"`
			} `json:"magicwords"`
		} `json:"query"`
	}
	err := c.get(ctx, params.Values{
		"action": "query",
		"meta":   "siteinfo",
		"siprop": "magicwords",
	}, &resp)
	if err != nil {
		return defaultRedirect
	}
	c.redirect = defaultRedirect
	for _, mw := range resp.Query.MagicWords {
		if mw.Name == "redirect" && len(mw.Aliases) > 0 {
			c.redirect = newRedirectSyntax(mw.Aliases)
			break
		}
	}
	return c.redirect
}

// directive is the text of a fresh redirect page pointing at target
func (s *redirectSyntax) directive(target types.PageRef) string {
	return s.keyword + " [[" + target.Link() + "]]"
}

// retarget replaces the link of the redirect directive in text. It reports
// whether text held a redirect directive at all.
func (s *redirectSyntax) retarget(text string, target types.PageRef) (string, bool) {
	loc := s.pattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, false
	}
	keyword := text[loc[2]:loc[3]]
	return keyword + "[[" + target.Link() + "]]" + text[loc[1]:], true
}

// currentTarget extracts the link of the redirect directive in text
func (s *redirectSyntax) currentTarget(text string) (types.PageRef, bool) {
	m := s.pattern.FindStringSubmatch(text)
	if m == nil {
		return types.PageRef{}, false
	}
	link := strings.TrimSpace(m[2])
	ref := types.PageRef{Title: link}
	if i := strings.Index(link, "#"); i >= 0 {
		ref.Title = strings.TrimSpace(link[:i])
		ref.Fragment = strings.TrimSpace(link[i+1:])
	}
	return ref, true
}
