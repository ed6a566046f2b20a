package types

import "strings"

// PageRef identifies a wiki page. Two refs are equal when their titles are.
type PageRef struct {
	Title    string
	Fragment string
	Site     string
}

// Equal reports whether both refs name the same page.
func (p PageRef) Equal(o PageRef) bool {
	return normalizeTitle(p.Title) == normalizeTitle(o.Title)
}

// Link renders the ref as it appears inside [[...]].
func (p PageRef) Link() string {
	if p.Fragment == "" {
		return p.Title
	}
	return p.Title + "#" + p.Fragment
}

func (p PageRef) String() string {
	return p.Link()
}

// Change is a single entry of the recent changes feed
type Change struct {
	Title      string
	RevisionID int64
}

// Propagation pairs a changed redirect with the target it now points at
type Propagation struct {
	Title  string
	Target PageRef
}

// normalizeTitle applies the wiki's own title rules: underscores are spaces
// and surrounding whitespace is ignored.
func normalizeTitle(t string) string {
	return strings.TrimSpace(strings.ReplaceAll(t, "_", " "))
}

// SameTitle compares two titles the way the wiki does.
func SameTitle(a, b string) bool {
	return normalizeTitle(a) == normalizeTitle(b)
}
