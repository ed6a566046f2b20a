package wiki

import (
	"context"
	"fmt"
	"strconv"

	"cgt.name/pkg/go-mwclient/params"

	"github.com/SAScholar/STConverterWatchingDog/internal/types"
)

// maxBatch is the largest rclimit the API grants to ordinary accounts
const maxBatch = 500

// RecentChanges lists recent edits in namespace carrying tag, newest first,
// following continuation until limit entries were read or the feed ends.
// Log entries carry no revision and are left out.
func (c *Client) RecentChanges(ctx context.Context, namespace int, tag string, limit int) ([]types.Change, error) {
	if limit <= 0 {
		limit = maxBatch
	}

	p := params.Values{
		"action":        "query",
		"list":          "recentchanges",
		"rcnamespace":   strconv.Itoa(namespace),
		"rcprop":        "title|ids",
		"rctype":        "edit|new",
		"rclimit":       strconv.Itoa(min(limit, maxBatch)),
		"formatversion": "2",
	}
	if tag != "" {
		p["rctag"] = tag
	}

	var changes []types.Change
	q := c.mw.NewQuery(p)
	for len(changes) < limit && q.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := q.Resp().GetObjectArray("query", "recentchanges")
		if err != nil {
			return nil, fmt.Errorf("recent changes: decode batch: %w", err)
		}
		if len(entries) == 0 {
			break
		}
		for _, rc := range entries {
			title, err := rc.GetString("title")
			if err != nil {
				return nil, fmt.Errorf("recent changes: entry title: %w", err)
			}
			revid, err := rc.GetInt64("revid")
			if err != nil {
				return nil, fmt.Errorf("recent changes: revid of %s: %w", title, err)
			}
			changes = append(changes, types.Change{Title: title, RevisionID: revid})
		}
	}
	if err := q.Err(); err != nil {
		return nil, fmt.Errorf("recent changes: %w", err)
	}
	if len(changes) > limit {
		changes = changes[:limit]
	}
	return changes, nil
}
