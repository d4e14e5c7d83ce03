// Package feeds implements the business actions against the target site:
// feed listing, search, note detail, publishing, commenting, engagement
// toggles, and profile scraping. Selectors here are data, not architecture;
// they drift with the site and are expected to need updates.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/hazyhaar/redfeed/session"
)

const (
	exploreURL = "https://www.xiaohongshu.com/explore"
	searchURL  = "https://www.xiaohongshu.com/search_result?keyword=%s&source=web_explore_feed"
)

// ErrNoFeeds reports a feed surface whose state held no entries, which in
// practice means the session is not logged in or the page failed to render.
var ErrNoFeeds = errors.New("feeds: no feed entries on page")

// Feed is one feed entry with its identifiers pulled up and the raw state
// object preserved for the caller.
type Feed struct {
	ID        string
	XsecToken string
	Raw       map[string]any
}

func feedFromRaw(raw map[string]any) Feed {
	f := Feed{Raw: raw}
	if id, ok := raw["id"].(string); ok {
		f.ID = id
	}
	if tok, ok := raw["xsecToken"].(string); ok {
		f.XsecToken = tok
	}
	return f
}

// noteURL builds the canonical note address used by detail, comment, and
// engagement actions.
func noteURL(feedID, xsecToken string) string {
	return fmt.Sprintf("https://www.xiaohongshu.com/explore/%s?xsec_token=%s&xsec_source=pc_feed",
		url.PathEscape(feedID), url.QueryEscape(xsecToken))
}

// List returns the homepage feed entries from the explore page's state.
func List(ctx context.Context, ac *session.ActionContext) ([]Feed, error) {
	if err := ac.Navigate(ctx, exploreURL); err != nil {
		return nil, err
	}
	state, err := initialState(ctx, ac.Page())
	if err != nil {
		return nil, err
	}
	raws, ok := digList(state, "feed", "feeds")
	if !ok || len(raws) == 0 {
		return nil, ErrNoFeeds
	}
	return collect(raws), nil
}

// Search runs a keyword search and returns the result entries.
func Search(ctx context.Context, ac *session.ActionContext, keyword string) ([]Feed, error) {
	if keyword == "" {
		return nil, errors.New("feeds: empty search keyword")
	}
	if err := ac.Navigate(ctx, fmt.Sprintf(searchURL, url.QueryEscape(keyword))); err != nil {
		return nil, err
	}
	// Results stream in after load; give the state a moment to settle.
	if err := settle(ctx, 2*time.Second); err != nil {
		return nil, err
	}
	state, err := initialState(ctx, ac.Page())
	if err != nil {
		return nil, err
	}
	raws, ok := digList(state, "search", "feeds")
	if !ok || len(raws) == 0 {
		return nil, ErrNoFeeds
	}
	return collect(raws), nil
}

func collect(raws []map[string]any) []Feed {
	out := make([]Feed, 0, len(raws))
	for _, raw := range raws {
		out = append(out, feedFromRaw(raw))
	}
	return out
}

// RawItems strips a feed list back to its raw state objects, the shape the
// sanitizer and the tool layer work with.
func RawItems(feeds []Feed) []map[string]any {
	out := make([]map[string]any, len(feeds))
	for i, f := range feeds {
		out[i] = f.Raw
	}
	return out
}

// settle waits for d or until ctx is cancelled.
func settle(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
