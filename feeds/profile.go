package feeds

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/hazyhaar/redfeed/locate"
	"github.com/hazyhaar/redfeed/session"
)

// Profile is a scraped user page: identity fields, follower/like counters,
// and the user's published feed entries.
type Profile struct {
	BasicInfo    map[string]any   `json:"basic_info"`
	Interactions []map[string]any `json:"interactions"`
	Feeds        []map[string]any `json:"feeds"`
}

var myProfileChain = locate.Chain{
	Candidates: []locate.Candidate{
		locate.Visible("li.user.side-bar-component .channel", 10*time.Second),
		locate.Visible("li.user.side-bar-component", 10*time.Second),
	},
}

// UserProfile opens a user's page and scrapes it from the page state.
func UserProfile(ctx context.Context, ac *session.ActionContext, userID, xsecToken string) (*Profile, error) {
	target := fmt.Sprintf("https://www.xiaohongshu.com/user/profile/%s?xsec_token=%s&xsec_source=pc_note",
		url.PathEscape(userID), url.QueryEscape(xsecToken))
	if err := ac.Navigate(ctx, target); err != nil {
		return nil, err
	}
	if err := settle(ctx, 2*time.Second); err != nil {
		return nil, err
	}
	return scrapeProfile(ctx, ac)
}

// MyProfile reaches the logged-in user's own page through the sidebar entry,
// the only place their user id is guaranteed to be linked from.
func MyProfile(ctx context.Context, ac *session.ActionContext) (*Profile, error) {
	if err := ac.Navigate(ctx, exploreURL); err != nil {
		return nil, err
	}
	entry, err := ac.Locate(ctx, myProfileChain)
	if err != nil {
		return nil, fmt.Errorf("feeds: profile sidebar entry: %w", err)
	}
	if err := entry.Click(ctx); err != nil {
		return nil, fmt.Errorf("feeds: open own profile: %w", err)
	}
	if err := settle(ctx, 2*time.Second); err != nil {
		return nil, err
	}
	return scrapeProfile(ctx, ac)
}

func scrapeProfile(ctx context.Context, ac *session.ActionContext) (*Profile, error) {
	state, err := initialState(ctx, ac.Page())
	if err != nil {
		return nil, err
	}

	p := &Profile{}
	if v, ok := dig(state, "user", "userPageData", "basicInfo"); ok {
		if m, ok := v.(map[string]any); ok {
			p.BasicInfo = m
		}
	}
	if list, ok := digList(state, "user", "userPageData", "interactions"); ok {
		p.Interactions = list
	}
	if list, ok := digList(state, "user", "notes"); ok && len(list) > 0 {
		p.Feeds = list
	} else if nested, ok := dig(state, "user", "notes"); ok {
		// The notes grid is sometimes a list of per-column lists.
		if cols, ok := nested.([]any); ok {
			for _, col := range cols {
				if items, ok := col.([]any); ok {
					for _, item := range items {
						if m, ok := unwrap(item).(map[string]any); ok {
							p.Feeds = append(p.Feeds, m)
						}
					}
				}
			}
		}
	}
	if p.BasicInfo == nil && len(p.Feeds) == 0 {
		return nil, fmt.Errorf("feeds: profile data not in page state")
	}
	return p, nil
}
