package feeds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/redfeed/locate"
	"github.com/hazyhaar/redfeed/session"
)

// Comment editor and submit chains. The editor has no generic fallback; a
// page without any editor-shaped element is a page where commenting is
// closed, and clicking an arbitrary node would do more harm than failing.
var (
	commentEditorChain = locate.Chain{
		Candidates: []locate.Candidate{
			locate.Visible("div.input-box div.content-edit p.content-input", 30*time.Second),
			locate.Visible("div.input-box div.content-edit span", 30*time.Second),
			locate.Visible("textarea", 30*time.Second),
			locate.Visible("div[contenteditable='true']", 30*time.Second),
		},
	}

	commentSubmitChain = locate.Chain{
		Candidates: []locate.Candidate{
			locate.Attached("div.bottom button.submit", 10*time.Second),
			locate.Attached("button.submit", 10*time.Second),
			locate.Attached("div.input-box button", 10*time.Second),
		},
		Fallback: "button",
	}
)

// PostComment opens the note and submits content through the comment editor.
func PostComment(ctx context.Context, ac *session.ActionContext, feedID, xsecToken, content string) error {
	if content == "" {
		return fmt.Errorf("feeds: empty comment content")
	}
	if err := ac.Navigate(ctx, noteURL(feedID, xsecToken)); err != nil {
		return err
	}
	if err := settle(ctx, 2*time.Second); err != nil {
		return err
	}

	editor, err := ac.Locate(ctx, commentEditorChain)
	if err != nil {
		return fmt.Errorf("feeds: comment editor: %w", err)
	}
	if err := editor.Click(ctx); err != nil {
		return fmt.Errorf("feeds: focus editor: %w", err)
	}
	if err := editor.Input(ctx, content); err != nil {
		return fmt.Errorf("feeds: type comment: %w", err)
	}

	submit, err := ac.Locate(ctx, commentSubmitChain)
	if err != nil {
		return fmt.Errorf("feeds: comment submit: %w", err)
	}
	if err := submit.Click(ctx); err != nil {
		return fmt.Errorf("feeds: submit comment: %w", err)
	}
	// Let the submission round-trip before teardown snapshots the page.
	return settle(ctx, time.Second)
}

// Engagement toggles. The buttons flip a CSS class when active, which also
// makes the operations idempotent: liking an already-liked note is a no-op.
var (
	likeChain = locate.Chain{
		Candidates: []locate.Candidate{
			locate.Visible(".engage-bar-style .like-wrapper", 10*time.Second),
			locate.Visible(".interact-container .like-wrapper", 10*time.Second),
			locate.Visible(".like-wrapper.like-active", 10*time.Second),
		},
	}

	favoriteChain = locate.Chain{
		Candidates: []locate.Candidate{
			locate.Visible(".engage-bar-style .collect-wrapper", 10*time.Second),
			locate.Visible(".interact-container .collect-wrapper", 10*time.Second),
			locate.Visible("#note-page-collect-board-guide", 10*time.Second),
		},
	}
)

func toggleEngagement(ctx context.Context, ac *session.ActionContext, feedID, xsecToken string, chain locate.Chain, activeClass string, wantActive bool) error {
	if err := ac.Navigate(ctx, noteURL(feedID, xsecToken)); err != nil {
		return err
	}
	if err := settle(ctx, 2*time.Second); err != nil {
		return err
	}
	el, err := ac.Locate(ctx, chain)
	if err != nil {
		return err
	}
	class, err := el.Attribute(ctx, "class")
	if err != nil {
		return err
	}
	if strings.Contains(class, activeClass) == wantActive {
		return nil
	}
	if err := el.Click(ctx); err != nil {
		return err
	}
	return settle(ctx, time.Second)
}

// Like marks the note liked; a no-op when it already is.
func Like(ctx context.Context, ac *session.ActionContext, feedID, xsecToken string) error {
	return toggleEngagement(ctx, ac, feedID, xsecToken, likeChain, "like-active", true)
}

// Unlike removes a like.
func Unlike(ctx context.Context, ac *session.ActionContext, feedID, xsecToken string) error {
	return toggleEngagement(ctx, ac, feedID, xsecToken, likeChain, "like-active", false)
}

// Favorite collects the note.
func Favorite(ctx context.Context, ac *session.ActionContext, feedID, xsecToken string) error {
	return toggleEngagement(ctx, ac, feedID, xsecToken, favoriteChain, "collected", true)
}

// Unfavorite removes the note from collections.
func Unfavorite(ctx context.Context, ac *session.ActionContext, feedID, xsecToken string) error {
	return toggleEngagement(ctx, ac, feedID, xsecToken, favoriteChain, "collected", false)
}
