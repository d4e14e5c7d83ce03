package feeds

import (
	"context"
	"fmt"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/redfeed/session"
)

// Detail is one note's full content plus its comment thread.
type Detail struct {
	Note     map[string]any   `json:"note"`
	Comments []map[string]any `json:"comments"`
	// Markdown is the note description with its markup sanitized and
	// converted, for callers that want readable text instead of raw HTML.
	Markdown string `json:"markdown,omitempty"`
}

var descPolicy = bluemonday.UGCPolicy()

// GetDetail opens the note page and extracts detail and comments from its
// state. The description survives in two forms: the raw state object, and a
// sanitized markdown rendering.
func GetDetail(ctx context.Context, ac *session.ActionContext, feedID, xsecToken string) (*Detail, error) {
	if err := ac.Navigate(ctx, noteURL(feedID, xsecToken)); err != nil {
		return nil, err
	}
	if err := settle(ctx, 2*time.Second); err != nil {
		return nil, err
	}
	state, err := initialState(ctx, ac.Page())
	if err != nil {
		return nil, err
	}

	noteV, ok := dig(state, "note", "noteDetailMap", feedID, "note")
	if !ok {
		return nil, fmt.Errorf("feeds: note %s not in page state", feedID)
	}
	note, ok := noteV.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("feeds: note %s has unexpected shape", feedID)
	}

	d := &Detail{Note: note}
	if comments, ok := digList(state, "note", "noteDetailMap", feedID, "comments", "list"); ok {
		d.Comments = comments
	}
	if desc, ok := note["desc"].(string); ok && desc != "" {
		d.Markdown = renderDescription(desc)
	}
	return d, nil
}

// renderDescription sanitizes untrusted note markup and converts it to
// markdown. Conversion failures fall back to the sanitized HTML rather than
// failing the whole detail fetch.
func renderDescription(desc string) string {
	clean := descPolicy.Sanitize(desc)
	md, err := htmltomarkdown.ConvertString(clean)
	if err != nil {
		return clean
	}
	return md
}
