package feeds

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazyhaar/redfeed/locate"
	"github.com/hazyhaar/redfeed/session"
)

const publishURL = "https://creator.xiaohongshu.com/publish/publish?source=official"

// ImagePost is an image note to publish.
type ImagePost struct {
	Title      string
	Content    string
	ImagePaths []string
	Tags       []string
}

// VideoPost is a video note to publish.
type VideoPost struct {
	Title     string
	Content   string
	VideoPath string
	Tags      []string
}

var (
	imageTabChain = locate.Chain{
		Candidates: []locate.Candidate{
			locate.Visible("div.creator-tab:nth-child(2)", 15*time.Second),
			locate.Visible("div.creator-tab", 15*time.Second),
		},
	}

	uploadInputChain = locate.Chain{
		Candidates: []locate.Candidate{
			locate.Attached("input.upload-input", 15*time.Second),
			locate.Attached("input[type='file']", 15*time.Second),
		},
	}

	titleChain = locate.Chain{
		Candidates: []locate.Candidate{
			locate.Visible("div.titleInput input", 60*time.Second),
			locate.Visible("input.d-text[placeholder*='标题']", 60*time.Second),
			locate.Visible("input[placeholder*='标题']", 60*time.Second),
		},
	}

	bodyChain = locate.Chain{
		Candidates: []locate.Candidate{
			locate.Visible("div.ql-editor", 30*time.Second),
			locate.Visible("div[contenteditable='true']", 30*time.Second),
			locate.Visible("textarea", 30*time.Second),
		},
	}

	publishButtonChain = locate.Chain{
		Candidates: []locate.Candidate{
			locate.Visible("div.submit button.publishBtn", 30*time.Second),
			locate.Visible("button.publishBtn", 30*time.Second),
			locate.Visible("div.submit button", 30*time.Second),
		},
		Fallback: "button",
	}
)

// PublishImage drives the creator-studio upload flow for an image note:
// select the image tab, upload the files, fill title and body, submit.
func PublishImage(ctx context.Context, ac *session.ActionContext, post ImagePost) error {
	if len(post.ImagePaths) == 0 {
		return fmt.Errorf("feeds: image post needs at least one image")
	}
	paths, err := normalizePaths(post.ImagePaths)
	if err != nil {
		return err
	}

	if err := ac.Navigate(ctx, publishURL); err != nil {
		return err
	}
	if err := settle(ctx, 2*time.Second); err != nil {
		return err
	}

	// Video is the default tab; image upload lives on the second one.
	tab, err := ac.Locate(ctx, imageTabChain)
	if err != nil {
		return fmt.Errorf("feeds: image tab: %w", err)
	}
	if err := tab.Click(ctx); err != nil {
		return fmt.Errorf("feeds: select image tab: %w", err)
	}

	if err := uploadAndFill(ctx, ac, paths, post.Title, composeBody(post.Content, post.Tags)); err != nil {
		return err
	}
	return submitPost(ctx, ac)
}

// PublishVideo drives the same flow on the default video tab.
func PublishVideo(ctx context.Context, ac *session.ActionContext, post VideoPost) error {
	if post.VideoPath == "" {
		return fmt.Errorf("feeds: video post needs a video path")
	}
	paths, err := normalizePaths([]string{post.VideoPath})
	if err != nil {
		return err
	}

	if err := ac.Navigate(ctx, publishURL); err != nil {
		return err
	}
	if err := settle(ctx, 2*time.Second); err != nil {
		return err
	}

	if err := uploadAndFill(ctx, ac, paths, post.Title, composeBody(post.Content, post.Tags)); err != nil {
		return err
	}
	return submitPost(ctx, ac)
}

func uploadAndFill(ctx context.Context, ac *session.ActionContext, paths []string, title, body string) error {
	input, err := ac.Locate(ctx, uploadInputChain)
	if err != nil {
		return fmt.Errorf("feeds: upload input: %w", err)
	}
	if err := input.SetFiles(ctx, paths); err != nil {
		return fmt.Errorf("feeds: attach files: %w", err)
	}

	// The editor appears only once the upload finishes processing; the title
	// chain's long timeout covers large video uploads.
	titleEl, err := ac.Locate(ctx, titleChain)
	if err != nil {
		return fmt.Errorf("feeds: title input: %w", err)
	}
	if err := titleEl.Input(ctx, title); err != nil {
		return fmt.Errorf("feeds: fill title: %w", err)
	}

	bodyEl, err := ac.Locate(ctx, bodyChain)
	if err != nil {
		return fmt.Errorf("feeds: body editor: %w", err)
	}
	if err := bodyEl.Click(ctx); err != nil {
		return fmt.Errorf("feeds: focus body: %w", err)
	}
	if err := bodyEl.Input(ctx, body); err != nil {
		return fmt.Errorf("feeds: fill body: %w", err)
	}
	return nil
}

func submitPost(ctx context.Context, ac *session.ActionContext) error {
	btn, err := ac.Locate(ctx, publishButtonChain)
	if err != nil {
		return fmt.Errorf("feeds: publish button: %w", err)
	}
	if err := btn.Click(ctx); err != nil {
		return fmt.Errorf("feeds: submit post: %w", err)
	}
	return settle(ctx, 3*time.Second)
}

// composeBody appends tags to the content as hashtag lines, the shape the
// editor turns into topic links.
func composeBody(content string, tags []string) string {
	var b strings.Builder
	b.WriteString(content)
	for _, tag := range tags {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag == "" {
			continue
		}
		b.WriteString("\n#")
		b.WriteString(tag)
	}
	return b.String()
}

// normalizePaths expands and absolutizes upload paths, failing early on
// files that do not exist rather than mid-upload.
func normalizePaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.HasPrefix(p, "~/") {
			home, err := os.UserHomeDir()
			if err == nil {
				p = filepath.Join(home, p[2:])
			}
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("feeds: resolve %s: %w", p, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, fmt.Errorf("feeds: upload file: %w", err)
		}
		out = append(out, abs)
	}
	return out, nil
}
