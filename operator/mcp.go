package operator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/redfeed/feeds"
	"github.com/hazyhaar/redfeed/kit"
	"github.com/hazyhaar/redfeed/login"
)

// RegisterMCP registers every tool on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerFeedsList(srv)
	svc.registerSearchFeeds(srv)
	svc.registerFeedDetail(srv)
	svc.registerPublishImage(srv)
	svc.registerPublishVideo(srv)
	svc.registerPostComment(srv)
	svc.registerLikeFeed(srv)
	svc.registerUnlikeFeed(srv)
	svc.registerFavoriteFeed(srv)
	svc.registerUnfavoriteFeed(srv)
	svc.registerUserProfile(srv)
	svc.registerMyProfile(srv)
	svc.registerCheckLogin(srv)
	svc.registerGetLoginQRCode(srv)
	svc.registerWaitForLogin(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// overrideProps merges the per-call override properties every tool accepts
// into a tool's own properties.
func overrideProps(extra map[string]any) map[string]any {
	props := map[string]any{
		"profile":      map[string]any{"type": "string", "description": "Named session profile"},
		"cookies_path": map[string]any{"type": "string", "description": "Explicit session file path"},
		"chrome_bin":   map[string]any{"type": "string", "description": "Browser binary override"},
		"debug_dir":    map[string]any{"type": "string", "description": "Directory for diagnostics artifacts"},
		"trace":        map[string]any{"type": "boolean", "description": "Record an interaction trace"},
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

// decodeArgs unmarshals tool arguments into T and enriches the context with
// the call's profile for the invocation log.
func decodeArgs[T any](getOverrides func(*T) Overrides) func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		p := new(T)
		if len(r.Params.Arguments) > 0 {
			if err := json.Unmarshal(r.Params.Arguments, p); err != nil {
				return nil, err
			}
		}
		ov := getOverrides(p)
		return &kit.MCPDecodeResult{
			Request: p,
			EnrichCtx: func(ctx context.Context) context.Context {
				return kit.WithProfile(ctx, ov.Profile)
			},
		}, nil
	}
}

// overridesReq is the request shape for tools that take only the common
// per-call overrides.
type overridesReq struct {
	Overrides
}

// --- Feeds ---

func (svc *Service) registerFeedsList(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "feeds_list",
		Description: "Fetch homepage feed entries. Requires a logged-in session.",
		InputSchema: inputSchema(overrideProps(nil), nil),
	}

	endpoint := svc.instrument(func(ctx context.Context, r any) (any, error) {
		p := r.(*overridesReq)
		return svc.FeedsList(ctx, p.Overrides)
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs(func(p *overridesReq) Overrides { return p.Overrides }))
}

func (svc *Service) registerSearchFeeds(srv *mcp.Server) {
	type req struct {
		Overrides
		Keyword string `json:"keyword"`
	}

	tool := &mcp.Tool{
		Name:        "search_feeds",
		Description: "Search feeds for a keyword.",
		InputSchema: inputSchema(overrideProps(map[string]any{
			"keyword": map[string]any{"type": "string", "description": "Search keyword"},
		}), []string{"keyword"}),
	}

	endpoint := svc.instrument(func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.SearchFeeds(ctx, p.Overrides, p.Keyword)
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs(func(p *req) Overrides { return p.Overrides }))
}

func (svc *Service) registerFeedDetail(srv *mcp.Server) {
	type req struct {
		Overrides
		FeedID    string `json:"feed_id"`
		XsecToken string `json:"xsec_token"`
	}

	tool := &mcp.Tool{
		Name:        "feed_detail",
		Description: "Return note detail and comments for one feed entry.",
		InputSchema: inputSchema(overrideProps(map[string]any{
			"feed_id":    map[string]any{"type": "string", "description": "Feed entry ID"},
			"xsec_token": map[string]any{"type": "string", "description": "Access token from the feed entry"},
		}), []string{"feed_id", "xsec_token"}),
	}

	endpoint := svc.instrument(func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.FeedDetail(ctx, p.Overrides, p.FeedID, p.XsecToken)
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs(func(p *req) Overrides { return p.Overrides }))
}

// --- Publishing ---

func (svc *Service) registerPublishImage(srv *mcp.Server) {
	type req struct {
		Overrides
		Title      string   `json:"title"`
		Content    string   `json:"content"`
		ImagePaths []string `json:"image_paths"`
		Tags       []string `json:"tags,omitempty"`
	}

	tool := &mcp.Tool{
		Name:        "publish_image",
		Description: "Publish an image note with title, content, and tags.",
		InputSchema: inputSchema(overrideProps(map[string]any{
			"title":       map[string]any{"type": "string", "description": "Note title"},
			"content":     map[string]any{"type": "string", "description": "Note body"},
			"image_paths": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Local image file paths"},
			"tags":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Topic tags"},
		}), []string{"title", "content", "image_paths"}),
	}

	endpoint := svc.instrument(func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		err := svc.PublishImage(ctx, p.Overrides, feeds.ImagePost{
			Title:      p.Title,
			Content:    p.Content,
			ImagePaths: p.ImagePaths,
			Tags:       p.Tags,
		})
		if err != nil {
			return nil, err
		}
		return map[string]string{"status": "submitted"}, nil
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs(func(p *req) Overrides { return p.Overrides }))
}

func (svc *Service) registerPublishVideo(srv *mcp.Server) {
	type req struct {
		Overrides
		Title     string   `json:"title"`
		Content   string   `json:"content"`
		VideoPath string   `json:"video_path"`
		Tags      []string `json:"tags,omitempty"`
	}

	tool := &mcp.Tool{
		Name:        "publish_video",
		Description: "Publish a video note with title, content, and tags.",
		InputSchema: inputSchema(overrideProps(map[string]any{
			"title":      map[string]any{"type": "string", "description": "Note title"},
			"content":    map[string]any{"type": "string", "description": "Note body"},
			"video_path": map[string]any{"type": "string", "description": "Local video file path"},
			"tags":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Topic tags"},
		}), []string{"title", "content", "video_path"}),
	}

	endpoint := svc.instrument(func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		err := svc.PublishVideo(ctx, p.Overrides, feeds.VideoPost{
			Title:     p.Title,
			Content:   p.Content,
			VideoPath: p.VideoPath,
			Tags:      p.Tags,
		})
		if err != nil {
			return nil, err
		}
		return map[string]string{"status": "submitted"}, nil
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs(func(p *req) Overrides { return p.Overrides }))
}

// --- Engagement ---

func (svc *Service) registerPostComment(srv *mcp.Server) {
	type req struct {
		Overrides
		FeedID    string `json:"feed_id"`
		XsecToken string `json:"xsec_token"`
		Content   string `json:"content"`
	}

	tool := &mcp.Tool{
		Name:        "post_comment",
		Description: "Post a comment under a feed entry.",
		InputSchema: inputSchema(overrideProps(map[string]any{
			"feed_id":    map[string]any{"type": "string", "description": "Feed entry ID"},
			"xsec_token": map[string]any{"type": "string", "description": "Access token from the feed entry"},
			"content":    map[string]any{"type": "string", "description": "Comment text"},
		}), []string{"feed_id", "xsec_token", "content"}),
	}

	endpoint := svc.instrument(func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if err := svc.PostComment(ctx, p.Overrides, p.FeedID, p.XsecToken, p.Content); err != nil {
			return nil, err
		}
		return map[string]string{"status": "submitted"}, nil
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs(func(p *req) Overrides { return p.Overrides }))
}

type engageReq struct {
	Overrides
	FeedID    string `json:"feed_id"`
	XsecToken string `json:"xsec_token"`
}

func engageSchema() map[string]any {
	return inputSchema(overrideProps(map[string]any{
		"feed_id":    map[string]any{"type": "string", "description": "Feed entry ID"},
		"xsec_token": map[string]any{"type": "string", "description": "Access token from the feed entry"},
	}), []string{"feed_id", "xsec_token"})
}

func (svc *Service) registerEngage(srv *mcp.Server, name, description string, do func(context.Context, Overrides, string, string) error) {
	tool := &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: engageSchema(),
	}

	endpoint := svc.instrument(func(ctx context.Context, r any) (any, error) {
		p := r.(*engageReq)
		if err := do(ctx, p.Overrides, p.FeedID, p.XsecToken); err != nil {
			return nil, err
		}
		return map[string]string{"status": "submitted"}, nil
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs(func(p *engageReq) Overrides { return p.Overrides }))
}

func (svc *Service) registerLikeFeed(srv *mcp.Server) {
	svc.registerEngage(srv, "like_feed", "Like a feed entry.", svc.Like)
}

func (svc *Service) registerUnlikeFeed(srv *mcp.Server) {
	svc.registerEngage(srv, "unlike_feed", "Remove a like from a feed entry.", svc.Unlike)
}

func (svc *Service) registerFavoriteFeed(srv *mcp.Server) {
	svc.registerEngage(srv, "favorite_feed", "Collect a feed entry.", svc.Favorite)
}

func (svc *Service) registerUnfavoriteFeed(srv *mcp.Server) {
	svc.registerEngage(srv, "unfavorite_feed", "Remove a feed entry from collections.", svc.Unfavorite)
}

// --- Profiles ---

func (svc *Service) registerUserProfile(srv *mcp.Server) {
	type req struct {
		Overrides
		UserID    string `json:"user_id"`
		XsecToken string `json:"xsec_token"`
	}

	tool := &mcp.Tool{
		Name:        "user_profile",
		Description: "Fetch a user's profile information and published feeds.",
		InputSchema: inputSchema(overrideProps(map[string]any{
			"user_id":    map[string]any{"type": "string", "description": "User ID"},
			"xsec_token": map[string]any{"type": "string", "description": "Access token from a feed entry by this user"},
		}), []string{"user_id", "xsec_token"}),
	}

	endpoint := svc.instrument(func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.UserProfile(ctx, p.Overrides, p.UserID, p.XsecToken)
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs(func(p *req) Overrides { return p.Overrides }))
}

func (svc *Service) registerMyProfile(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "my_profile",
		Description: "Fetch the logged-in user's own profile.",
		InputSchema: inputSchema(overrideProps(nil), nil),
	}

	endpoint := svc.instrument(func(ctx context.Context, r any) (any, error) {
		p := r.(*overridesReq)
		return svc.MyProfile(ctx, p.Overrides)
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs(func(p *overridesReq) Overrides { return p.Overrides }))
}

// --- Login ---

func (svc *Service) registerCheckLogin(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "check_login",
		Description: "Check whether the saved session is still logged in.",
		InputSchema: inputSchema(overrideProps(nil), nil),
	}

	endpoint := svc.instrument(func(ctx context.Context, r any) (any, error) {
		p := r.(*overridesReq)
		logged, err := svc.CheckLogin(ctx, p.Overrides)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"logged_in": logged}, nil
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs(func(p *overridesReq) Overrides { return p.Overrides }))
}

func (svc *Service) registerGetLoginQRCode(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "get_login_qrcode",
		Description: "Fetch the login QR code image source for out-of-band scanning.",
		InputSchema: inputSchema(overrideProps(nil), nil),
	}

	endpoint := svc.instrument(func(ctx context.Context, r any) (any, error) {
		p := r.(*overridesReq)
		return svc.GetLoginQRCode(ctx, p.Overrides)
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs(func(p *overridesReq) Overrides { return p.Overrides }))
}

func (svc *Service) registerWaitForLogin(srv *mcp.Server) {
	type req struct {
		Overrides
		TimeoutSeconds      int     `json:"timeout,omitempty"`
		PollIntervalSeconds float64 `json:"poll_interval,omitempty"`
	}

	tool := &mcp.Tool{
		Name:        "wait_for_login_complete",
		Description: "Wait for the QR login to succeed and persist the session.",
		InputSchema: inputSchema(overrideProps(map[string]any{
			"timeout":       map[string]any{"type": "integer", "description": "Overall deadline in seconds (default 240)"},
			"poll_interval": map[string]any{"type": "number", "description": "Status poll interval in seconds (default 0.5)"},
		}), nil),
	}

	endpoint := svc.instrument(func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		opts := login.Options{
			Timeout:      time.Duration(p.TimeoutSeconds) * time.Second,
			PollInterval: time.Duration(p.PollIntervalSeconds * float64(time.Second)),
		}
		path, err := svc.WaitForLogin(ctx, p.Overrides, opts)
		if err != nil {
			return nil, err
		}
		return map[string]string{"status": "logged_in", "cookies_path": path}, nil
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeArgs(func(p *req) Overrides { return p.Overrides }))
}
