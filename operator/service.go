// Package operator wires the session manager, the business actions, and the
// invocation log into one service and exposes every action as an MCP tool.
package operator

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/redfeed/feeds"
	"github.com/hazyhaar/redfeed/kit"
	"github.com/hazyhaar/redfeed/login"
	"github.com/hazyhaar/redfeed/observability"
	"github.com/hazyhaar/redfeed/sanitize"
	"github.com/hazyhaar/redfeed/session"
)

// Overrides are the per-call knobs every tool accepts. Unset fields fall
// through to the server config, never to a hard-coded constant.
type Overrides struct {
	Profile     string `json:"profile,omitempty"`
	CookiesPath string `json:"cookies_path,omitempty"`
	ChromeBin   string `json:"chrome_bin,omitempty"`
	DebugDir    string `json:"debug_dir,omitempty"`
	Trace       *bool  `json:"trace,omitempty"`
}

// Service executes tool calls. One browser session is acquired, used, and
// released per call.
type Service struct {
	cfg *Config
	mgr *session.Manager
	inv *observability.InvocationLogger
	log *slog.Logger
}

// NewService builds a service over cfg. The invocation logger may be nil
// when no log DB is configured.
func NewService(cfg *Config, mgr *session.Manager, inv *observability.InvocationLogger, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{cfg: cfg, mgr: mgr, inv: inv, log: log}
}

// invocation layers the per-call overrides over the server defaults.
func (svc *Service) invocation(ov Overrides, allowNoSession bool) session.Invocation {
	inv := session.Invocation{
		Profile:        svc.cfg.Profile,
		CookiesPath:    svc.cfg.CookiesPath,
		Bin:            svc.cfg.ChromeBin,
		DebugDir:       svc.cfg.DebugDir,
		Trace:          svc.cfg.Trace,
		AllowNoSession: allowNoSession,
	}
	if ov.Profile != "" {
		inv.Profile = ov.Profile
	}
	if ov.CookiesPath != "" {
		inv.CookiesPath = ov.CookiesPath
	}
	if ov.ChromeBin != "" {
		inv.Bin = ov.ChromeBin
	}
	if ov.DebugDir != "" {
		inv.DebugDir = ov.DebugDir
	}
	if ov.Trace != nil {
		inv.Trace = *ov.Trace
	}
	return inv
}

// instrument wraps an endpoint so every call lands in the invocation log
// with its tool name, profile, transport, outcome, and duration.
func (svc *Service) instrument(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		start := time.Now()
		res, err := next(ctx, req)
		if svc.inv != nil {
			svc.inv.Record(kit.GetTool(ctx), kit.GetProfile(ctx), kit.GetTransport(ctx),
				req, err, time.Since(start))
		}
		if err != nil {
			svc.log.Warn("tool call failed", "tool", kit.GetTool(ctx), "error", err,
				"duration", time.Since(start))
		} else {
			svc.log.Info("tool call", "tool", kit.GetTool(ctx), "duration", time.Since(start))
		}
		return res, err
	}
}

// --- Feed surfaces ---

// FeedsList returns the homepage feed entries with duplicated tokens
// stripped.
func (svc *Service) FeedsList(ctx context.Context, ov Overrides) ([]map[string]any, error) {
	return session.RunFor(svc.mgr, ctx, svc.invocation(ov, false), func(ac *session.ActionContext) ([]map[string]any, error) {
		list, err := feeds.List(ctx, ac)
		if err != nil {
			return nil, err
		}
		items := feeds.RawItems(list)
		sanitize.CleanFeedTokens(items)
		return items, nil
	})
}

// SearchFeeds returns keyword search results with duplicated tokens
// stripped.
func (svc *Service) SearchFeeds(ctx context.Context, ov Overrides, keyword string) ([]map[string]any, error) {
	return session.RunFor(svc.mgr, ctx, svc.invocation(ov, false), func(ac *session.ActionContext) ([]map[string]any, error) {
		list, err := feeds.Search(ctx, ac, keyword)
		if err != nil {
			return nil, err
		}
		items := feeds.RawItems(list)
		sanitize.CleanFeedTokens(items)
		return items, nil
	})
}

// FeedDetail returns one note's detail and comments.
func (svc *Service) FeedDetail(ctx context.Context, ov Overrides, feedID, xsecToken string) (*feeds.Detail, error) {
	return session.RunFor(svc.mgr, ctx, svc.invocation(ov, false), func(ac *session.ActionContext) (*feeds.Detail, error) {
		return feeds.GetDetail(ctx, ac, feedID, xsecToken)
	})
}

// PublishImage publishes an image note.
func (svc *Service) PublishImage(ctx context.Context, ov Overrides, post feeds.ImagePost) error {
	return svc.mgr.Run(ctx, svc.invocation(ov, false), func(ac *session.ActionContext) error {
		return feeds.PublishImage(ctx, ac, post)
	})
}

// PublishVideo publishes a video note.
func (svc *Service) PublishVideo(ctx context.Context, ov Overrides, post feeds.VideoPost) error {
	return svc.mgr.Run(ctx, svc.invocation(ov, false), func(ac *session.ActionContext) error {
		return feeds.PublishVideo(ctx, ac, post)
	})
}

// PostComment posts a comment under a note.
func (svc *Service) PostComment(ctx context.Context, ov Overrides, feedID, xsecToken, content string) error {
	return svc.mgr.Run(ctx, svc.invocation(ov, false), func(ac *session.ActionContext) error {
		return feeds.PostComment(ctx, ac, feedID, xsecToken, content)
	})
}

// Like, Unlike, Favorite, Unfavorite toggle engagement on a note.

func (svc *Service) Like(ctx context.Context, ov Overrides, feedID, xsecToken string) error {
	return svc.mgr.Run(ctx, svc.invocation(ov, false), func(ac *session.ActionContext) error {
		return feeds.Like(ctx, ac, feedID, xsecToken)
	})
}

func (svc *Service) Unlike(ctx context.Context, ov Overrides, feedID, xsecToken string) error {
	return svc.mgr.Run(ctx, svc.invocation(ov, false), func(ac *session.ActionContext) error {
		return feeds.Unlike(ctx, ac, feedID, xsecToken)
	})
}

func (svc *Service) Favorite(ctx context.Context, ov Overrides, feedID, xsecToken string) error {
	return svc.mgr.Run(ctx, svc.invocation(ov, false), func(ac *session.ActionContext) error {
		return feeds.Favorite(ctx, ac, feedID, xsecToken)
	})
}

func (svc *Service) Unfavorite(ctx context.Context, ov Overrides, feedID, xsecToken string) error {
	return svc.mgr.Run(ctx, svc.invocation(ov, false), func(ac *session.ActionContext) error {
		return feeds.Unfavorite(ctx, ac, feedID, xsecToken)
	})
}

// UserProfile scrapes a user's page.
func (svc *Service) UserProfile(ctx context.Context, ov Overrides, userID, xsecToken string) (*feeds.Profile, error) {
	return session.RunFor(svc.mgr, ctx, svc.invocation(ov, false), func(ac *session.ActionContext) (*feeds.Profile, error) {
		return feeds.UserProfile(ctx, ac, userID, xsecToken)
	})
}

// MyProfile scrapes the logged-in user's own page.
func (svc *Service) MyProfile(ctx context.Context, ov Overrides) (*feeds.Profile, error) {
	return session.RunFor(svc.mgr, ctx, svc.invocation(ov, false), func(ac *session.ActionContext) (*feeds.Profile, error) {
		return feeds.MyProfile(ctx, ac)
	})
}

// --- Login ---

// CheckLogin reports whether the saved session is still authenticated. It
// tolerates a missing session file and reports logged_in false.
func (svc *Service) CheckLogin(ctx context.Context, ov Overrides) (bool, error) {
	return session.RunFor(svc.mgr, ctx, svc.invocation(ov, true), func(ac *session.ActionContext) (bool, error) {
		return login.CheckStatus(ctx, ac)
	})
}

// GetLoginQRCode fetches the QR challenge for out-of-band scanning.
func (svc *Service) GetLoginQRCode(ctx context.Context, ov Overrides) (*login.QRCode, error) {
	return session.RunFor(svc.mgr, ctx, svc.invocation(ov, true), func(ac *session.ActionContext) (*login.QRCode, error) {
		return login.FetchQRCode(ctx, ac)
	})
}

// WaitForLogin polls until the QR is scanned, then persists the session.
// Returns the path the session was saved to.
func (svc *Service) WaitForLogin(ctx context.Context, ov Overrides, opts login.Options) (string, error) {
	return session.RunFor(svc.mgr, ctx, svc.invocation(ov, true), func(ac *session.ActionContext) (string, error) {
		if _, err := login.Await(ctx, ac, opts); err != nil {
			return "", err
		}
		return ac.SessionPath(), nil
	})
}
