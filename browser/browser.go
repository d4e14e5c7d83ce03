// Package browser manages the Chrome lifecycle for one invocation: launch (or
// reuse an executable override), open an isolated incognito context, and create
// stealth pages. Each handle is exclusively owned by the scope that created it;
// nothing here is pooled or reused across invocations.
package browser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Options configures a browser launch.
type Options struct {
	// Bin is the Chrome/Chromium executable path. Empty = rod's managed browser.
	Bin string

	// Headless launches without a visible window. Default in practice: true;
	// QR login flows run headless too since the QR image is fetched from the
	// DOM, not shown on screen.
	Headless bool

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Engine owns one browser process and its rod connection.
type Engine struct {
	browser *rod.Browser
	lnch    *launcher.Launcher
	log     *slog.Logger
}

// Launch starts Chrome and connects to it. The context bounds the connection
// and every operation performed through handles derived from this engine.
func Launch(ctx context.Context, opts Options) (*Engine, error) {
	opts.defaults()

	l := launcher.New().Headless(opts.Headless)
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	// Anti-detection flag, complements the stealth page setup.
	l = l.Set("disable-blink-features", "AutomationControlled")

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	b := rod.New().ControlURL(u).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	opts.Logger.Debug("browser: launched", "url", u, "headless", opts.Headless)
	return &Engine{browser: b, lnch: l, log: opts.Logger}, nil
}

// NewContext opens an isolated incognito browsing context. Cookies and storage
// set inside it never leak into the default profile or other contexts.
func (e *Engine) NewContext(ctx context.Context) (*Context, error) {
	ib, err := e.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("browser: incognito context: %w", err)
	}
	return &Context{b: ib.Context(ctx), log: e.log}, nil
}

// Close shuts down the browser process and cleans up the launcher's
// temporary profile directory.
func (e *Engine) Close() error {
	if e.browser != nil {
		if err := e.browser.Close(); err != nil {
			e.log.Warn("browser: close", "error", err)
		}
		e.browser = nil
	}
	if e.lnch != nil {
		e.lnch.Cleanup()
		e.lnch = nil
	}
	return nil
}

// Context is one isolated browsing context inside an Engine.
type Context struct {
	b   *rod.Browser
	log *slog.Logger
}

// SetCookies seeds the context with persisted cookies.
func (c *Context) SetCookies(cookies []*proto.NetworkCookie) error {
	if len(cookies) == 0 {
		return nil
	}
	if err := c.b.SetCookies(proto.CookiesToParams(cookies)); err != nil {
		return fmt.Errorf("browser: set cookies: %w", err)
	}
	return nil
}

// Cookies returns every cookie currently held by the context.
func (c *Context) Cookies() ([]*proto.NetworkCookie, error) {
	cookies, err := c.b.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("browser: get cookies: %w", err)
	}
	return cookies, nil
}

// NewPage opens a stealth page in this context.
func (c *Context) NewPage(ctx context.Context) (*Page, error) {
	p, err := stealth.Page(c.b)
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	return &Page{p: p.Context(ctx), log: c.log}, nil
}

// Close disposes the incognito context and every page inside it.
func (c *Context) Close() error {
	if c.b == nil {
		return nil
	}
	err := proto.TargetDisposeBrowserContext{
		BrowserContextID: c.b.BrowserContextID,
	}.Call(c.b)
	c.b = nil
	if err != nil {
		return fmt.Errorf("browser: dispose context: %w", err)
	}
	return nil
}
