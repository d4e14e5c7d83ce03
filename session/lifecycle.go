package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/redfeed/browser"
	"github.com/hazyhaar/redfeed/locate"
)

// PageHandle is the page surface the lifecycle and actions consume. The
// browser package's Page satisfies it; tests substitute fakes.
type PageHandle interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Query(selector string) ([]locate.Element, error)
	HTML() (string, error)
	Eval(ctx context.Context, js string, args ...any) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	OnConsole(fn func(line string))
	LocalStorage(ctx context.Context) (map[string]string, error)
	SeedLocalStorage(ctx context.Context, entries map[string]string) error
	Close() error
}

// BrowsingContext is an isolated cookie/storage scope holding pages.
type BrowsingContext interface {
	SetCookies(cookies []*proto.NetworkCookie) error
	Cookies() ([]*proto.NetworkCookie, error)
	NewPage(ctx context.Context) (PageHandle, error)
	Close() error
}

// Engine is a running browser that can open browsing contexts.
type Engine interface {
	NewContext(ctx context.Context) (BrowsingContext, error)
	Close() error
}

// EngineConfig carries the per-invocation launch knobs.
type EngineConfig struct {
	Bin      string
	Headless bool
}

// EngineFactory launches an engine. The default factory starts a real
// Chromium via the browser package.
type EngineFactory func(ctx context.Context, cfg EngineConfig) (Engine, error)

// Invocation describes one tool call's session needs.
type Invocation struct {
	// Profile selects the named saved session; CookiesPath overrides it with
	// an explicit file.
	Profile     string
	CookiesPath string

	// Bin is the browser binary path, empty for auto-detection.
	Bin string

	// DebugDir, when set, receives dom.html, page.png, and console.log from
	// teardown. Trace additionally records a trace.zip; it has no effect
	// without DebugDir.
	DebugDir string
	Trace    bool

	// AllowNoSession lets the invocation proceed with an empty cookie jar.
	// Login flows set it; everything else fails fast with ErrNotLoggedIn.
	AllowNoSession bool
}

// Manager owns the run-one-action lifecycle: acquire engine, context, and
// page in order, hand an ActionContext to the handler, then tear everything
// down in reverse with diagnostics captured first.
type Manager struct {
	store   *Store
	factory EngineFactory
	log     *slog.Logger
}

// NewManager builds a manager over store. A nil factory launches real
// browsers; a nil logger uses slog.Default.
func NewManager(store *Store, factory EngineFactory, log *slog.Logger) *Manager {
	if factory == nil {
		factory = launchEngine
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: store, factory: factory, log: log}
}

// Store returns the session store the manager resolves blobs through.
func (m *Manager) Store() *Store { return m.store }

func launchEngine(ctx context.Context, cfg EngineConfig) (Engine, error) {
	e, err := browser.Launch(ctx, browser.Options{Bin: cfg.Bin, Headless: cfg.Headless})
	if err != nil {
		return nil, err
	}
	return &realEngine{e: e}, nil
}

// realEngine narrows *browser.Engine to the Engine interface. The extra
// indirection exists because NewContext must return the interface type.
type realEngine struct{ e *browser.Engine }

func (r *realEngine) NewContext(ctx context.Context) (BrowsingContext, error) {
	c, err := r.e.NewContext(ctx)
	if err != nil {
		return nil, err
	}
	return &realContext{c: c}, nil
}

func (r *realEngine) Close() error { return r.e.Close() }

type realContext struct{ c *browser.Context }

func (r *realContext) SetCookies(cookies []*proto.NetworkCookie) error {
	return r.c.SetCookies(cookies)
}

func (r *realContext) Cookies() ([]*proto.NetworkCookie, error) { return r.c.Cookies() }

func (r *realContext) NewPage(ctx context.Context) (PageHandle, error) {
	return r.c.NewPage(ctx)
}

func (r *realContext) Close() error { return r.c.Close() }

// Run executes handler inside a fully acquired session scope. The handler's
// error is what Run returns; teardown failures are logged and never mask it.
func (m *Manager) Run(ctx context.Context, inv Invocation, handler func(ac *ActionContext) error) error {
	path := m.store.Resolve(inv.CookiesPath, inv.Profile)

	blob, err := m.store.Load(path)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			if !inv.AllowNoSession {
				return fmt.Errorf("%w (looked in %s)", ErrNotLoggedIn, path)
			}
			blob = &Blob{}
		} else {
			return err
		}
	}

	engine, err := m.factory(ctx, EngineConfig{Bin: inv.Bin, Headless: true})
	if err != nil {
		return fmt.Errorf("session: launch browser: %w", err)
	}
	defer m.closeQuiet("engine", engine.Close)

	bctx, err := engine.NewContext(ctx)
	if err != nil {
		return fmt.Errorf("session: open context: %w", err)
	}
	defer m.closeQuiet("context", bctx.Close)

	if len(blob.Cookies) > 0 {
		if err := bctx.SetCookies(blob.Cookies); err != nil {
			return fmt.Errorf("session: replay cookies: %w", err)
		}
	}

	page, err := bctx.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("session: open page: %w", err)
	}

	var console *consoleLog
	if inv.DebugDir != "" {
		console = &consoleLog{}
		page.OnConsole(console.add)
	}

	var tr *tracer
	if inv.Trace && inv.DebugDir != "" {
		tr = newTracer()
	}

	ac := &ActionContext{
		page:   page,
		bctx:   bctx,
		blob:   blob,
		path:   path,
		store:  m.store,
		tracer: tr,
		log:    m.log,
		seeded: map[string]bool{},
	}

	actErr := handler(ac)

	// Teardown order: diagnostics while the page is still alive, then the
	// trace, then the page itself. Context and engine close via defers.
	if inv.DebugDir != "" {
		m.captureDiagnostics(ctx, inv.DebugDir, page, console, tr)
	}
	m.closeQuiet("page", page.Close)

	return actErr
}

// RunFor runs fn inside a session scope and returns its value. It exists so
// tool handlers can return typed results without plumbing an out-parameter.
func RunFor[T any](m *Manager, ctx context.Context, inv Invocation, fn func(ac *ActionContext) (T, error)) (T, error) {
	var out T
	err := m.Run(ctx, inv, func(ac *ActionContext) error {
		v, err := fn(ac)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (m *Manager) closeQuiet(what string, fn func() error) {
	if err := fn(); err != nil {
		m.log.Warn("session: teardown", "what", what, "error", err)
	}
}

// captureDiagnostics writes dom.html, page.png, console.log, and trace.zip
// into dir. Every artifact is attempted even when an earlier one fails; a
// failed screenshot leaves screenshot-error.log in its place.
func (m *Manager) captureDiagnostics(ctx context.Context, dir string, page PageHandle, console *consoleLog, tr *tracer) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		m.log.Warn("session: diagnostics dir", "dir", dir, "error", err)
		return
	}

	// Diagnostics run after the action, possibly after its deadline. Give
	// capture its own short budget.
	capCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	if html, err := page.HTML(); err != nil {
		m.log.Warn("session: capture dom", "error", err)
	} else if err := os.WriteFile(filepath.Join(dir, "dom.html"), []byte(html), 0o644); err != nil {
		m.log.Warn("session: write dom.html", "error", err)
	}

	if png, err := page.Screenshot(capCtx); err != nil {
		msg := fmt.Sprintf("screenshot failed: %v\n", err)
		if werr := os.WriteFile(filepath.Join(dir, "screenshot-error.log"), []byte(msg), 0o644); werr != nil {
			m.log.Warn("session: write screenshot-error.log", "error", werr)
		}
	} else if err := os.WriteFile(filepath.Join(dir, "page.png"), png, 0o644); err != nil {
		m.log.Warn("session: write page.png", "error", err)
	}

	if console != nil {
		if err := os.WriteFile(filepath.Join(dir, "console.log"), []byte(console.dump()), 0o644); err != nil {
			m.log.Warn("session: write console.log", "error", err)
		}
	}

	if tr != nil {
		if err := tr.writeZip(filepath.Join(dir, "trace.zip")); err != nil {
			m.log.Warn("session: write trace.zip", "error", err)
		}
	}
}
