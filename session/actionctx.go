package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/hazyhaar/redfeed/locate"
)

// ActionContext is what a business action receives: a live page plus the
// session plumbing around it. One ActionContext serves exactly one handler
// invocation.
type ActionContext struct {
	page   PageHandle
	bctx   BrowsingContext
	blob   *Blob
	path   string
	store  *Store
	tracer *tracer
	log    *slog.Logger

	// seeded tracks which origins already had their localStorage replayed.
	seeded map[string]bool
}

// Page exposes the raw page handle for actions that need evaluation or
// file uploads beyond the locator surface.
func (ac *ActionContext) Page() PageHandle { return ac.page }

// Logger returns the session-scoped logger.
func (ac *ActionContext) Logger() *slog.Logger { return ac.log }

// Navigate loads rawURL, replaying any saved localStorage for its origin on
// the first visit. Replay happens after the document loads since storage is
// origin-scoped, then reloads once so the app boots with the seeded state.
func (ac *ActionContext) Navigate(ctx context.Context, rawURL string) error {
	origin, err := originOf(rawURL)
	if err != nil {
		return err
	}
	if err := ac.page.Navigate(ctx, rawURL); err != nil {
		return err
	}
	ac.trace("navigate", rawURL)

	if ac.seeded[origin] {
		return nil
	}
	ac.seeded[origin] = true
	entries := ac.blob.StorageFor(origin)
	if len(entries) == 0 {
		return nil
	}
	if err := ac.page.SeedLocalStorage(ctx, entries); err != nil {
		return err
	}
	if err := ac.page.Reload(ctx); err != nil {
		return err
	}
	ac.trace("seed-storage", origin)
	return nil
}

// Locate runs the ordered-fallback locator against the current page,
// recording the winning selector in the trace.
func (ac *ActionContext) Locate(ctx context.Context, chain locate.Chain) (locate.Element, error) {
	el, sel, err := locate.Locate(ctx, ac.page, chain)
	if err != nil {
		ac.trace("locate-miss", chain.Describe())
		return nil, err
	}
	ac.trace("locate", sel)
	return el, nil
}

// StorageState captures the current session as a blob: the context's cookies
// plus the current origin's localStorage, merged over origins already known
// from the loaded blob.
func (ac *ActionContext) StorageState(ctx context.Context, currentURL string) (*Blob, error) {
	cookies, err := ac.bctx.Cookies()
	if err != nil {
		return nil, fmt.Errorf("session: capture cookies: %w", err)
	}
	out := &Blob{Cookies: cookies, Origins: append([]OriginState(nil), ac.blob.Origins...)}

	origin, err := originOf(currentURL)
	if err != nil {
		return nil, err
	}
	storage, err := ac.page.LocalStorage(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: capture localStorage: %w", err)
	}
	if len(storage) > 0 {
		replaced := false
		for i := range out.Origins {
			if out.Origins[i].Origin == origin {
				out.Origins[i].LocalStorage = storage
				replaced = true
				break
			}
		}
		if !replaced {
			out.Origins = append(out.Origins, OriginState{Origin: origin, LocalStorage: storage})
		}
	}
	return out, nil
}

// SaveSession persists blob at the invocation's resolved path.
func (ac *ActionContext) SaveSession(blob *Blob) error {
	return ac.store.Save(ac.path, blob)
}

// SessionPath returns where this invocation's session is stored.
func (ac *ActionContext) SessionPath() string { return ac.path }

func (ac *ActionContext) trace(kind, detail string) {
	if ac.tracer != nil {
		ac.tracer.event(kind, detail)
	}
}

// Snapshot records a named screenshot into the trace, if tracing is on.
func (ac *ActionContext) Snapshot(ctx context.Context, name string) {
	if ac.tracer == nil {
		return
	}
	png, err := ac.page.Screenshot(ctx)
	if err != nil {
		ac.log.Warn("session: trace snapshot", "name", name, "error", err)
		return
	}
	ac.tracer.snapshot(name, png)
}

func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("session: bad url %q", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}
