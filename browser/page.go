package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/redfeed/locate"
)

// Page wraps a rod page and adapts it to the surfaces the rest of the repo
// consumes: the locate query interface, navigation, script evaluation, and
// diagnostics capture.
type Page struct {
	p   *rod.Page
	log *slog.Logger
}

// Navigate loads url and waits for the load event, bounded by ctx.
func (p *Page) Navigate(ctx context.Context, url string) error {
	page := p.p.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		// Load-event stragglers (analytics beacons etc.) are not fatal; the
		// locator's own waits bound every subsequent interaction.
		p.log.Warn("browser: wait load", "url", url, "error", err)
	}
	return nil
}

// Reload re-navigates the current document.
func (p *Page) Reload(ctx context.Context) error {
	if err := p.p.Context(ctx).Reload(); err != nil {
		return fmt.Errorf("browser: reload: %w", err)
	}
	return nil
}

// Query returns the elements currently matching selector without waiting.
func (p *Page) Query(selector string) ([]locate.Element, error) {
	els, err := p.p.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	out := make([]locate.Element, len(els))
	for i, el := range els {
		out[i] = &element{el: el}
	}
	return out, nil
}

// HTML returns the current document text.
func (p *Page) HTML() (string, error) {
	html, err := p.p.HTML()
	if err != nil {
		return "", fmt.Errorf("browser: html: %w", err)
	}
	return html, nil
}

// Eval runs a JS function on the page and returns its result as a string.
// Object and array results come back JSON-encoded.
func (p *Page) Eval(ctx context.Context, js string, args ...any) (string, error) {
	res, err := p.p.Context(ctx).Eval(js, args...)
	if err != nil {
		return "", fmt.Errorf("browser: eval: %w", err)
	}
	return res.Value.Str(), nil
}

// Screenshot captures a full-page PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := p.p.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return data, nil
}

// OnConsole starts forwarding console messages to fn, each formatted as
// "[type] text". Forwarding stops when the page closes.
func (p *Page) OnConsole(fn func(line string)) {
	go p.p.EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		parts := make([]string, 0, len(e.Args))
		for _, a := range e.Args {
			if a.Value.Val() != nil {
				parts = append(parts, a.Value.String())
			} else if a.Description != "" {
				parts = append(parts, a.Description)
			}
		}
		fn(fmt.Sprintf("[%s] %s", e.Type, strings.Join(parts, " ")))
	})()
}

// LocalStorage returns the page's current localStorage as a flat map.
func (p *Page) LocalStorage(ctx context.Context) (map[string]string, error) {
	raw, err := p.Eval(ctx, `() => JSON.stringify(Object.assign({}, localStorage))`)
	if err != nil {
		return nil, err
	}
	return parseStorageJSON(raw)
}

// SeedLocalStorage writes entries into the page's localStorage. The page must
// already be on the origin the entries belong to.
func (p *Page) SeedLocalStorage(ctx context.Context, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := p.p.Context(ctx).Eval(`(data) => {
		for (const [k, v] of Object.entries(data)) {
			localStorage.setItem(k, v);
		}
	}`, entries)
	if err != nil {
		return fmt.Errorf("browser: seed localStorage: %w", err)
	}
	return nil
}

// Close closes the page target.
func (p *Page) Close() error {
	if p.p == nil {
		return nil
	}
	err := p.p.Close()
	p.p = nil
	return err
}

// element adapts a rod element to locate.Element.
type element struct {
	el *rod.Element
}

func (e *element) WaitState(ctx context.Context, s locate.State, timeout time.Duration) error {
	el := e.el.Context(ctx).Timeout(timeout)
	switch s {
	case locate.StateVisible:
		if err := el.WaitVisible(); err != nil {
			return fmt.Errorf("browser: wait visible: %w", err)
		}
	default:
		// Attached: the element was returned by a live query, so it is in
		// the DOM already; nothing further to wait for.
	}
	return nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", fmt.Errorf("browser: attribute %q: %w", name, err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (e *element) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *element) Input(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	// Replace any existing content rather than appending.
	_ = el.SelectAllText()
	return el.Input(text)
}

func (e *element) SetFiles(ctx context.Context, paths []string) error {
	return e.el.Context(ctx).SetFiles(paths)
}

func parseStorageJSON(raw string) (map[string]string, error) {
	if raw == "" || raw == "{}" {
		return map[string]string{}, nil
	}
	out := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("browser: parse localStorage: %w", err)
	}
	return out, nil
}
