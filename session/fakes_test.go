package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/redfeed/locate"
)

// fakePage records every call the lifecycle makes so tests can assert
// ordering and teardown behaviour without a browser.
type fakePage struct {
	mu        sync.Mutex
	calls     []string
	navigated []string
	storage   map[string]string
	consoleFn func(string)

	html          string
	screenshotErr error
	closed        bool
}

func newFakePage() *fakePage {
	return &fakePage{html: "<html><body>fake</body></html>", storage: map[string]string{}}
}

func (p *fakePage) record(c string) {
	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.record("navigate:" + url)
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *fakePage) Reload(ctx context.Context) error {
	p.record("reload")
	return nil
}

func (p *fakePage) Query(selector string) ([]locate.Element, error) {
	return nil, nil
}

func (p *fakePage) HTML() (string, error) {
	p.record("html")
	return p.html, nil
}

func (p *fakePage) Eval(ctx context.Context, js string, args ...any) (string, error) {
	return "", nil
}

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	p.record("screenshot")
	if p.screenshotErr != nil {
		return nil, p.screenshotErr
	}
	return []byte("\x89PNG fake"), nil
}

func (p *fakePage) OnConsole(fn func(string)) {
	p.consoleFn = fn
}

func (p *fakePage) emitConsole(line string) {
	if p.consoleFn != nil {
		p.consoleFn(line)
	}
}

func (p *fakePage) LocalStorage(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range p.storage {
		out[k] = v
	}
	return out, nil
}

func (p *fakePage) SeedLocalStorage(ctx context.Context, entries map[string]string) error {
	b, _ := json.Marshal(entries)
	p.record("seed:" + string(b))
	for k, v := range entries {
		p.storage[k] = v
	}
	return nil
}

func (p *fakePage) Close() error {
	p.record("close-page")
	p.closed = true
	return nil
}

type fakeContext struct {
	page      *fakePage
	cookies   []*proto.NetworkCookie
	setErr    error
	closed    bool
	onClose   func()
	newPageErr error
}

func (c *fakeContext) SetCookies(cookies []*proto.NetworkCookie) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.cookies = append(c.cookies, cookies...)
	return nil
}

func (c *fakeContext) Cookies() ([]*proto.NetworkCookie, error) {
	return c.cookies, nil
}

func (c *fakeContext) NewPage(ctx context.Context) (PageHandle, error) {
	if c.newPageErr != nil {
		return nil, c.newPageErr
	}
	return c.page, nil
}

func (c *fakeContext) Close() error {
	c.closed = true
	if c.onClose != nil {
		c.onClose()
	}
	return nil
}

type fakeEngine struct {
	ctx     *fakeContext
	closed  bool
	onClose func()
}

func (e *fakeEngine) NewContext(ctx context.Context) (BrowsingContext, error) {
	return e.ctx, nil
}

func (e *fakeEngine) Close() error {
	e.closed = true
	if e.onClose != nil {
		e.onClose()
	}
	return nil
}

// fakeFactory wires one fake engine into a Manager.
func fakeFactory(e *fakeEngine) EngineFactory {
	return func(ctx context.Context, cfg EngineConfig) (Engine, error) {
		return e, nil
	}
}

var errBoom = errors.New("boom")
