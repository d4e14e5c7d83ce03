package feeds

import (
	"context"

	"github.com/hazyhaar/redfeed/locate"
)

// statePage serves a canned document and no working Eval, exercising the
// document-scan path of initialState.
type statePage struct {
	html string
	eval string
}

func (p *statePage) Navigate(ctx context.Context, url string) error { return nil }
func (p *statePage) Reload(ctx context.Context) error               { return nil }
func (p *statePage) Query(selector string) ([]locate.Element, error) {
	return nil, nil
}
func (p *statePage) HTML() (string, error) { return p.html, nil }
func (p *statePage) Eval(ctx context.Context, js string, args ...any) (string, error) {
	return p.eval, nil
}
func (p *statePage) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }
func (p *statePage) OnConsole(fn func(string))                      {}
func (p *statePage) LocalStorage(ctx context.Context) (map[string]string, error) {
	return nil, nil
}
func (p *statePage) SeedLocalStorage(ctx context.Context, entries map[string]string) error {
	return nil
}
func (p *statePage) Close() error { return nil }
