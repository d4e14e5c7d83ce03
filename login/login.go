// Package login drives the QR-code authentication handshake: fetch the QR
// image for out-of-band scanning, poll the page's login indicator until it
// reports authenticated, and persist the session exactly once on success.
package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/redfeed/locate"
	"github.com/hazyhaar/redfeed/session"
)

// LoginURL is where both the QR code and the logged-in indicator live.
const LoginURL = "https://www.xiaohongshu.com/explore"

// State tracks the handshake's progress.
type State int

const (
	StateAwaitingScan State = iota
	StatePolling
	StateSucceeded
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateAwaitingScan:
		return "awaiting_scan"
	case StatePolling:
		return "polling"
	case StateSucceeded:
		return "succeeded"
	case StateTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// ErrLoginTimeout reports that the deadline elapsed with no successful scan.
// Nothing is persisted on this path.
var ErrLoginTimeout = errors.New("login: timed out waiting for QR scan")

// Options tune the polling loop. Zero fields take the defaults.
type Options struct {
	// Timeout bounds the whole handshake.
	Timeout time.Duration
	// PollInterval is how often the login indicator is re-checked.
	PollInterval time.Duration
	// ReloadInterval is how often the page is reloaded so an expired QR code
	// gets replaced. It runs on its own cadence inside the poll loop.
	ReloadInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 240 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.ReloadInterval <= 0 {
		o.ReloadInterval = 10 * time.Second
	}
}

// Scope is the slice of the session ActionContext the handshake consumes.
type Scope interface {
	Navigate(ctx context.Context, url string) error
	Locate(ctx context.Context, chain locate.Chain) (locate.Element, error)
	Page() session.PageHandle
	StorageState(ctx context.Context, currentURL string) (*session.Blob, error)
	SaveSession(blob *session.Blob) error
	SessionPath() string
}

// Selector data, expected to drift with the target site.
var (
	loggedInSelectors = []string{
		"li.user.side-bar-component .channel",
		".user.side-bar-component",
	}

	qrImageChain = locate.Chain{
		Candidates: []locate.Candidate{
			locate.Visible("img.qrcode-img", 10*time.Second),
			locate.Visible(".qrcode-img img", 10*time.Second),
			locate.Visible(".login-container img", 5*time.Second),
		},
		Fallback: "img",
	}
)

// QRCode is the rendered login challenge handed back to the caller for
// out-of-band scanning.
type QRCode struct {
	ImageSrc string `json:"qrcode"`
	LoggedIn bool   `json:"logged_in"`
}

// CheckStatus reports whether the current cookies correspond to a logged-in
// session. It queries the indicator without waiting, so an anonymous page
// answers quickly.
func CheckStatus(ctx context.Context, sc Scope) (bool, error) {
	if err := sc.Navigate(ctx, LoginURL); err != nil {
		return false, err
	}
	return indicatorPresent(sc), nil
}

func indicatorPresent(sc Scope) bool {
	for _, sel := range loggedInSelectors {
		els, err := sc.Page().Query(sel)
		if err == nil && len(els) > 0 {
			return true
		}
	}
	return false
}

// FetchQRCode navigates to the login surface and returns the QR image source
// for the caller to present. When the session is already authenticated no QR
// exists and LoggedIn is set instead.
func FetchQRCode(ctx context.Context, sc Scope) (*QRCode, error) {
	if err := sc.Navigate(ctx, LoginURL); err != nil {
		return nil, err
	}
	if indicatorPresent(sc) {
		return &QRCode{LoggedIn: true}, nil
	}
	el, err := sc.Locate(ctx, qrImageChain)
	if err != nil {
		return nil, fmt.Errorf("login: QR image: %w", err)
	}
	src, err := el.Attribute(ctx, "src")
	if err != nil {
		return nil, fmt.Errorf("login: QR image source: %w", err)
	}
	return &QRCode{ImageSrc: src}, nil
}

// Await polls until the login indicator reports authenticated, the deadline
// elapses, or ctx is cancelled. On success it captures the context's session
// state and saves it through the store exactly once. The returned state is
// terminal: StateSucceeded or StateTimedOut, or the last state reached when
// an error cut the handshake short.
func Await(ctx context.Context, sc Scope, opts Options) (State, error) {
	opts.applyDefaults()

	if err := sc.Navigate(ctx, LoginURL); err != nil {
		return StateAwaitingScan, err
	}

	deadline := time.Now().Add(opts.Timeout)
	lastReload := time.Now()
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	state := StateAwaitingScan
	for {
		if indicatorPresent(sc) {
			blob, err := sc.StorageState(ctx, LoginURL)
			if err != nil {
				return StatePolling, err
			}
			if err := sc.SaveSession(blob); err != nil {
				return StatePolling, err
			}
			return StateSucceeded, nil
		}
		state = StatePolling

		if time.Now().After(deadline) {
			return StateTimedOut, ErrLoginTimeout
		}

		// The QR image expires server-side; refresh it on its own slower
		// cadence while polling continues.
		if time.Since(lastReload) >= opts.ReloadInterval {
			if err := sc.Page().Reload(ctx); err == nil {
				lastReload = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-ticker.C:
		}
	}
}
