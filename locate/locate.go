// Package locate finds UI elements on a live page through an ordered chain of
// candidate selectors. The target site's markup is not under our control and
// drifts without notice, so a single fixed selector is fragile: each action
// carries a fallback chain, and candidates whose selector currently matches
// nothing are skipped immediately instead of burning their timeout.
package locate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is the condition an element must reach before a candidate wins.
type State int

const (
	// StateAttached requires only that the element exists in the DOM.
	StateAttached State = iota
	// StateVisible requires the element to be rendered and visible.
	StateVisible
)

func (s State) String() string {
	if s == StateVisible {
		return "visible"
	}
	return "attached"
}

// Element is the slice of page-element behaviour the locator and the
// business actions need. The browser package adapts rod elements to it;
// tests substitute fakes.
type Element interface {
	// WaitState blocks until the element reaches s or timeout elapses.
	WaitState(ctx context.Context, s State, timeout time.Duration) error
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
	Click(ctx context.Context) error
	Input(ctx context.Context, text string) error
	SetFiles(ctx context.Context, paths []string) error
}

// Page is the query surface the locator needs from a live page.
type Page interface {
	// Query returns the elements currently matching selector, without waiting.
	Query(selector string) ([]Element, error)
	// HTML returns the current document text, for diagnostics.
	HTML() (string, error)
}

// Candidate is one selector in a fallback chain.
type Candidate struct {
	Selector string
	State    State
	Timeout  time.Duration
}

// Visible builds a candidate requiring visibility.
func Visible(selector string, timeout time.Duration) Candidate {
	return Candidate{Selector: selector, State: StateVisible, Timeout: timeout}
}

// Attached builds a candidate requiring only DOM attachment.
func Attached(selector string, timeout time.Duration) Candidate {
	return Candidate{Selector: selector, State: StateAttached, Timeout: timeout}
}

// Chain is an ordered list of candidates plus one generic fallback selector
// (e.g. "button") tried after every candidate is exhausted.
type Chain struct {
	Candidates []Candidate
	Fallback   string
}

// Describe renders the chain's selectors for logs and traces.
func (c Chain) Describe() string {
	sels := make([]string, 0, len(c.Candidates)+1)
	for _, cand := range c.Candidates {
		sels = append(sels, cand.Selector)
	}
	if c.Fallback != "" {
		sels = append(sels, c.Fallback)
	}
	return strings.Join(sels, " | ")
}

// fallbackTimeout bounds the wait on the generic fallback selector.
const fallbackTimeout = 5 * time.Second

// maxDOMSnippet caps the document text carried inside a NotFoundError.
const maxDOMSnippet = 16 * 1024

// ErrElementNotFound reports that every candidate in a chain was exhausted.
var ErrElementNotFound = errors.New("locate: no candidate selector matched")

// NotFoundError carries the full candidate list, the last wait error, and a
// snippet of the current document for debugging selector drift.
type NotFoundError struct {
	Candidates []string
	LastErr    error
	DOM        string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("locate: no candidate matched: [%s]", strings.Join(e.Candidates, ", "))
	if e.LastErr != nil {
		msg += ": " + e.LastErr.Error()
	}
	return msg
}

func (e *NotFoundError) Is(target error) bool { return target == ErrElementNotFound }

func (e *NotFoundError) Unwrap() error { return e.LastErr }

// Locate tries the chain's candidates strictly in order. A candidate whose
// selector currently matches zero elements is skipped without waiting; one
// that matches waits up to its own timeout for the required state. The first
// candidate to reach its state wins and is returned together with the
// selector that matched. When the whole chain is exhausted the generic
// fallback gets one bounded attempt before Locate fails.
func Locate(ctx context.Context, page Page, chain Chain) (Element, string, error) {
	var lastErr error

	for _, c := range chain.Candidates {
		els, err := page.Query(c.Selector)
		if err != nil {
			lastErr = err
			continue
		}
		if len(els) == 0 {
			continue
		}
		if err := els[0].WaitState(ctx, c.State, c.Timeout); err != nil {
			lastErr = err
			continue
		}
		return els[0], c.Selector, nil
	}

	if chain.Fallback != "" {
		els, err := page.Query(chain.Fallback)
		if err == nil && len(els) > 0 {
			if err := els[0].WaitState(ctx, StateAttached, fallbackTimeout); err == nil {
				return els[0], chain.Fallback, nil
			} else {
				lastErr = err
			}
		} else if err != nil {
			lastErr = err
		}
	}

	dom, _ := page.HTML()
	if len(dom) > maxDOMSnippet {
		dom = dom[:maxDOMSnippet]
	}
	return nil, "", &NotFoundError{
		Candidates: selectors(chain),
		LastErr:    lastErr,
		DOM:        dom,
	}
}

func selectors(chain Chain) []string {
	out := make([]string, 0, len(chain.Candidates)+1)
	for _, c := range chain.Candidates {
		out = append(out, c.Selector)
	}
	if chain.Fallback != "" {
		out = append(out, chain.Fallback)
	}
	return out
}
