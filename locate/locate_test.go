package locate

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeElement reaches its state after a configurable delay, or never.
type fakeElement struct {
	readyAfter time.Duration // 0 = immediately ready; <0 = never
	clicked    bool
}

func (f *fakeElement) WaitState(ctx context.Context, _ State, timeout time.Duration) error {
	if f.readyAfter < 0 || f.readyAfter > timeout {
		wait := timeout
		if f.readyAfter >= 0 && f.readyAfter < wait {
			wait = f.readyAfter
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		return errors.New("wait timeout")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.readyAfter):
	}
	return nil
}

func (f *fakeElement) Text(context.Context) (string, error)              { return "", nil }
func (f *fakeElement) Attribute(context.Context, string) (string, error) { return "", nil }
func (f *fakeElement) Click(context.Context) error                      { f.clicked = true; return nil }
func (f *fakeElement) Input(context.Context, string) error              { return nil }
func (f *fakeElement) SetFiles(context.Context, []string) error         { return nil }

// fakePage serves canned elements per selector and records queries.
type fakePage struct {
	elements map[string][]Element
	queries  []string
	html     string
}

func (f *fakePage) Query(selector string) ([]Element, error) {
	f.queries = append(f.queries, selector)
	return f.elements[selector], nil
}

func (f *fakePage) HTML() (string, error) { return f.html, nil }

func TestLocate_FirstMatchWins(t *testing.T) {
	// WHAT: the first candidate with a present, ready element is returned.
	el := &fakeElement{}
	page := &fakePage{elements: map[string][]Element{"sel-a": {el}}}

	chain := Chain{Candidates: []Candidate{
		Visible("sel-a", time.Second),
		Visible("sel-b", time.Second),
	}}
	got, matched, err := Locate(context.Background(), page, chain)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if got != el || matched != "sel-a" {
		t.Fatalf("matched %q", matched)
	}
}

func TestLocate_SkipsAbsentWithoutWaiting(t *testing.T) {
	// WHAT: a selector matching zero elements is skipped immediately.
	// WHY: waiting a full timeout on a selector known to be absent would
	// make every drifted selector cost its whole budget.
	el := &fakeElement{}
	page := &fakePage{elements: map[string][]Element{"sel-c": {el}}}

	chain := Chain{Candidates: []Candidate{
		Visible("sel-a", 30 * time.Second),
		Visible("sel-b", 30 * time.Second),
		Visible("sel-c", time.Second),
	}}

	start := time.Now()
	_, matched, err := Locate(context.Background(), page, chain)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if matched != "sel-c" {
		t.Fatalf("matched %q, want sel-c", matched)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("took %v; absent candidates must not wait", elapsed)
	}
}

func TestLocate_LaterCandidateAfterFailingEarlier(t *testing.T) {
	// WHAT: a present-but-never-ready candidate does not prevent trying the
	// next one; the element that becomes ready within its timeout wins.
	stuck := &fakeElement{readyAfter: -1}
	ready := &fakeElement{readyAfter: 50 * time.Millisecond}
	page := &fakePage{elements: map[string][]Element{
		"sel-b": {stuck},
		"sel-a": {ready},
	}}

	chain := Chain{Candidates: []Candidate{
		Visible("sel-b", 100 * time.Millisecond),
		Visible("sel-a", 5 * time.Second),
	}}
	got, matched, err := Locate(context.Background(), page, chain)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if got != ready || matched != "sel-a" {
		t.Fatalf("matched %q, want sel-a", matched)
	}
}

func TestLocate_SlowElementWithinTimeout(t *testing.T) {
	// Element becomes visible after a delay well under its timeout: Locate
	// returns roughly when the element is ready, not at the timeout.
	slow := &fakeElement{readyAfter: 200 * time.Millisecond}
	page := &fakePage{elements: map[string][]Element{"sel-b": {slow}}}

	chain := Chain{Candidates: []Candidate{
		Visible("sel-a", 5 * time.Second),
		Visible("sel-b", 5 * time.Second),
		Visible("sel-c", 5 * time.Second),
	}}

	start := time.Now()
	_, matched, err := Locate(context.Background(), page, chain)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if matched != "sel-b" {
		t.Fatalf("matched %q", matched)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("took %v, want ~200ms", elapsed)
	}
}

func TestLocate_FallbackUsed(t *testing.T) {
	el := &fakeElement{}
	page := &fakePage{elements: map[string][]Element{"button": {el}}}

	chain := Chain{
		Candidates: []Candidate{Attached("div.submit", 10 * time.Millisecond)},
		Fallback:   "button",
	}
	got, matched, err := Locate(context.Background(), page, chain)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if got != el || matched != "button" {
		t.Fatalf("matched %q, want fallback", matched)
	}
}

func TestLocate_Exhausted(t *testing.T) {
	page := &fakePage{html: "<html><body>drifted</body></html>"}

	chain := Chain{
		Candidates: []Candidate{
			Visible("sel-a", time.Second),
			Attached("sel-b", time.Second),
		},
		Fallback: "button",
	}
	_, _, err := Locate(context.Background(), page, chain)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrElementNotFound) {
		t.Fatalf("error: %v, want ErrElementNotFound", err)
	}

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error type: %T", err)
	}
	if len(nf.Candidates) != 3 {
		t.Fatalf("candidates: %v", nf.Candidates)
	}
	if nf.DOM == "" {
		t.Fatal("document text missing from error")
	}
}

func TestLocate_DOMSnippetCapped(t *testing.T) {
	big := make([]byte, maxDOMSnippet*2)
	for i := range big {
		big[i] = 'x'
	}
	page := &fakePage{html: string(big)}

	_, _, err := Locate(context.Background(), page, Chain{
		Candidates: []Candidate{Visible("sel-a", time.Millisecond)},
	})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error type: %T", err)
	}
	if len(nf.DOM) != maxDOMSnippet {
		t.Fatalf("DOM length: %d", len(nf.DOM))
	}
}
