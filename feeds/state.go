package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/redfeed/session"
)

// ErrNoInitialState reports a page that carries no bootstrap state object,
// usually a login wall or an error page.
var ErrNoInitialState = errors.New("feeds: page has no initial state")

const stateMarker = "window.__INITIAL_STATE__"

// initialState returns the page's bootstrap state object. The primary path
// evaluates it in the page; when evaluation yields nothing the raw document
// is scanned for the bootstrap script instead, which also works on pages
// whose scripts have not finished running.
func initialState(ctx context.Context, page session.PageHandle) (map[string]any, error) {
	raw, err := page.Eval(ctx, `() => {
		const s = window.__INITIAL_STATE__;
		return s ? JSON.stringify(s) : "";
	}`)
	if err == nil && raw != "" {
		return parseState(raw)
	}

	doc, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("feeds: read document: %w", err)
	}
	payload, ok := stateFromHTML(doc)
	if !ok {
		return nil, ErrNoInitialState
	}
	return parseState(payload)
}

// stateFromHTML walks the document's script elements for the bootstrap
// assignment and returns the serialized object after the "=".
func stateFromHTML(doc string) (string, bool) {
	z := html.NewTokenizer(strings.NewReader(doc))
	inScript := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken:
			name, _ := z.TagName()
			inScript = string(name) == "script"
		case html.EndTagToken:
			inScript = false
		case html.TextToken:
			if !inScript {
				continue
			}
			text := string(z.Text())
			idx := strings.Index(text, stateMarker)
			if idx < 0 {
				continue
			}
			rest := text[idx+len(stateMarker):]
			eq := strings.Index(rest, "=")
			if eq < 0 {
				continue
			}
			return strings.TrimSpace(rest[eq+1:]), true
		}
	}
}

// parseState decodes the serialized state. The site serializes missing
// fields as bare undefined, which is not JSON, so those are nulled first.
func parseState(payload string) (map[string]any, error) {
	payload = strings.TrimSuffix(strings.TrimSpace(payload), ";")
	payload = nullBareUndefined(payload)
	var state map[string]any
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("feeds: decode initial state: %w", err)
	}
	return state, nil
}

// nullBareUndefined rewrites undefined tokens to null, leaving occurrences
// inside string literals alone. Tracks the quote/escape state so a note
// description containing the word survives intact.
func nullBareUndefined(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inStr := false
	for i := 0; i < len(s); {
		c := s[i]
		if inStr {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				b.WriteByte(s[i+1])
				i += 2
				continue
			}
			if c == '"' {
				inStr = false
			}
			i++
			continue
		}
		if c == '"' {
			inStr = true
			b.WriteByte(c)
			i++
			continue
		}
		if strings.HasPrefix(s[i:], "undefined") {
			b.WriteString("null")
			i += len("undefined")
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

// unwrap unpacks the serialized reactive-ref wrappers the state object uses:
// a map holding only _value (or _rawValue) stands for the value itself.
func unwrap(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if inner, ok := m["_value"]; ok {
		return unwrap(inner)
	}
	if inner, ok := m["_rawValue"]; ok {
		return unwrap(inner)
	}
	return m
}

// dig walks nested maps along path, unwrapping refs at each step.
func dig(state map[string]any, path ...string) (any, bool) {
	var cur any = state
	for _, key := range path {
		m, ok := unwrap(cur).(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return unwrap(cur), true
}

// digList digs to a slice of objects.
func digList(state map[string]any, path ...string) ([]map[string]any, bool) {
	v, ok := dig(state, path...)
	if !ok {
		return nil, false
	}
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := unwrap(item).(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, true
}
