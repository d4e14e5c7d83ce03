package session

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// tracer records a timeline of session events plus named screenshots and
// packs them into a trace.zip at teardown. The archive holds trace.json with
// the event list and one PNG per snapshot.
type tracer struct {
	mu     sync.Mutex
	start  time.Time
	events []traceEvent
	shots  []traceShot
}

type traceEvent struct {
	At     string `json:"at"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

type traceShot struct {
	name string
	png  []byte
}

func newTracer() *tracer {
	return &tracer{start: time.Now()}
}

func (t *tracer) event(kind, detail string) {
	t.mu.Lock()
	t.events = append(t.events, traceEvent{
		At:     time.Since(t.start).Round(time.Millisecond).String(),
		Kind:   kind,
		Detail: detail,
	})
	t.mu.Unlock()
}

func (t *tracer) snapshot(name string, png []byte) {
	t.mu.Lock()
	n := len(t.shots)
	t.shots = append(t.shots, traceShot{name: fmt.Sprintf("%03d-%s.png", n, name), png: png})
	t.events = append(t.events, traceEvent{
		At:     time.Since(t.start).Round(time.Millisecond).String(),
		Kind:   "snapshot",
		Detail: name,
	})
	t.mu.Unlock()
}

func (t *tracer) writeZip(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("session: create trace: %w", err)
	}

	if err := t.pack(zip.NewWriter(f)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (t *tracer) pack(zw *zip.Writer) error {
	w, err := zw.Create("trace.json")
	if err != nil {
		return fmt.Errorf("session: trace entry: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t.events); err != nil {
		return fmt.Errorf("session: encode trace: %w", err)
	}
	for _, s := range t.shots {
		w, err := zw.Create("screenshots/" + s.name)
		if err != nil {
			return fmt.Errorf("session: trace entry: %w", err)
		}
		if _, err := w.Write(s.png); err != nil {
			return fmt.Errorf("session: trace screenshot: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("session: finish trace: %w", err)
	}
	return nil
}
