package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-rod/rod/lib/proto"
)

// Blob is the serialized session state: cookies plus per-origin localStorage.
// The JSON layout matches what the browser captures, so a blob written by one
// login can be replayed into any later browsing context.
type Blob struct {
	Cookies []*proto.NetworkCookie `json:"cookies"`
	Origins []OriginState          `json:"origins,omitempty"`
}

// OriginState holds the localStorage entries for one origin.
type OriginState struct {
	Origin       string            `json:"origin"`
	LocalStorage map[string]string `json:"localStorage,omitempty"`
}

// StorageFor returns the localStorage entries saved for origin, or nil.
func (b *Blob) StorageFor(origin string) map[string]string {
	for _, o := range b.Origins {
		if o.Origin == origin {
			return o.LocalStorage
		}
	}
	return nil
}

// Store resolves, loads, and saves session blobs under a base directory.
// The zero value is not usable; construct with NewStore.
type Store struct {
	base string
}

// NewStore returns a store rooted at base. An empty base falls back to
// ~/.redfeed/cookies.
func NewStore(base string) *Store {
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		base = filepath.Join(home, ".redfeed", "cookies")
	}
	return &Store{base: base}
}

// Resolve maps an explicit path and a profile name to the file the session
// lives in. An explicit path wins outright; otherwise the profile selects
// <base>/<profile>.json, defaulting to the "default" profile. Resolve never
// touches the filesystem.
func (s *Store) Resolve(explicit, profile string) string {
	if explicit != "" {
		return explicit
	}
	if profile == "" {
		profile = "default"
	}
	// Profiles are plain names, not paths.
	profile = strings.ReplaceAll(profile, string(os.PathSeparator), "_")
	return filepath.Join(s.base, profile+".json")
}

// Load reads and decodes the blob at path. A missing file yields a
// NotFoundError; a present but undecodable file yields a LoadError.
func (s *Store) Load(path string) (*Blob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, &LoadError{Path: path, Err: err}
	}
	var b Blob
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return &b, nil
}

// Save writes the blob to path atomically: encode to a temp file in the same
// directory, then rename over the destination. The file mode is 0600 since
// blobs carry live credentials.
func (s *Store) Save(path string, b *Blob) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("session: mkdir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode blob: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("session: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("session: chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("session: write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("session: rename into place: %w", err)
	}
	return nil
}
