// pattern: Imperative Shell

// Package nvs simulates the device's flash-backed NVS key/value store.
// Each namespace is a directory; each key a flock-guarded JSON file. This
// backs the "Storage(named key)" cell variant of spec.md §4.1 and the
// NVS persistence path of spec.md §6 ("key wm-state … namespace WM").
package nvs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Store is a namespaced, file-backed key/value store. One Store instance
// should be shared by all keys within a namespace to keep the directory
// layout predictable; callers obtain typed handles via NewKey.
type Store struct {
	dir string
}

// Open returns a Store rooted at dir/namespace, creating directories as
// needed.
func Open(dir, namespace string) (*Store, error) {
	path := filepath.Join(dir, namespace)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("nvs: create namespace dir: %w", err)
	}
	return &Store{dir: path}, nil
}

// Key is a typed, corestate.Store-compatible handle onto one NVS entry.
type Key[D any] struct {
	store *Store
	name  string
}

// NewKey returns a handle for the named key within s.
func NewKey[D any](s *Store, name string) *Key[D] {
	return &Key[D]{store: s, name: name}
}

func (k *Key[D]) path() string {
	return filepath.Join(k.store.dir, k.name+".json")
}

func (k *Key[D]) lockPath() string {
	return filepath.Join(k.store.dir, k.name+".lock")
}

// Load reads and decodes the key's value, if it has ever been written.
func (k *Key[D]) Load() (D, bool) {
	var zero D
	fl := flock.New(k.lockPath())
	if err := fl.Lock(); err != nil {
		return zero, false
	}
	defer fl.Unlock()

	raw, err := os.ReadFile(k.path())
	if err != nil {
		return zero, false
	}
	var v D
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false
	}
	return v, true
}

// Save atomically writes v, guarded by a file lock so that the read
// that a concurrent flash wear-leveling write pairs with is never torn.
func (k *Key[D]) Save(v D) error {
	fl := flock.New(k.lockPath())
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("nvs: lock %s: %w", k.name, err)
	}
	defer fl.Unlock()

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("nvs: encode %s: %w", k.name, err)
	}
	tmp := k.path() + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("nvs: write %s: %w", k.name, err)
	}
	return os.Rename(tmp, k.path())
}
