// Package zarr implements the directory-backed chunked array store.
//
// The format follows the zarr v2 storage model: a store is a flat
// key-value namespace where ".zgroup", ".zarray" and ".zattrs" keys under
// a logical path hold JSON metadata and dot-separated keys such as "1.4"
// hold raw chunk payloads. Any KV implementation can back a store; the
// filesystem KV is the canonical directory layout, the zip KV serves
// packed archives read-only, and the memory KV backs tests.
package zarr

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/DudLab/gridstore/pkg/store"
)

// KV is the key-value surface the directory store is built on. Keys are
// /-separated relative paths.
type KV interface {
	// Get returns the value for key, or store.ErrNotFound.
	Get(key string) ([]byte, error)

	// Set stores value under key, overwriting any previous value.
	Set(key string, value []byte) error

	// Delete removes key, or returns store.ErrNotFound if absent.
	Delete(key string) error

	// List returns all keys in sorted order.
	List() ([]string, error)
}

// reclaimPrefix marks quarantine directories hidden inside a store root.
// The filesystem KV never lists them; background reclamation removes them.
const reclaimPrefix = ".reclaim-"

// FSKV is the canonical filesystem-directory KV.
type FSKV struct {
	root string
}

var _ KV = (*FSKV)(nil)

// NewFSKV opens (creating if needed) a directory-backed KV rooted at root.
func NewFSKV(root string) (*FSKV, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating store root: %w", err)
	}
	return &FSKV{root: abs}, nil
}

// Root returns the absolute store root directory.
func (s *FSKV) Root() string { return s.root }

// KeyPath returns the filesystem path backing a key. Keys map to paths
// one-to-one; the overwrite proxy relies on this to rename them.
func (s *FSKV) KeyPath(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FSKV) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(s.KeyPath(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("key %q: %w", key, store.ErrNotFound)
	}
	return data, err
}

func (s *FSKV) Set(key string, value []byte) error {
	path := s.KeyPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, value, 0o644)
}

func (s *FSKV) Delete(key string) error {
	err := os.Remove(s.KeyPath(key))
	if os.IsNotExist(err) {
		return fmt.Errorf("key %q: %w", key, store.ErrNotFound)
	}
	return err
}

func (s *FSKV) List() ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Quarantine trees may vanish mid-walk.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		rel, rerr := filepath.Rel(s.root, path)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if strings.HasPrefix(filepath.Base(rel), reclaimPrefix) {
				return filepath.SkipDir
			}
			return nil
		}
		keys = append(keys, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// MemoryKV is an in-memory KV, primarily for tests.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ KV = (*MemoryKV)(nil)

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: map[string][]byte{}}
}

func (s *MemoryKV) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("key %q: %w", key, store.ErrNotFound)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *MemoryKV) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	s.data[key] = v
	return nil
}

func (s *MemoryKV) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return fmt.Errorf("key %q: %w", key, store.ErrNotFound)
	}
	delete(s.data, key)
	return nil
}

func (s *MemoryKV) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
