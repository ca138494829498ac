package reclaim

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/DudLab/gridstore/internal/logger"
	"github.com/DudLab/gridstore/pkg/store/zarr"
)

// QuarantinePrefix names quarantine directories. The filesystem KV hides
// entries with this prefix from listings and the archiver excludes them
// from exports, so quarantined generations stay invisible to readers.
const QuarantinePrefix = ".reclaim-"

// Quarantine atomically renames path into a freshly generated quarantine
// directory next to it and submits the quarantine tree for background
// removal. The rename is a single filesystem operation: concurrent
// readers observe either the old data or its absence, never a
// half-removed state. An absent path is quarantined vacuously (the empty
// quarantine directory is still reclaimed), which keeps the operation
// idempotent.
func Quarantine(path string, ex *Executor) (*Handle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	qdir := filepath.Join(filepath.Dir(abs), QuarantinePrefix+uuid.NewString())
	if err := os.Mkdir(qdir, 0o755); err != nil {
		return nil, fmt.Errorf("creating quarantine %q: %w", qdir, err)
	}

	if err := os.Rename(abs, filepath.Join(qdir, filepath.Base(abs))); err != nil && !os.IsNotExist(err) {
		os.Remove(qdir)
		return nil, fmt.Errorf("quarantining %q: %w", abs, err)
	}

	task, err := Build(qdir)
	if err != nil {
		return nil, err
	}
	logger.Debug("Quarantined %s -> %s (%d tasks)", abs, qdir, task.Count())
	return ex.Submit(task), nil
}

// OverwriteProxy wraps a directory store's filesystem KV so that deleting
// or overwriting a key never blocks on physical removal of the old data.
//
// The key's backing path is renamed into quarantine (atomic), background
// reclamation is submitted fire-and-forget, and the new write proceeds
// immediately. Pending reclamation of earlier generations never fails a
// later Set or Delete. Concurrent overwrites of one key are not
// serialized beyond the rename's atomicity.
type OverwriteProxy struct {
	fs *zarr.FSKV
	ex *Executor
}

var _ zarr.KV = (*OverwriteProxy)(nil)

// NewOverwriteProxy wraps fs, reclaiming superseded data on ex.
func NewOverwriteProxy(fs *zarr.FSKV, ex *Executor) *OverwriteProxy {
	return &OverwriteProxy{fs: fs, ex: ex}
}

func (p *OverwriteProxy) Get(key string) ([]byte, error) { return p.fs.Get(key) }

func (p *OverwriteProxy) List() ([]string, error) { return p.fs.List() }

// Delete quarantines the key's data for background removal. The key is
// observably absent as soon as Delete returns; physical reclamation
// trails asynchronously. Deleting a key that holds no data returns
// ErrInvalidKey.
func (p *OverwriteProxy) Delete(key string) error {
	path := p.fs.KeyPath(key)
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return fmt.Errorf("key %q: %w", key, ErrInvalidKey)
	} else if err != nil {
		return err
	}

	if _, err := Quarantine(path, p.ex); err != nil {
		return err
	}
	return nil
}

// Set replaces any existing data under key. The old generation is
// quarantined first, making room for the new value immediately, then the
// write proceeds.
func (p *OverwriteProxy) Set(key string, value []byte) error {
	if err := p.Delete(key); err != nil && !errors.Is(err, ErrInvalidKey) {
		return err
	}
	return p.fs.Set(key, value)
}
