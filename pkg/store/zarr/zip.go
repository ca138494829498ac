package zarr

import (
	"archive/zip"
	"fmt"
	"io"
	"sort"

	"github.com/DudLab/gridstore/pkg/store"
)

// ZipKV is a read-only KV over a packed single-file archive, so stores
// exported by pkg/archive stay readable without unpacking.
type ZipKV struct {
	rc      *zip.ReadCloser
	members map[string]*zip.File
}

var _ KV = (*ZipKV)(nil)

// OpenZipKV opens an archive produced by pkg/archive (or any zip whose
// member names are store keys).
func OpenZipKV(path string) (*ZipKV, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %q: %w", path, err)
	}
	members := make(map[string]*zip.File, len(rc.File))
	for _, f := range rc.File {
		if f.FileInfo().IsDir() {
			continue
		}
		members[f.Name] = f
	}
	return &ZipKV{rc: rc, members: members}, nil
}

// Close releases the underlying archive file.
func (s *ZipKV) Close() error { return s.rc.Close() }

func (s *ZipKV) Get(key string) ([]byte, error) {
	f, ok := s.members[key]
	if !ok {
		return nil, fmt.Errorf("key %q: %w", key, store.ErrNotFound)
	}
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *ZipKV) Set(string, []byte) error { return store.ErrReadOnly }

func (s *ZipKV) Delete(string) error { return store.ErrReadOnly }

func (s *ZipKV) List() ([]string, error) {
	keys := make([]string, 0, len(s.members))
	for k := range s.members {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
