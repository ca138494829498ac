package zarr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/DudLab/gridstore/internal/chunking"
	"github.com/DudLab/gridstore/pkg/array"
	"github.com/DudLab/gridstore/pkg/store"
)

// Store is a directory-backed chunked array store over any KV.
//
// A Store holds no open handles beyond what its KV needs; every read and
// write round-trips through the KV independently, so a Store and the
// groups and arrays obtained from it are safe for concurrent use.
type Store struct {
	kv KV
}

var _ store.Store = (*Store)(nil)

// Open opens an existing store. The root group must already exist.
func Open(kv KV) (*Store, error) {
	if _, err := kv.Get(keyGroup); err != nil {
		return nil, fmt.Errorf("opening store root: %w", err)
	}
	return &Store{kv: kv}, nil
}

// Create initializes a new store with an empty root group. Opening an
// already-initialized KV is allowed and leaves existing content in place.
func Create(kv KV) (*Store, error) {
	if _, err := kv.Get(keyGroup); err == nil {
		return &Store{kv: kv}, nil
	}
	data, err := marshalMeta(groupMeta{ZarrFormat: zarrFormat})
	if err != nil {
		return nil, err
	}
	if err := kv.Set(keyGroup, data); err != nil {
		return nil, fmt.Errorf("initializing store root: %w", err)
	}
	return &Store{kv: kv}, nil
}

// OpenPath opens a store at a filesystem location: a directory tree, or a
// packed single-file archive (read-only). If create is true a missing
// directory is initialized.
func OpenPath(path string, create bool) (*Store, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		kv, err := NewFSKV(path)
		if err != nil {
			return nil, err
		}
		if create {
			return Create(kv)
		}
		return Open(kv)
	case err == nil:
		kv, err := OpenZipKV(path)
		if err != nil {
			return nil, err
		}
		return Open(kv)
	case os.IsNotExist(err) && create:
		kv, err := NewFSKV(path)
		if err != nil {
			return nil, err
		}
		return Create(kv)
	case os.IsNotExist(err):
		return nil, fmt.Errorf("store %q: %w", path, store.ErrNotFound)
	default:
		return nil, err
	}
}

// KV exposes the underlying key-value surface, e.g. for wrapping with the
// overwrite proxy or inspecting raw keys.
func (s *Store) KV() KV { return s.kv }

func (s *Store) Root(ctx context.Context) (store.Group, error) {
	return newGroup(s, ""), nil
}

func (s *Store) Close() error {
	if c, ok := s.kv.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func joinKey(path, name string) string {
	if path == "" {
		return name
	}
	return path + "/" + name
}

// node carries the attribute behavior shared by groups and arrays.
type node struct {
	s    *Store
	path string
}

func (n *node) Path() string { return n.path }

func (n *node) Attrs(ctx context.Context) (map[string]any, error) {
	data, err := n.s.kv.Get(joinKey(n.path, keyAttrs))
	if errors.Is(err, store.ErrNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	attrs := map[string]any{}
	if err := unmarshalMeta(data, &attrs); err != nil {
		return nil, fmt.Errorf("reading attributes of %q: %w", n.path, err)
	}
	return attrs, nil
}

func (n *node) SetAttrs(ctx context.Context, attrs map[string]any) error {
	merged, err := n.Attrs(ctx)
	if err != nil {
		return err
	}
	for k, v := range attrs {
		merged[k] = v
	}
	data, err := marshalMeta(merged)
	if err != nil {
		return err
	}
	return n.s.kv.Set(joinKey(n.path, keyAttrs), data)
}

type group struct {
	node
	s    *Store
	path string
}

var _ store.Group = (*group)(nil)

func newGroup(s *Store, path string) *group {
	return &group{node: node{s: s, path: path}, s: s, path: path}
}

func (g *group) Kind() store.NodeKind { return store.KindGroup }

func (g *group) Keys(ctx context.Context) ([]string, error) {
	all, err := g.s.kv.List()
	if err != nil {
		return nil, err
	}

	prefix := ""
	if g.path != "" {
		prefix = g.path + "/"
	}

	var names []string
	seen := map[string]bool{}
	for _, key := range all {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		parts := strings.Split(rest, "/")
		// A child node exists when its own metadata key sits exactly one
		// level down.
		if len(parts) != 2 {
			continue
		}
		if parts[1] != keyGroup && parts[1] != keyArray {
			continue
		}
		if !seen[parts[0]] {
			seen[parts[0]] = true
			names = append(names, parts[0])
		}
	}
	return names, nil
}

func (g *group) Child(ctx context.Context, name string) (store.Node, error) {
	childPath := joinKey(g.path, name)
	if data, err := g.s.kv.Get(joinKey(childPath, keyArray)); err == nil {
		return g.s.openArray(childPath, data)
	}
	if _, err := g.s.kv.Get(joinKey(childPath, keyGroup)); err == nil {
		return newGroup(g.s, childPath), nil
	}
	return nil, fmt.Errorf("child %q of %q: %w", name, g.path, store.ErrNotFound)
}

func (g *group) CreateGroup(ctx context.Context, name string) (store.Group, error) {
	childPath := joinKey(g.path, name)
	if _, err := g.Child(ctx, name); err == nil {
		return nil, fmt.Errorf("group %q: %w", childPath, store.ErrExists)
	}
	data, err := marshalMeta(groupMeta{ZarrFormat: zarrFormat})
	if err != nil {
		return nil, err
	}
	if err := g.s.kv.Set(joinKey(childPath, keyGroup), data); err != nil {
		return nil, err
	}
	return newGroup(g.s, childPath), nil
}

func (g *group) CreateArray(ctx context.Context, name string, shape []int, dt array.Dtype, chunks []int) (store.Array, error) {
	childPath := joinKey(g.path, name)
	if _, err := g.Child(ctx, name); err == nil {
		return nil, fmt.Errorf("array %q: %w", childPath, store.ErrExists)
	}
	if chunks == nil {
		chunks = store.GuessChunks(shape, dt)
	}

	meta := newArrayMeta(shape, dt, chunks)
	if err := meta.validate(); err != nil {
		return nil, err
	}
	data, err := marshalMeta(meta)
	if err != nil {
		return nil, err
	}
	if err := g.s.kv.Set(joinKey(childPath, keyArray), data); err != nil {
		return nil, err
	}
	return &arr{
		node:  node{s: g.s, path: childPath},
		s:     g.s,
		path:  childPath,
		meta:  meta,
		dtype: dt,
	}, nil
}

func (s *Store) openArray(path string, metaData []byte) (*arr, error) {
	var meta arrayMeta
	if err := unmarshalMeta(metaData, &meta); err != nil {
		return nil, fmt.Errorf("reading array metadata of %q: %w", path, err)
	}
	if err := meta.validate(); err != nil {
		return nil, fmt.Errorf("array %q: %w", path, err)
	}
	dt, err := array.ParseDtype(meta.Dtype)
	if err != nil {
		return nil, fmt.Errorf("array %q: %w", path, err)
	}
	return &arr{
		node:  node{s: s, path: path},
		s:     s,
		path:  path,
		meta:  meta,
		dtype: dt,
	}, nil
}

type arr struct {
	node
	s     *Store
	path  string
	meta  arrayMeta
	dtype array.Dtype
}

var _ store.Array = (*arr)(nil)

func (a *arr) Kind() store.NodeKind { return store.KindArray }

func (a *arr) Shape() []int {
	return append([]int(nil), a.meta.Shape...)
}

func (a *arr) Dtype() array.Dtype { return a.dtype }

func (a *arr) Chunks() []int {
	return append([]int(nil), a.meta.Chunks...)
}

func (a *arr) geometry() chunking.Geometry {
	return chunking.Geometry{Shape: a.meta.Shape, Chunks: a.meta.Chunks, Dtype: a.dtype}
}

func (a *arr) fullChunkShape() []int {
	return append([]int(nil), a.meta.Chunks...)
}

func (a *arr) getChunk(ctx context.Context, coords []int) (*array.Array, error) {
	data, err := a.s.kv.Get(joinKey(a.path, chunking.Key(coords)))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	chunk, err := array.FromBytes(a.dtype, a.fullChunkShape(), data)
	if err != nil {
		return nil, fmt.Errorf("chunk %s of %q: %w", chunking.Key(coords), a.path, err)
	}
	return chunk, nil
}

func (a *arr) putChunk(ctx context.Context, coords []int, chunk *array.Array) error {
	return a.s.kv.Set(joinKey(a.path, chunking.Key(coords)), chunk.Bytes())
}

func (a *arr) ReadRegion(ctx context.Context, start, stop []int) (*array.Array, error) {
	return chunking.ReadRegion(ctx, a.geometry(), start, stop, a.getChunk)
}

func (a *arr) WriteRegion(ctx context.Context, start []int, src *array.Array) error {
	if src.Dtype() != a.dtype {
		return fmt.Errorf("writing %s data into %s array %q", src.Dtype(), a.dtype, a.path)
	}
	return chunking.WriteRegion(ctx, a.geometry(), start, src, a.getChunk, a.putChunk)
}
