// Package hier implements the monolithic hierarchical array store.
//
// The whole hierarchy lives in a single BadgerDB database: one container
// on disk holding groups, arrays, attributes, and chunk payloads, the way
// a single-file hierarchical container does. Keys are namespaced by
// prefix:
//
//	m:<path>            node metadata (kind, shape, dtype, chunk shape)
//	a:<path>            attributes, JSON
//	c:<path>\x00<chunk>  raw chunk payload, dot-separated chunk key
//
// The prefix scheme gives point lookups for node resolution and prefix
// scans for child listing. All reads and writes run in their own Badger
// transaction, so store values are safe for concurrent use.
package hier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/DudLab/gridstore/internal/chunking"
	"github.com/DudLab/gridstore/pkg/array"
	"github.com/DudLab/gridstore/pkg/store"
)

const (
	metaPrefix  = "m:"
	attrsPrefix = "a:"
	chunkPrefix = "c:"
	chunkSep    = "\x00"
)

// nodeMeta is the stored description of a group or array node.
type nodeMeta struct {
	Kind   string `json:"kind"`
	Shape  []int  `json:"shape,omitempty"`
	Dtype  string `json:"dtype,omitempty"`
	Chunks []int  `json:"chunks,omitempty"`
}

const (
	kindGroup = "group"
	kindArray = "array"
)

// Store is an open hierarchical store.
type Store struct {
	db *badger.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the store at the given directory.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening hierarchical store %q: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.ensureRoot(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureRoot() error {
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(metaPrefix))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		data, err := json.Marshal(nodeMeta{Kind: kindGroup})
		if err != nil {
			return err
		}
		return txn.Set([]byte(metaPrefix), data)
	})
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Root(ctx context.Context) (store.Group, error) {
	return newGroup(s, ""), nil
}

func (s *Store) getMeta(path string) (nodeMeta, error) {
	var meta nodeMeta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaPrefix + path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("node %q: %w", path, store.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	return meta, err
}

func (s *Store) putMeta(path string, meta nodeMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(metaPrefix+path), data)
	})
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "/" + name
}

type node struct {
	s    *Store
	path string
}

func (n *node) Path() string { return n.path }

func (n *node) Attrs(ctx context.Context) (map[string]any, error) {
	attrs := map[string]any{}
	err := n.s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(attrsPrefix + n.path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &attrs)
		})
	})
	if err != nil {
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
	data, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	return n.s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(attrsPrefix+n.path), data)
	})
}

type group struct {
	node
}

var _ store.Group = (*group)(nil)

func newGroup(s *Store, path string) *group {
	return &group{node: node{s: s, path: path}}
}

func (g *group) Kind() store.NodeKind { return store.KindGroup }

func (g *group) Keys(ctx context.Context) ([]string, error) {
	prefix := metaPrefix
	if g.path != "" {
		prefix += g.path + "/"
	}

	var names []string
	err := g.s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			rest := strings.TrimPrefix(string(it.Item().Key()), prefix)
			if rest == "" || strings.Contains(rest, "/") {
				continue
			}
			names = append(names, rest)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (g *group) Child(ctx context.Context, name string) (store.Node, error) {
	childPath := joinPath(g.path, name)
	meta, err := g.s.getMeta(childPath)
	if err != nil {
		return nil, err
	}
	return g.s.nodeFor(childPath, meta)
}

func (s *Store) nodeFor(path string, meta nodeMeta) (store.Node, error) {
	switch meta.Kind {
	case kindGroup:
		return newGroup(s, path), nil
	case kindArray:
		dt, err := array.ParseDtype(meta.Dtype)
		if err != nil {
			return nil, fmt.Errorf("array %q: %w", path, err)
		}
		return &arr{node: node{s: s, path: path}, meta: meta, dtype: dt}, nil
	default:
		return nil, fmt.Errorf("node %q has kind %q: %w", path, meta.Kind, store.ErrUnsupportedNodeType)
	}
}

func (g *group) CreateGroup(ctx context.Context, name string) (store.Group, error) {
	childPath := joinPath(g.path, name)
	if _, err := g.s.getMeta(childPath); err == nil {
		return nil, fmt.Errorf("group %q: %w", childPath, store.ErrExists)
	}
	if err := g.s.putMeta(childPath, nodeMeta{Kind: kindGroup}); err != nil {
		return nil, err
	}
	return newGroup(g.s, childPath), nil
}

func (g *group) CreateArray(ctx context.Context, name string, shape []int, dt array.Dtype, chunks []int) (store.Array, error) {
	childPath := joinPath(g.path, name)
	if _, err := g.s.getMeta(childPath); err == nil {
		return nil, fmt.Errorf("array %q: %w", childPath, store.ErrExists)
	}
	if chunks == nil {
		chunks = store.GuessChunks(shape, dt)
	}
	if len(chunks) != len(shape) {
		return nil, fmt.Errorf("chunk rank %d does not match shape rank %d", len(chunks), len(shape))
	}
	for i, c := range chunks {
		if c < 1 {
			return nil, fmt.Errorf("chunk extent %d on axis %d must be positive", c, i)
		}
	}

	meta := nodeMeta{Kind: kindArray, Shape: shape, Dtype: dt.String(), Chunks: chunks}
	if err := g.s.putMeta(childPath, meta); err != nil {
		return nil, err
	}
	return &arr{node: node{s: g.s, path: childPath}, meta: meta, dtype: dt}, nil
}

type arr struct {
	node
	meta  nodeMeta
	dtype array.Dtype
}

var (
	_ store.Array        = (*arr)(nil)
	_ store.SortedReader = (*arr)(nil)
)

func (a *arr) Kind() store.NodeKind { return store.KindArray }

func (a *arr) Shape() []int { return append([]int(nil), a.meta.Shape...) }

func (a *arr) Dtype() array.Dtype { return a.dtype }

func (a *arr) Chunks() []int { return append([]int(nil), a.meta.Chunks...) }

func (a *arr) geometry() chunking.Geometry {
	return chunking.Geometry{Shape: a.meta.Shape, Chunks: a.meta.Chunks, Dtype: a.dtype}
}

func (a *arr) chunkKey(coords []int) []byte {
	return []byte(chunkPrefix + a.path + chunkSep + chunking.Key(coords))
}

func (a *arr) getChunk(ctx context.Context, coords []int) (*array.Array, error) {
	var data []byte
	err := a.s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(a.chunkKey(coords))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	chunk, err := array.FromBytes(a.dtype, a.Chunks(), data)
	if err != nil {
		return nil, fmt.Errorf("chunk %s of %q: %w", chunking.Key(coords), a.path, err)
	}
	return chunk, nil
}

func (a *arr) putChunk(ctx context.Context, coords []int, chunk *array.Array) error {
	return a.s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(a.chunkKey(coords), chunk.Bytes())
	})
}

func (a *arr) ReadRegion(ctx context.Context, start, stop []int) (*array.Array, error) {
	return chunking.ReadRegion(ctx, a.geometry(), start, stop, a.getChunk)
}

// ReadSorted serves a monotonically non-decreasing index list along one
// axis natively, visiting each chunk at most once.
func (a *arr) ReadSorted(ctx context.Context, axis int, idx []int, start, stop []int) (*array.Array, error) {
	return chunking.ReadSorted(ctx, a.geometry(), axis, idx, start, stop, a.getChunk)
}

func (a *arr) WriteRegion(ctx context.Context, start []int, src *array.Array) error {
	if src.Dtype() != a.dtype {
		return fmt.Errorf("writing %s data into %s array %q", src.Dtype(), a.dtype, a.path)
	}
	return chunking.WriteRegion(ctx, a.geometry(), start, src, a.getChunk, a.putChunk)
}
