// Package store defines the capability surface shared by the two array
// storage backends: the monolithic hierarchical store (pkg/store/hier)
// and the directory-backed chunked store (pkg/store/zarr).
//
// The node model is a closed variant: every Node is either a Group or an
// Array. Consumers dispatch on Node.Kind rather than on concrete backend
// types, so code written against these interfaces (selections, block
// assembly, transcoding) runs unchanged on either backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/DudLab/gridstore/pkg/array"
)

var (
	// ErrNotFound is returned when a named node or key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned when creating a node that already exists.
	ErrExists = errors.New("already exists")

	// ErrReadOnly is returned by mutating operations on read-only stores.
	ErrReadOnly = errors.New("store is read-only")

	// ErrUnsupportedNodeType is returned when a node kind has no analogue
	// in the operation's destination, e.g. during transcoding.
	ErrUnsupportedNodeType = errors.New("unsupported node type")
)

// NodeKind discriminates the closed node variant.
type NodeKind int

const (
	KindGroup NodeKind = iota
	KindArray
)

func (k NodeKind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Node is either a Group or an Array.
type Node interface {
	// Kind reports which variant this node is.
	Kind() NodeKind

	// Path is the node's /-separated path from the root. The root group's
	// path is "".
	Path() string

	// Attrs returns the node's string-keyed attributes.
	Attrs(ctx context.Context) (map[string]any, error)

	// SetAttrs merges the given attributes into the node's attributes.
	SetAttrs(ctx context.Context, attrs map[string]any) error
}

// Group is a container of named child nodes.
type Group interface {
	Node

	// Keys returns the names of immediate children in sorted order.
	Keys(ctx context.Context) ([]string, error)

	// Child returns the named immediate child, or ErrNotFound.
	Child(ctx context.Context, name string) (Node, error)

	// CreateGroup creates an empty child group.
	CreateGroup(ctx context.Context, name string) (Group, error)

	// CreateArray creates a child array. chunks may be nil, in which case
	// the backend picks a chunk shape.
	CreateArray(ctx context.Context, name string, shape []int, dt array.Dtype, chunks []int) (Array, error)
}

// Array is a stored n-dimensional dataset.
//
// Shape, Dtype and Chunks are fixed at creation and served from metadata
// loaded at open time; they perform no I/O. ReadRegion and WriteRegion
// open whatever backend resources they need per call, so an Array value
// may be shared freely between goroutines.
type Array interface {
	Node

	Shape() []int
	Dtype() array.Dtype

	// Chunks returns the chunk shape, or nil for unchunked storage.
	Chunks() []int

	// ReadRegion reads the hyper-rectangle [start[i], stop[i]).
	ReadRegion(ctx context.Context, start, stop []int) (*array.Array, error)

	// WriteRegion writes src at the given offset.
	WriteRegion(ctx context.Context, start []int, src *array.Array) error
}

// SortedReader is an optional Array capability: reading a monotonically
// non-decreasing index list along one axis in a single call. Backends
// without it are driven through the per-index fallback in pkg/dataset.
type SortedReader interface {
	ReadSorted(ctx context.Context, axis int, idx []int, start, stop []int) (*array.Array, error)
}

// Store is an open storage backend.
type Store interface {
	// Root returns the root group.
	Root(ctx context.Context) (Group, error)

	// Close releases backend resources. The store must not be used after
	// Close returns.
	Close() error
}

// Lookup resolves a /-separated path against the store's root group.
// The empty path resolves to the root itself.
func Lookup(ctx context.Context, st Store, path string) (Node, error) {
	root, err := st.Root(ctx)
	if err != nil {
		return nil, err
	}

	var node Node = root
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		g, ok := node.(Group)
		if !ok {
			return nil, fmt.Errorf("%q is not a group: %w", node.Path(), ErrNotFound)
		}
		node, err = g.Child(ctx, part)
		if err != nil {
			return nil, fmt.Errorf("lookup %q: %w", path, err)
		}
	}
	return node, nil
}

// LookupArray resolves a path that must name an array.
func LookupArray(ctx context.Context, st Store, path string) (Array, error) {
	node, err := Lookup(ctx, st, path)
	if err != nil {
		return nil, err
	}
	arr, ok := node.(Array)
	if !ok {
		return nil, fmt.Errorf("%q is a %s, not an array: %w", path, node.Kind(), ErrUnsupportedNodeType)
	}
	return arr, nil
}

// GuessChunks picks a chunk shape for a new array when the caller does
// not supply one: each axis is halved until the chunk payload fits under
// four MiB, never below one element per axis.
func GuessChunks(shape []int, dt array.Dtype) []int {
	const targetBytes = 4 << 20

	chunks := make([]int, len(shape))
	size := dt.Size
	for i, s := range shape {
		if s < 1 {
			s = 1
		}
		chunks[i] = s
		size *= s
	}
	for axis := 0; size > targetBytes; axis = (axis + 1) % len(chunks) {
		if len(shape) == 0 {
			break
		}
		if chunks[axis] > 1 {
			size = size / chunks[axis]
			chunks[axis] = (chunks[axis] + 1) / 2
			size = size * chunks[axis]
		}
		stuck := true
		for _, c := range chunks {
			if c > 1 {
				stuck = false
			}
		}
		if stuck {
			break
		}
	}
	return chunks
}
