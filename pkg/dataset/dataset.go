// Package dataset provides the uniform read surface over both storage
// backends: handles with shape/dtype/chunk metadata, lazy composable
// selections, fancy-index emulation, and scoped type-cast views.
//
// A Handle captures a dataset's descriptor once at open time and performs
// no further I/O until a selection is resolved. Handles and Selections
// are immutable value objects: every access goes through the backend's
// per-call resources, so both are safe to share across goroutines.
package dataset

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/DudLab/gridstore/pkg/array"
	"github.com/DudLab/gridstore/pkg/blockgrid"
	"github.com/DudLab/gridstore/pkg/store"
)

// Descriptor is the immutable description of an open dataset.
type Descriptor struct {
	Shape  []int
	Dtype  array.Dtype
	Chunks []int
}

// Handle is an open dataset on either backend.
type Handle struct {
	arr  store.Array
	desc Descriptor

	// cast, when set, presents all reads converted to this dtype. Only
	// WithDtype sets it, on a scoped copy of the handle.
	cast array.Dtype
}

// Open resolves the named dataset in a store and captures its descriptor.
func Open(ctx context.Context, st store.Store, name string) (*Handle, error) {
	arr, err := store.LookupArray(ctx, st, name)
	if err != nil {
		return nil, err
	}
	return NewHandle(arr), nil
}

// NewHandle wraps an already-resolved backend array.
func NewHandle(arr store.Array) *Handle {
	return &Handle{
		arr: arr,
		desc: Descriptor{
			Shape:  arr.Shape(),
			Dtype:  arr.Dtype(),
			Chunks: arr.Chunks(),
		},
	}
}

// Shape returns the dataset's shape.
func (h *Handle) Shape() []int { return append([]int(nil), h.desc.Shape...) }

// Dtype returns the element type reads produce, honoring a scoped cast.
func (h *Handle) Dtype() array.Dtype {
	if !h.cast.IsZero() {
		return h.cast
	}
	return h.desc.Dtype
}

// Chunks returns the stored chunk shape, or nil.
func (h *Handle) Chunks() []int { return append([]int(nil), h.desc.Chunks...) }

// Len returns the extent of the leading axis.
func (h *Handle) Len() int {
	if len(h.desc.Shape) == 0 {
		return 0
	}
	return h.desc.Shape[0]
}

// WithDtype runs fn with a read-only view of the dataset whose reads are
// cast to dt. The view is valid only for the duration of fn and is
// released on every exit path, error exits included.
func (h *Handle) WithDtype(dt array.Dtype, fn func(view *Handle) error) error {
	view := *h
	view.cast = dt
	return fn(&view)
}

// Select captures an index operation without performing I/O.
func (h *Handle) Select(specs ...Spec) *Selection {
	return &Selection{h: h, specs: specs}
}

// Resolve is shorthand for Select(specs...).Resolve(ctx).
func (h *Handle) Resolve(ctx context.Context, specs ...Spec) (*array.Array, error) {
	return h.Select(specs...).Resolve(ctx)
}

// Selection is an immutable description of a (possibly chained) index
// operation. Nothing is read until Resolve.
type Selection struct {
	h      *Handle
	parent *Selection
	specs  []Spec
}

// Select composes a further selection against this selection's result
// coordinate space. The outer specs are resolved against the array the
// inner selection produces.
func (s *Selection) Select(specs ...Spec) *Selection {
	return &Selection{h: s.h, parent: s, specs: specs}
}

// Resolve materializes the selection. The innermost selection reads from
// the backend; chained selections are applied in memory, outermost last.
func (s *Selection) Resolve(ctx context.Context) (*array.Array, error) {
	if s.parent != nil {
		inner, err := s.parent.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		return applySpecs(s.specs, inner)
	}

	out, err := s.readBackend(ctx)
	if err != nil {
		return nil, err
	}
	if !s.h.cast.IsZero() && s.h.cast != s.h.desc.Dtype {
		out, err = out.AsType(s.h.cast)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// readBackend resolves the root selection against the store.
//
// Span and integer specs pass straight through as one region read. A
// single sequence axis is served natively when the backend reads sorted
// index lists (request sorted, un-permute the rows afterwards); otherwise
// the fallback issues one single-index read per entry, in the original
// order, and concatenates along that axis. The sequence axis may sit at
// any position.
func (s *Selection) readBackend(ctx context.Context) (*array.Array, error) {
	shape := s.h.desc.Shape
	sels, err := normalize(s.specs, shape)
	if err != nil {
		return nil, err
	}

	start, stop := bounds(sels, shape)
	axis := seqAxis(sels)

	var data *array.Array
	switch {
	case axis < 0:
		data, err = s.h.arr.ReadRegion(ctx, start, stop)
		if err != nil {
			return nil, err
		}

	default:
		seq := sels[axis].idx
		if sr, ok := s.h.arr.(store.SortedReader); ok {
			sorted, inverse := sortIndices(seq)
			data, err = sr.ReadSorted(ctx, axis, sorted, start, stop)
			if err != nil {
				return nil, err
			}
			data, err = reorderAxis(data, axis, inverse)
			if err != nil {
				return nil, err
			}
		} else {
			data, err = s.readSplit(ctx, axis, seq, start, stop)
			if err != nil {
				return nil, err
			}
		}
	}

	// Integer axes were read as unit spans; collapse them now.
	return data.Reshape(resultShape(sels))
}

// readSplit is the fallback for backends without native sorted-sequence
// reads: one read per sequence entry, concatenated in requested order.
func (s *Selection) readSplit(ctx context.Context, axis int, seq []int, start, stop []int) (*array.Array, error) {
	if len(seq) == 0 {
		empty := make([]int, len(start))
		for i := range start {
			empty[i] = stop[i] - start[i]
		}
		empty[axis] = 0
		return array.New(s.h.desc.Dtype, empty), nil
	}

	parts := make([]*array.Array, len(seq))
	for j, ix := range seq {
		rStart := append([]int(nil), start...)
		rStop := append([]int(nil), stop...)
		rStart[axis] = ix
		rStop[axis] = ix + 1
		part, err := s.h.arr.ReadRegion(ctx, rStart, rStop)
		if err != nil {
			return nil, err
		}
		parts[j] = part
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return array.Concat(axis, parts...)
}

// applySpecs indexes a materialized array in memory, with the same axis
// spec semantics (and the same one-sequence-axis limit) as backend reads.
func applySpecs(specs []Spec, a *array.Array) (*array.Array, error) {
	sels, err := normalize(specs, a.Shape())
	if err != nil {
		return nil, err
	}

	start, stop := bounds(sels, a.Shape())
	data, err := a.Region(start, stop)
	if err != nil {
		return nil, err
	}
	if axis := seqAxis(sels); axis >= 0 {
		data, err = data.Take(axis, sels[axis].idx)
		if err != nil {
			return nil, err
		}
	}
	return data.Reshape(resultShape(sels))
}

// ReadFull assembles the entire dataset through its block grid: every
// chunk-aligned block loads independently (and in parallel) and the grid
// is concatenated back into one array. The result is identical to a
// single whole-extent read.
func (h *Handle) ReadFull(ctx context.Context, opts ...blockgrid.Option) (*array.Array, error) {
	chunks := h.desc.Chunks
	if chunks == nil {
		chunks = h.desc.Shape
	}
	grid, err := blockgrid.Build(h.desc.Shape, chunks)
	if err != nil {
		return nil, err
	}

	out, err := grid.Assemble(ctx, func(ctx context.Context, b blockgrid.Block) (*array.Array, error) {
		return h.arr.ReadRegion(ctx, b.Start, b.Stop)
	}, opts...)
	if err != nil {
		return nil, err
	}

	if !h.cast.IsZero() && h.cast != h.desc.Dtype {
		return out.AsType(h.cast)
	}
	return out, nil
}

// WriteAll creates and stores named datasets in bulk under the store's
// root. Each dataset is written block by block, blocks in parallel. Chunk
// shapes are chosen by the backend.
func WriteAll(ctx context.Context, st store.Store, names []string, data []*array.Array) error {
	if len(names) != len(data) {
		return fmt.Errorf("%w: %d names for %d datasets", ErrArgumentLength, len(names), len(data))
	}

	root, err := st.Root(ctx)
	if err != nil {
		return err
	}

	for i, name := range names {
		src := data[i]
		arr, err := root.CreateArray(ctx, name, src.Shape(), src.Dtype(), nil)
		if err != nil {
			return fmt.Errorf("creating %q: %w", name, err)
		}
		if err := writeBlocks(ctx, arr, src); err != nil {
			return fmt.Errorf("storing %q: %w", name, err)
		}
	}
	return nil
}

func writeBlocks(ctx context.Context, dst store.Array, src *array.Array) error {
	chunks := dst.Chunks()
	if chunks == nil {
		chunks = src.Shape()
	}
	grid, err := blockgrid.Build(src.Shape(), chunks)
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, b := range grid.Blocks() {
		eg.Go(func() error {
			part, err := src.Region(b.Start, b.Stop)
			if err != nil {
				return err
			}
			return dst.WriteRegion(ctx, b.Start, part)
		})
	}
	return eg.Wait()
}
