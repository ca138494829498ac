// Package chunking implements the chunk-grid arithmetic shared by both
// storage backends: mapping a logical hyper-rectangle onto the chunks that
// cover it, and assembling or scattering element data chunk by chunk.
package chunking

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/DudLab/gridstore/pkg/array"
)

// Geometry describes a chunked dataset: its logical shape, chunk shape,
// and element type. Shape and Chunks always have the same rank.
type Geometry struct {
	Shape  []int
	Chunks []int
	Dtype  array.Dtype
}

// GetChunk returns the decoded chunk at the given grid coordinates, or
// (nil, nil) if the chunk has never been written. A returned chunk always
// has the full chunk shape; edge chunks are stored padded.
type GetChunk func(ctx context.Context, coords []int) (*array.Array, error)

// PutChunk stores the chunk at the given grid coordinates. The chunk is
// always full-sized.
type PutChunk func(ctx context.Context, coords []int, chunk *array.Array) error

// GridDims returns the number of chunks along each axis,
// ceil(shape[i] / chunks[i]).
func GridDims(shape, chunks []int) []int {
	dims := make([]int, len(shape))
	for i := range shape {
		dims[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}
	return dims
}

// BlockRange returns the logical extent [start, stop) covered by the chunk
// at the given grid coordinates. The final chunk on each axis is clipped
// to the dataset shape.
func BlockRange(coords, shape, chunks []int) (start, stop []int) {
	start = make([]int, len(shape))
	stop = make([]int, len(shape))
	for i := range shape {
		start[i] = coords[i] * chunks[i]
		stop[i] = start[i] + chunks[i]
		if stop[i] > shape[i] {
			stop[i] = shape[i]
		}
	}
	return start, stop
}

// Key renders grid coordinates as a dot-separated chunk key, "1.4" style.
// A rank-0 dataset has the single chunk key "0".
func Key(coords []int) string {
	if len(coords) == 0 {
		return "0"
	}
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ".")
}

// ParseKey parses a dot-separated chunk key of the given rank.
func ParseKey(key string, rank int) ([]int, error) {
	if rank == 0 {
		if key != "0" {
			return nil, fmt.Errorf("invalid rank-0 chunk key %q", key)
		}
		return nil, nil
	}
	parts := strings.Split(key, ".")
	if len(parts) != rank {
		return nil, fmt.Errorf("chunk key %q has %d coordinates, want %d", key, len(parts), rank)
	}
	coords := make([]int, rank)
	for i, p := range parts {
		c, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid chunk key %q: %w", key, err)
		}
		coords[i] = c
	}
	return coords, nil
}

// next advances idx as an odometer bounded below lo and above hi
// (exclusive), returning false once the leading axis overflows.
func next(idx, lo, hi []int) bool {
	for k := len(idx) - 1; k >= 0; k-- {
		idx[k]++
		if idx[k] < hi[k] {
			return true
		}
		idx[k] = lo[k]
	}
	return false
}

// ReadRegion reads the hyper-rectangle [start, stop) by visiting every
// chunk that overlaps it. Chunks that have never been written contribute
// zero-filled elements.
func ReadRegion(ctx context.Context, g Geometry, start, stop []int, get GetChunk) (*array.Array, error) {
	r := len(g.Shape)
	outShape := make([]int, r)
	for i := range g.Shape {
		if start[i] < 0 || stop[i] > g.Shape[i] || start[i] > stop[i] {
			return nil, fmt.Errorf("region [%d, %d) out of bounds on axis %d (extent %d)",
				start[i], stop[i], i, g.Shape[i])
		}
		outShape[i] = stop[i] - start[i]
	}
	out := array.New(g.Dtype, outShape)
	if out.Len() == 0 {
		return out, nil
	}

	lo := make([]int, r)
	hi := make([]int, r)
	for i := range g.Shape {
		lo[i] = start[i] / g.Chunks[i]
		hi[i] = (stop[i] + g.Chunks[i] - 1) / g.Chunks[i]
	}

	coords := append([]int(nil), lo...)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, err := get(ctx, coords)
		if err != nil {
			return nil, err
		}
		if chunk != nil {
			bStart, bStop := BlockRange(coords, g.Shape, g.Chunks)
			ovStart := make([]int, r)
			ovStop := make([]int, r)
			inStart := make([]int, r)
			inStop := make([]int, r)
			dstStart := make([]int, r)
			for i := 0; i < r; i++ {
				ovStart[i] = max(start[i], bStart[i])
				ovStop[i] = min(stop[i], bStop[i])
				inStart[i] = ovStart[i] - bStart[i]
				inStop[i] = ovStop[i] - bStart[i]
				dstStart[i] = ovStart[i] - start[i]
			}
			sub, err := chunk.Region(inStart, inStop)
			if err != nil {
				return nil, err
			}
			if err := out.SetRegion(dstStart, sub); err != nil {
				return nil, err
			}
		}
		if r == 0 || !next(coords, lo, hi) {
			break
		}
	}
	return out, nil
}

// WriteRegion scatters src over the chunks covering the hyper-rectangle
// starting at start. Partially covered chunks are read, patched, and put
// back; fully covered chunks are written without the read.
func WriteRegion(ctx context.Context, g Geometry, start []int, src *array.Array, get GetChunk, put PutChunk) error {
	r := len(g.Shape)
	stop := make([]int, r)
	srcShape := src.Shape()
	for i := 0; i < r; i++ {
		stop[i] = start[i] + srcShape[i]
		if start[i] < 0 || stop[i] > g.Shape[i] {
			return fmt.Errorf("write region [%d, %d) out of bounds on axis %d (extent %d)",
				start[i], stop[i], i, g.Shape[i])
		}
	}
	if src.Len() == 0 {
		return nil
	}

	lo := make([]int, r)
	hi := make([]int, r)
	for i := 0; i < r; i++ {
		lo[i] = start[i] / g.Chunks[i]
		hi[i] = (stop[i] + g.Chunks[i] - 1) / g.Chunks[i]
	}

	coords := append([]int(nil), lo...)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		bStart, bStop := BlockRange(coords, g.Shape, g.Chunks)

		fullShape := make([]int, r)
		ovStart := make([]int, r)
		ovStop := make([]int, r)
		srcStart := make([]int, r)
		srcStop := make([]int, r)
		inStart := make([]int, r)
		covered := true
		for i := 0; i < r; i++ {
			fullShape[i] = g.Chunks[i]
			ovStart[i] = max(start[i], bStart[i])
			ovStop[i] = min(stop[i], bStop[i])
			srcStart[i] = ovStart[i] - start[i]
			srcStop[i] = ovStop[i] - start[i]
			inStart[i] = ovStart[i] - bStart[i]
			if ovStart[i] != bStart[i] || ovStop[i] != bStart[i]+g.Chunks[i] {
				covered = false
			}
		}

		patch, err := src.Region(srcStart, srcStop)
		if err != nil {
			return err
		}

		var chunk *array.Array
		if covered {
			chunk = patch
		} else {
			chunk, err = get(ctx, coords)
			if err != nil {
				return err
			}
			if chunk == nil {
				chunk = array.New(g.Dtype, fullShape)
			}
			if err := chunk.SetRegion(inStart, patch); err != nil {
				return err
			}
		}
		if err := put(ctx, coords, chunk); err != nil {
			return err
		}

		if r == 0 || !next(coords, lo, hi) {
			break
		}
	}
	return nil
}

// ReadSorted reads a monotonically non-decreasing index list along one
// axis, a plain range on every other axis. Runs of indices that fall in
// the same chunk row are fetched with one region read, so each chunk is
// visited at most once.
func ReadSorted(ctx context.Context, g Geometry, axis int, idx []int, start, stop []int, get GetChunk) (*array.Array, error) {
	if len(idx) == 0 {
		empty := make([]int, len(g.Shape))
		for i := range empty {
			if i == axis {
				empty[i] = 0
			} else {
				empty[i] = stop[i] - start[i]
			}
		}
		return array.New(g.Dtype, empty), nil
	}

	var parts []*array.Array
	for lo := 0; lo < len(idx); {
		chunkRow := idx[lo] / g.Chunks[axis]
		hi := lo + 1
		for hi < len(idx) && idx[hi]/g.Chunks[axis] == chunkRow {
			hi++
		}
		run := idx[lo:hi]

		rStart := append([]int(nil), start...)
		rStop := append([]int(nil), stop...)
		rStart[axis] = run[0]
		rStop[axis] = run[len(run)-1] + 1
		region, err := ReadRegion(ctx, g, rStart, rStop, get)
		if err != nil {
			return nil, err
		}

		rel := make([]int, len(run))
		for i, ix := range run {
			rel[i] = ix - run[0]
		}
		part, err := region.Take(axis, rel)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
		lo = hi
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return array.Concat(axis, parts...)
}
