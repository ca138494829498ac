// Package blockgrid reconstructs a whole logical array from the grid of
// independently loadable chunk-aligned blocks that covers it.
//
// Build partitions a shape into block extents; Assemble loads every block
// through a caller-supplied callback (blocks are mutually independent and
// load in parallel) and concatenates the grid back into a single array,
// processing axes innermost first so each concatenation joins arrays of
// matching rank and compatible outer extents.
package blockgrid

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/DudLab/gridstore/internal/chunking"
	"github.com/DudLab/gridstore/pkg/array"
)

// Block is the logical extent [Start[i], Stop[i]) of one grid cell.
type Block struct {
	Start []int
	Stop  []int
}

// Grid is the n-dimensional arrangement of blocks covering a shape. Cells
// are stored flattened in row-major order over Dims.
type Grid struct {
	dims   []int
	blocks []Block
}

// Loader reads the data for one block, e.g. a hyper-rectangle read
// against a stored dataset.
type Loader func(ctx context.Context, b Block) (*array.Array, error)

// Build partitions shape into chunk-aligned blocks. The final block on
// each axis is shorter when the shape is not a chunk multiple. A rank-0
// shape yields a single block.
func Build(shape, chunks []int) (*Grid, error) {
	if len(shape) != len(chunks) {
		return nil, fmt.Errorf("shape rank %d does not match chunk rank %d", len(shape), len(chunks))
	}
	for i := range shape {
		if shape[i] < 0 {
			return nil, fmt.Errorf("negative extent %d on axis %d", shape[i], i)
		}
		if chunks[i] < 1 {
			return nil, fmt.Errorf("chunk extent %d on axis %d must be positive", chunks[i], i)
		}
	}

	dims := chunking.GridDims(shape, chunks)
	total := 1
	for _, d := range dims {
		total *= d
	}

	blocks := make([]Block, 0, total)
	coords := make([]int, len(dims))
	for i := 0; i < total; i++ {
		start, stop := chunking.BlockRange(coords, shape, chunks)
		blocks = append(blocks, Block{Start: start, Stop: stop})

		for k := len(coords) - 1; k >= 0; k-- {
			coords[k]++
			if coords[k] < dims[k] {
				break
			}
			coords[k] = 0
		}
	}
	return &Grid{dims: dims, blocks: blocks}, nil
}

// Dims returns the number of blocks along each axis.
func (g *Grid) Dims() []int { return append([]int(nil), g.dims...) }

// Len returns the total number of blocks.
func (g *Grid) Len() int { return len(g.blocks) }

// Blocks returns the grid cells flattened in row-major order.
func (g *Grid) Blocks() []Block { return g.blocks }

// Option adjusts assembly behavior.
type Option func(*options)

type options struct {
	parallelism int
}

// WithParallelism bounds the number of concurrent block loads. Zero or
// negative means unbounded.
func WithParallelism(n int) Option {
	return func(o *options) { o.parallelism = n }
}

// Assemble loads every block and concatenates the grid into one array.
//
// Loads run concurrently; the join for each concatenation step waits for
// all of the loads it consumes. Axes are reduced from last to first: at
// each step the runs of cells along the current last grid axis are
// concatenated, collapsing that axis, until a single cell remains. The
// result is bit-identical to reading the whole extent in one call.
func (g *Grid) Assemble(ctx context.Context, load Loader, opts ...Option) (*array.Array, error) {
	var cfg options
	for _, opt := range opts {
		opt(&cfg)
	}

	cells := make([]*array.Array, len(g.blocks))
	eg, ctx := errgroup.WithContext(ctx)
	if cfg.parallelism > 0 {
		eg.SetLimit(cfg.parallelism)
	}
	for i := range g.blocks {
		eg.Go(func() error {
			a, err := load(ctx, g.blocks[i])
			if err != nil {
				return fmt.Errorf("loading block %v: %w", g.blocks[i].Start, err)
			}
			cells[i] = a
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	dims := append([]int(nil), g.dims...)
	for k := len(dims) - 1; k >= 0; k-- {
		n := dims[k]
		outer := 1
		for _, d := range dims[:k] {
			outer *= d
		}
		joined := make([]*array.Array, outer)
		for o := 0; o < outer; o++ {
			part, err := array.Concat(k, cells[o*n:(o+1)*n]...)
			if err != nil {
				return nil, fmt.Errorf("joining axis %d: %w", k, err)
			}
			joined[o] = part
		}
		cells = joined
		dims = dims[:k]
	}
	return cells[0], nil
}
