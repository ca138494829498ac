// Package transcode copies group/array structure between the two storage
// backends using only the shared capability surface, so either direction
// (hierarchical to directory store or back) is the same walk.
package transcode

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/DudLab/gridstore/internal/logger"
	"github.com/DudLab/gridstore/pkg/blockgrid"
	"github.com/DudLab/gridstore/pkg/store"
)

// Copy transcribes every node under src into dst, preserving shape,
// dtype, chunk shape, and attributes. Children are visited in name order.
// A node kind with no analogue in the destination fails with
// store.ErrUnsupportedNodeType.
//
// The walk is iterative with an explicit work list, so arbitrarily deep
// hierarchies do not recurse.
func Copy(ctx context.Context, src, dst store.Group) error {
	type pair struct {
		src store.Group
		dst store.Group
	}

	work := []pair{{src: src, dst: dst}}
	for len(work) > 0 {
		p := work[0]
		work = work[1:]

		if err := copyAttrs(ctx, p.src, p.dst); err != nil {
			return err
		}

		names, err := p.src.Keys(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			child, err := p.src.Child(ctx, name)
			if err != nil {
				return err
			}

			switch node := child.(type) {
			case store.Group:
				created, err := p.dst.CreateGroup(ctx, name)
				if err != nil {
					return fmt.Errorf("creating group %q: %w", child.Path(), err)
				}
				work = append(work, pair{src: node, dst: created})

			case store.Array:
				if err := copyArray(ctx, node, p.dst, name); err != nil {
					return err
				}

			default:
				return fmt.Errorf("node %q has no destination analogue: %w",
					child.Path(), store.ErrUnsupportedNodeType)
			}
		}
	}
	return nil
}

// CopyStores transcribes the entire tree of one store into another.
func CopyStores(ctx context.Context, src, dst store.Store) error {
	srcRoot, err := src.Root(ctx)
	if err != nil {
		return err
	}
	dstRoot, err := dst.Root(ctx)
	if err != nil {
		return err
	}
	return Copy(ctx, srcRoot, dstRoot)
}

func copyAttrs(ctx context.Context, src, dst store.Node) error {
	attrs, err := src.Attrs(ctx)
	if err != nil {
		return err
	}
	if len(attrs) == 0 {
		return nil
	}
	return dst.SetAttrs(ctx, attrs)
}

// copyArray recreates one array and streams its data chunk-aligned block
// by block, blocks in parallel. No block is ever resident more than once.
func copyArray(ctx context.Context, src store.Array, dstParent store.Group, name string) error {
	created, err := dstParent.CreateArray(ctx, name, src.Shape(), src.Dtype(), src.Chunks())
	if err != nil {
		return fmt.Errorf("creating array %q: %w", src.Path(), err)
	}
	if err := copyAttrs(ctx, src, created); err != nil {
		return err
	}

	chunks := src.Chunks()
	if chunks == nil {
		chunks = src.Shape()
	}
	grid, err := blockgrid.Build(src.Shape(), chunks)
	if err != nil {
		return err
	}

	logger.Debug("Transcoding array %s: shape=%v blocks=%d", src.Path(), src.Shape(), grid.Len())

	eg, ctx := errgroup.WithContext(ctx)
	for _, b := range grid.Blocks() {
		eg.Go(func() error {
			data, err := src.ReadRegion(ctx, b.Start, b.Stop)
			if err != nil {
				return fmt.Errorf("reading block %v of %q: %w", b.Start, src.Path(), err)
			}
			return created.WriteRegion(ctx, b.Start, data)
		})
	}
	return eg.Wait()
}
