package dataset

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DudLab/gridstore/pkg/array"
	"github.com/DudLab/gridstore/pkg/store"
	"github.com/DudLab/gridstore/pkg/store/hier"
	"github.com/DudLab/gridstore/pkg/store/zarr"
)

// Both backends run the same selection scenarios: the directory store has
// no native sorted reads and exercises the split fallback, the monolithic
// store exercises the sorted path with reordering.
var backends = []struct {
	name string
	open func(t *testing.T) store.Store
}{
	{
		name: "zarr",
		open: func(t *testing.T) store.Store {
			st, err := zarr.Create(zarr.NewMemoryKV())
			require.NoError(t, err)
			return st
		},
	},
	{
		name: "hier",
		open: func(t *testing.T) store.Store {
			st, err := hier.Open(filepath.Join(t.TempDir(), "container.db"))
			require.NoError(t, err)
			t.Cleanup(func() { st.Close() })
			return st
		},
	},
}

func seq(t *testing.T, shape ...int) *array.Array {
	t.Helper()
	a := array.New(array.Float64, shape)
	for i := 0; i < a.Len(); i++ {
		require.NoError(t, a.SetFloat64At(i, float64(i)))
	}
	return a
}

// openSeqDataset stores a sequentially-valued (10, 7) dataset with (4, 3)
// chunks and opens a handle on it. Chunks divide neither axis evenly, so
// selections cross chunk boundaries and hit padded edge chunks.
func openSeqDataset(t *testing.T, st store.Store) (*Handle, *array.Array) {
	t.Helper()
	ctx := context.Background()

	root, err := st.Root(ctx)
	require.NoError(t, err)
	arr, err := root.CreateArray(ctx, "data", []int{10, 7}, array.Float64, []int{4, 3})
	require.NoError(t, err)

	src := seq(t, 10, 7)
	require.NoError(t, arr.WriteRegion(ctx, []int{0, 0}, src))

	h, err := Open(ctx, st, "data")
	require.NoError(t, err)
	return h, src
}

func TestHandleDescriptor(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			h, _ := openSeqDataset(t, b.open(t))

			assert.Equal(t, []int{10, 7}, h.Shape())
			assert.Equal(t, array.Float64, h.Dtype())
			assert.Equal(t, []int{4, 3}, h.Chunks())
			assert.Equal(t, 10, h.Len())
		})
	}
}

func TestResolve_RegionOnly(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h, src := openSeqDataset(t, b.open(t))

			got, err := h.Resolve(ctx, Range(2, 8), Range(1, 6))
			require.NoError(t, err)

			want, err := src.Region([]int{2, 1}, []int{8, 6})
			require.NoError(t, err)
			assert.True(t, want.Equal(got))
		})
	}
}

func TestResolve_FancyLeadingAxis(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h, src := openSeqDataset(t, b.open(t))

			// Unsorted, with repeats, spanning several chunk rows
			idx := []int{5, 0, 0, 8, 3}
			got, err := h.Resolve(ctx, Indices(idx...), Range(2, 6))
			require.NoError(t, err)

			region, err := src.Region([]int{0, 2}, []int{10, 6})
			require.NoError(t, err)
			want, err := region.Take(0, idx)
			require.NoError(t, err)

			assert.Equal(t, []int{5, 4}, got.Shape())
			assert.True(t, want.Equal(got))
		})
	}
}

func TestResolve_FancyTrailingAxis(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h, src := openSeqDataset(t, b.open(t))

			idx := []int{6, 0, 6}
			got, err := h.Resolve(ctx, Range(1, 9), Indices(idx...))
			require.NoError(t, err)

			region, err := src.Region([]int{1, 0}, []int{9, 7})
			require.NoError(t, err)
			want, err := region.Take(1, idx)
			require.NoError(t, err)

			assert.Equal(t, []int{8, 3}, got.Shape())
			assert.True(t, want.Equal(got))
		})
	}
}

func TestResolve_IntegerAxisDropped(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h, src := openSeqDataset(t, b.open(t))

			got, err := h.Resolve(ctx, At(3), Range(2, 5))
			require.NoError(t, err)

			region, err := src.Region([]int{3, 2}, []int{4, 5})
			require.NoError(t, err)
			want, err := region.Reshape([]int{3})
			require.NoError(t, err)

			assert.Equal(t, []int{3}, got.Shape())
			assert.True(t, want.Equal(got))
		})
	}
}

func TestResolve_NegativeIndexWraps(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h, src := openSeqDataset(t, b.open(t))

			got, err := h.Resolve(ctx, At(-1), Indices(0, -2))
			require.NoError(t, err)

			region, err := src.Region([]int{9, 0}, []int{10, 7})
			require.NoError(t, err)
			taken, err := region.Take(1, []int{0, 5})
			require.NoError(t, err)
			want, err := taken.Reshape([]int{2})
			require.NoError(t, err)

			assert.True(t, want.Equal(got))
		})
	}
}

func TestResolve_Mask(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h, src := openSeqDataset(t, b.open(t))

			mask := make([]bool, 10)
			mask[1], mask[4], mask[9] = true, true, true

			got, err := h.Resolve(ctx, Mask(mask))
			require.NoError(t, err)

			want, err := src.Take(0, []int{1, 4, 9})
			require.NoError(t, err)
			assert.True(t, want.Equal(got))
		})
	}
}

func TestResolve_MaskLengthMismatch(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h, _ := openSeqDataset(t, b.open(t))

			_, err := h.Resolve(ctx, Mask(make([]bool, 3)))
			assert.Error(t, err)
		})
	}
}

func TestResolve_EmptySequence(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h, _ := openSeqDataset(t, b.open(t))

			got, err := h.Resolve(ctx, Indices(), Range(0, 4))
			require.NoError(t, err)
			assert.Equal(t, []int{0, 4}, got.Shape())
		})
	}
}

func TestResolve_TwoSequenceAxesUnsupported(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h, _ := openSeqDataset(t, b.open(t))

			_, err := h.Resolve(ctx, Indices(1, 2), Indices(3))
			assert.ErrorIs(t, err, ErrUnsupportedIndexPattern)

			_, err = h.Resolve(ctx, Mask(make([]bool, 10)), Indices(3))
			assert.ErrorIs(t, err, ErrUnsupportedIndexPattern)
		})
	}
}

func TestResolve_IndexOutOfRange(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h, _ := openSeqDataset(t, b.open(t))

			_, err := h.Resolve(ctx, At(10))
			assert.Error(t, err)

			_, err = h.Resolve(ctx, Indices(0, -11))
			assert.Error(t, err)

			_, err = h.Resolve(ctx, Range(0, 11))
			assert.Error(t, err)
		})
	}
}

func TestSelection_Composition(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h, src := openSeqDataset(t, b.open(t))

			// Inner: pick rows; outer: from those rows pick positions again
			got, err := h.Select(Indices(5, 0, 8, 3), Range(1, 7)).
				Select(Indices(2, 0), Range(0, 3)).
				Resolve(ctx)
			require.NoError(t, err)

			region, err := src.Region([]int{0, 1}, []int{10, 7})
			require.NoError(t, err)
			inner, err := region.Take(0, []int{5, 0, 8, 3})
			require.NoError(t, err)
			mid, err := inner.Region([]int{0, 0}, []int{4, 3})
			require.NoError(t, err)
			want, err := mid.Take(0, []int{2, 0})
			require.NoError(t, err)

			assert.Equal(t, []int{2, 3}, got.Shape())
			assert.True(t, want.Equal(got))
		})
	}
}

func TestSelection_CompositionIntegerAxis(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h, src := openSeqDataset(t, b.open(t))

			got, err := h.Select(Range(2, 8)).Select(At(0)).Resolve(ctx)
			require.NoError(t, err)

			region, err := src.Region([]int{2, 0}, []int{3, 7})
			require.NoError(t, err)
			want, err := region.Reshape([]int{7})
			require.NoError(t, err)

			assert.True(t, want.Equal(got))
		})
	}
}

func TestWithDtype(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h, src := openSeqDataset(t, b.open(t))

			err := h.WithDtype(array.Int32, func(view *Handle) error {
				assert.Equal(t, array.Int32, view.Dtype())

				got, err := view.Resolve(ctx, Range(0, 2))
				require.NoError(t, err)
				assert.Equal(t, array.Int32, got.Dtype())

				region, err := src.Region([]int{0, 0}, []int{2, 7})
				require.NoError(t, err)
				want, err := region.AsType(array.Int32)
				require.NoError(t, err)
				assert.True(t, want.Equal(got))
				return nil
			})
			require.NoError(t, err)

			// The cast does not outlive the scope
			assert.Equal(t, array.Float64, h.Dtype())
		})
	}
}

func TestReadFull(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			h, src := openSeqDataset(t, b.open(t))

			got, err := h.ReadFull(ctx)
			require.NoError(t, err)
			assert.True(t, src.Equal(got))
		})
	}
}

func TestWriteAll(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			st := b.open(t)

			a := seq(t, 9, 5)
			c := seq(t, 4)
			require.NoError(t, WriteAll(ctx, st, []string{"a", "c"}, []*array.Array{a, c}))

			ha, err := Open(ctx, st, "a")
			require.NoError(t, err)
			got, err := ha.ReadFull(ctx)
			require.NoError(t, err)
			assert.True(t, a.Equal(got))

			hc, err := Open(ctx, st, "c")
			require.NoError(t, err)
			got, err = hc.ReadFull(ctx)
			require.NoError(t, err)
			assert.True(t, c.Equal(got))
		})
	}
}

func TestWriteAll_LengthMismatch(t *testing.T) {
	ctx := context.Background()
	st, err := zarr.Create(zarr.NewMemoryKV())
	require.NoError(t, err)

	err = WriteAll(ctx, st, []string{"a"}, nil)
	assert.ErrorIs(t, err, ErrArgumentLength)
}

func TestOpen_Missing(t *testing.T) {
	ctx := context.Background()
	st, err := zarr.Create(zarr.NewMemoryKV())
	require.NoError(t, err)

	_, err = Open(ctx, st, "absent")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
