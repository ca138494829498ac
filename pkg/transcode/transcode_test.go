package transcode

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

func seq(t *testing.T, shape ...int) *array.Array {
	t.Helper()
	a := array.New(array.Float64, shape)
	for i := 0; i < a.Len(); i++ {
		require.NoError(t, a.SetFloat64At(i, float64(i)))
	}
	return a
}

// populate builds a small two-level tree with attributes and data.
func populate(t *testing.T, st store.Store) *array.Array {
	t.Helper()
	ctx := context.Background()

	root, err := st.Root(ctx)
	require.NoError(t, err)
	require.NoError(t, root.SetAttrs(ctx, map[string]any{"title": "experiment"}))

	g, err := root.CreateGroup(ctx, "images")
	require.NoError(t, err)

	data := seq(t, 10, 7)
	arr, err := g.CreateArray(ctx, "mean", []int{10, 7}, array.Float64, []int{4, 3})
	require.NoError(t, err)
	require.NoError(t, arr.WriteRegion(ctx, []int{0, 0}, data))
	require.NoError(t, arr.SetAttrs(ctx, map[string]any{"units": "counts"}))

	small, err := root.CreateArray(ctx, "offsets", []int{3}, array.Int32, []int{3})
	require.NoError(t, err)
	ints := array.New(array.Int32, []int{3})
	for i := 0; i < 3; i++ {
		require.NoError(t, ints.SetFloat64At(i, float64(i*10)))
	}
	require.NoError(t, small.WriteRegion(ctx, []int{0}, ints))

	return data
}

// verify checks that dst contains everything populate wrote.
func verify(t *testing.T, dst store.Store, want *array.Array) {
	t.Helper()
	ctx := context.Background()

	root, err := dst.Root(ctx)
	require.NoError(t, err)

	attrs, err := root.Attrs(ctx)
	require.NoError(t, err)
	assert.Equal(t, "experiment", attrs["title"])

	arr, err := store.LookupArray(ctx, dst, "images/mean")
	require.NoError(t, err)
	assert.Equal(t, []int{10, 7}, arr.Shape())
	assert.Equal(t, array.Float64, arr.Dtype())
	assert.Equal(t, []int{4, 3}, arr.Chunks())

	got, err := arr.ReadRegion(ctx, []int{0, 0}, []int{10, 7})
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	aattrs, err := arr.Attrs(ctx)
	require.NoError(t, err)
	assert.Equal(t, "counts", aattrs["units"])

	offsets, err := store.LookupArray(ctx, dst, "offsets")
	require.NoError(t, err)
	assert.Equal(t, array.Int32, offsets.Dtype())
	got, err = offsets.ReadRegion(ctx, []int{0}, []int{3})
	require.NoError(t, err)
	assert.Equal(t, 20.0, got.Float64At(2))
}

func newHier(t *testing.T) store.Store {
	t.Helper()
	st, err := hier.Open(filepath.Join(t.TempDir(), "container.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newZarr(t *testing.T) store.Store {
	st, err := zarr.Create(zarr.NewMemoryKV())
	require.NoError(t, err)
	return st
}

func TestCopyStores_HierToZarr(t *testing.T) {
	src := newHier(t)
	want := populate(t, src)

	dst := newZarr(t)
	require.NoError(t, CopyStores(context.Background(), src, dst))
	verify(t, dst, want)
}

func TestCopyStores_ZarrToHier(t *testing.T) {
	src := newZarr(t)
	want := populate(t, src)

	dst := newHier(t)
	require.NoError(t, CopyStores(context.Background(), src, dst))
	verify(t, dst, want)
}

func TestCopyStores_ThereAndBackAgain(t *testing.T) {
	ctx := context.Background()

	first := newZarr(t)
	want := populate(t, first)

	mid := newHier(t)
	require.NoError(t, CopyStores(ctx, first, mid))

	back := newZarr(t)
	require.NoError(t, CopyStores(ctx, mid, back))
	verify(t, back, want)
}

func TestCopyStores_EmptyStore(t *testing.T) {
	src := newZarr(t)
	dst := newHier(t)

	require.NoError(t, CopyStores(context.Background(), src, dst))

	root, err := dst.Root(context.Background())
	require.NoError(t, err)
	keys, err := root.Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCopyStores_DestinationCollision(t *testing.T) {
	ctx := context.Background()
	src := newZarr(t)
	populate(t, src)

	dst := newHier(t)
	droot, err := dst.Root(ctx)
	require.NoError(t, err)
	_, err = droot.CreateGroup(ctx, "images")
	require.NoError(t, err)

	err = CopyStores(ctx, src, dst)
	assert.ErrorIs(t, err, store.ErrExists)
}
