package array

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seqF64 builds a float64 array filled with 0, 1, 2, ... in row-major order.
func seqF64(t *testing.T, shape ...int) *Array {
	t.Helper()
	a := New(Float64, shape)
	for i := 0; i < a.Len(); i++ {
		require.NoError(t, a.SetFloat64At(i, float64(i)))
	}
	return a
}

func f64s(a *Array) []float64 {
	out := make([]float64, a.Len())
	for i := range out {
		out[i] = a.Float64At(i)
	}
	return out
}

func TestNew(t *testing.T) {
	a := New(Float64, []int{2, 3})

	assert.Equal(t, []int{2, 3}, a.Shape())
	assert.Equal(t, 2, a.Rank())
	assert.Equal(t, 6, a.Len())
	assert.Equal(t, 48, len(a.Bytes()))
	assert.Equal(t, Float64, a.Dtype())
}

func TestNew_Scalar(t *testing.T) {
	a := New(Int32, nil)

	assert.Equal(t, 0, a.Rank())
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 4, len(a.Bytes()))
}

func TestFromBytes(t *testing.T) {
	data := make([]byte, 24)
	a, err := FromBytes(Float64, []int{3}, data)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, a.Shape())

	_, err = FromBytes(Float64, []int{3}, make([]byte, 23))
	assert.Error(t, err)
}

func TestRegion(t *testing.T) {
	// 4x5 array, values 0..19
	a := seqF64(t, 4, 5)

	r, err := a.Region([]int{1, 2}, []int{3, 5})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3}, r.Shape())
	assert.Equal(t, []float64{7, 8, 9, 12, 13, 14}, f64s(r))
}

func TestRegion_Full(t *testing.T) {
	a := seqF64(t, 2, 3)

	r, err := a.Region([]int{0, 0}, []int{2, 3})
	require.NoError(t, err)
	assert.True(t, a.Equal(r))
}

func TestRegion_OutOfBounds(t *testing.T) {
	a := seqF64(t, 2, 3)

	_, err := a.Region([]int{0, 0}, []int{2, 4})
	assert.Error(t, err)

	_, err = a.Region([]int{-1, 0}, []int{2, 3})
	assert.Error(t, err)
}

func TestSetRegion(t *testing.T) {
	dst := New(Float64, []int{4, 4})
	src := seqF64(t, 2, 2)

	require.NoError(t, dst.SetRegion([]int{1, 1}, src))

	got, err := dst.Region([]int{1, 1}, []int{3, 3})
	require.NoError(t, err)
	assert.True(t, src.Equal(got))

	// Untouched cells stay zero
	assert.Equal(t, 0.0, dst.Float64At(0))
}

func TestConcat_Axis0(t *testing.T) {
	a := seqF64(t, 2, 3)
	b := seqF64(t, 1, 3)

	c, err := Concat(0, a, b)
	require.NoError(t, err)

	assert.Equal(t, []int{3, 3}, c.Shape())
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 0, 1, 2}, f64s(c))
}

func TestConcat_Axis1(t *testing.T) {
	a := seqF64(t, 2, 2)
	b := seqF64(t, 2, 1)

	c, err := Concat(1, a, b)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3}, c.Shape())
	assert.Equal(t, []float64{0, 1, 0, 2, 3, 1}, f64s(c))
}

func TestConcat_SinglePart(t *testing.T) {
	a := seqF64(t, 2, 2)

	c, err := Concat(0, a)
	require.NoError(t, err)
	assert.True(t, a.Equal(c))
}

func TestConcat_ShapeMismatch(t *testing.T) {
	a := seqF64(t, 2, 3)
	b := seqF64(t, 2, 2)

	_, err := Concat(0, a, b)
	assert.Error(t, err)
}

func TestTake_Axis0(t *testing.T) {
	a := seqF64(t, 4, 2)

	got, err := a.Take(0, []int{3, 0, 0, 2})
	require.NoError(t, err)

	assert.Equal(t, []int{4, 2}, got.Shape())
	assert.Equal(t, []float64{6, 7, 0, 1, 0, 1, 4, 5}, f64s(got))
}

func TestTake_InnerAxis(t *testing.T) {
	a := seqF64(t, 2, 4)

	got, err := a.Take(1, []int{1, 3})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2}, got.Shape())
	assert.Equal(t, []float64{1, 3, 5, 7}, f64s(got))
}

func TestTake_OutOfBounds(t *testing.T) {
	a := seqF64(t, 2, 2)

	_, err := a.Take(0, []int{2})
	assert.Error(t, err)
}

func TestReshape(t *testing.T) {
	a := seqF64(t, 2, 3)

	r, err := a.Reshape([]int{6})
	require.NoError(t, err)
	assert.Equal(t, []int{6}, r.Shape())
	assert.Equal(t, f64s(a), f64s(r))

	_, err = a.Reshape([]int{5})
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	a := seqF64(t, 2, 2)
	b := seqF64(t, 2, 2)
	assert.True(t, a.Equal(b))

	require.NoError(t, b.SetFloat64At(3, -1))
	assert.False(t, a.Equal(b))

	c := seqF64(t, 4)
	assert.False(t, a.Equal(c))
}
