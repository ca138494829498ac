// Package array provides the in-memory n-dimensional array value used by
// both storage backends and by the selection and block-assembly layers.
//
// Data is held as a flat buffer in row-major (C) order. All operations
// return new arrays; an Array is never mutated after it escapes the
// function that built it, which makes values safe to share across
// goroutines.
package array

import (
	"bytes"
	"fmt"
	"slices"
)

// Array is an n-dimensional array: a dtype, a shape, and a flat row-major
// element buffer. A rank-0 array holds exactly one element.
type Array struct {
	dtype Dtype
	shape []int
	data  []byte
}

// New returns a zero-filled array of the given dtype and shape.
func New(dt Dtype, shape []int) *Array {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return &Array{
		dtype: dt,
		shape: slices.Clone(shape),
		data:  make([]byte, n*dt.Size),
	}
}

// FromBytes wraps an existing row-major buffer. The buffer length must
// match the shape and dtype exactly. The buffer is not copied.
func FromBytes(dt Dtype, shape []int, data []byte) (*Array, error) {
	n := 1
	for i, s := range shape {
		if s < 0 {
			return nil, fmt.Errorf("negative extent %d on axis %d", s, i)
		}
		n *= s
	}
	if len(data) != n*dt.Size {
		return nil, fmt.Errorf("buffer length %d does not match shape %v of dtype %s (want %d)",
			len(data), shape, dt, n*dt.Size)
	}
	return &Array{dtype: dt, shape: slices.Clone(shape), data: data}, nil
}

// Dtype returns the element type.
func (a *Array) Dtype() Dtype { return a.dtype }

// Shape returns a copy of the array's shape.
func (a *Array) Shape() []int { return slices.Clone(a.shape) }

// Rank returns the number of axes.
func (a *Array) Rank() int { return len(a.shape) }

// Len returns the total number of elements.
func (a *Array) Len() int { return len(a.data) / a.dtype.Size }

// Bytes returns the underlying buffer. Callers must not modify it.
func (a *Array) Bytes() []byte { return a.data }

// Equal reports whether two arrays have identical dtype, shape, and
// element bytes.
func (a *Array) Equal(b *Array) bool {
	return a.dtype == b.dtype &&
		slices.Equal(a.shape, b.shape) &&
		bytes.Equal(a.data, b.data)
}

// Reshape returns a view-like copy with a new shape of the same total
// element count.
func (a *Array) Reshape(shape []int) (*Array, error) {
	n := 1
	for _, s := range shape {
		n *= s
	}
	if n != a.Len() {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v (%d elements)",
			a.shape, a.Len(), shape, n)
	}
	return &Array{dtype: a.dtype, shape: slices.Clone(shape), data: a.data}, nil
}

// innerBytes returns the byte length of one element run spanning all axes
// after the given one.
func (a *Array) innerBytes(axis int) int {
	n := a.dtype.Size
	for _, s := range a.shape[axis+1:] {
		n *= s
	}
	return n
}

func outerCount(shape []int, axis int) int {
	n := 1
	for _, s := range shape[:axis] {
		n *= s
	}
	return n
}

// Region extracts the hyper-rectangle [start[i], stop[i]) on every axis.
func (a *Array) Region(start, stop []int) (*Array, error) {
	if len(start) != len(a.shape) || len(stop) != len(a.shape) {
		return nil, fmt.Errorf("region rank %d/%d does not match array rank %d",
			len(start), len(stop), len(a.shape))
	}
	out := make([]int, len(a.shape))
	for i := range a.shape {
		if start[i] < 0 || stop[i] > a.shape[i] || start[i] > stop[i] {
			return nil, fmt.Errorf("region [%d, %d) out of bounds on axis %d (extent %d)",
				start[i], stop[i], i, a.shape[i])
		}
		out[i] = stop[i] - start[i]
	}

	dst := New(a.dtype, out)
	copyND(dst.data, out, make([]int, len(out)), a.data, a.shape, start, out, a.dtype.Size)
	return dst, nil
}

// SetRegion copies src into the hyper-rectangle of a starting at start.
// This is the one mutating operation and is only used while an array is
// being built, before it is shared.
func (a *Array) SetRegion(start []int, src *Array) error {
	if len(start) != len(a.shape) || src.Rank() != a.Rank() {
		return fmt.Errorf("rank mismatch: dest %d, start %d, src %d",
			a.Rank(), len(start), src.Rank())
	}
	if src.dtype != a.dtype {
		return fmt.Errorf("dtype mismatch: dest %s, src %s", a.dtype, src.dtype)
	}
	for i := range a.shape {
		if start[i] < 0 || start[i]+src.shape[i] > a.shape[i] {
			return fmt.Errorf("region start %d + extent %d exceeds axis %d extent %d",
				start[i], src.shape[i], i, a.shape[i])
		}
	}
	copyND(a.data, a.shape, start, src.data, src.shape, make([]int, src.Rank()), src.shape, a.dtype.Size)
	return nil
}

// copyND copies a count-shaped hyper-rectangle from src (at srcStart) into
// dst (at dstStart). Innermost runs are contiguous in both buffers, so the
// copy walks an odometer over the outer axes and moves one run at a time.
func copyND(dst []byte, dstShape, dstStart []int, src []byte, srcShape, srcStart, count []int, elemSize int) {
	r := len(count)
	if r == 0 {
		copy(dst[:elemSize], src[:elemSize])
		return
	}

	rowBytes := count[r-1] * elemSize
	if rowBytes == 0 {
		return
	}

	srcStrides := byteStrides(srcShape, elemSize)
	dstStrides := byteStrides(dstShape, elemSize)

	idx := make([]int, r-1)
	for {
		srcOff := srcStart[r-1] * elemSize
		dstOff := dstStart[r-1] * elemSize
		for i := 0; i < r-1; i++ {
			srcOff += (srcStart[i] + idx[i]) * srcStrides[i]
			dstOff += (dstStart[i] + idx[i]) * dstStrides[i]
		}
		copy(dst[dstOff:dstOff+rowBytes], src[srcOff:srcOff+rowBytes])

		// Advance the odometer; stop once the leading axis overflows.
		k := r - 2
		for ; k >= 0; k-- {
			idx[k]++
			if idx[k] < count[k] {
				break
			}
			idx[k] = 0
		}
		if k < 0 {
			return
		}
	}
}

func byteStrides(shape []int, elemSize int) []int {
	strides := make([]int, len(shape))
	acc := elemSize
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

// Concat joins arrays along the given axis. All parts must share dtype
// and every extent except the concatenation axis.
func Concat(axis int, parts ...*Array) (*Array, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("concat of zero arrays")
	}
	first := parts[0]
	if axis < 0 || axis >= first.Rank() {
		return nil, fmt.Errorf("concat axis %d out of range for rank %d", axis, first.Rank())
	}

	total := 0
	for _, p := range parts {
		if p.dtype != first.dtype {
			return nil, fmt.Errorf("concat dtype mismatch: %s vs %s", first.dtype, p.dtype)
		}
		if p.Rank() != first.Rank() {
			return nil, fmt.Errorf("concat rank mismatch: %d vs %d", first.Rank(), p.Rank())
		}
		for i, s := range p.shape {
			if i != axis && s != first.shape[i] {
				return nil, fmt.Errorf("concat extent mismatch on axis %d: %d vs %d", i, first.shape[i], s)
			}
		}
		total += p.shape[axis]
	}

	outShape := first.Shape()
	outShape[axis] = total
	out := New(first.dtype, outShape)

	outer := outerCount(first.shape, axis)
	dstSlab := out.innerBytes(axis - 1)
	if axis == 0 {
		dstSlab = len(out.data)
	}
	for o := 0; o < outer; o++ {
		dstOff := o * dstSlab
		for _, p := range parts {
			n := p.shape[axis] * p.innerBytes(axis)
			srcOff := o * n
			copy(out.data[dstOff:dstOff+n], p.data[srcOff:srcOff+n])
			dstOff += n
		}
	}
	return out, nil
}

// Take gathers positions idx (repeats allowed, any order) along the given
// axis, preserving all other axes.
func (a *Array) Take(axis int, idx []int) (*Array, error) {
	if axis < 0 || axis >= a.Rank() {
		return nil, fmt.Errorf("take axis %d out of range for rank %d", axis, a.Rank())
	}
	for _, i := range idx {
		if i < 0 || i >= a.shape[axis] {
			return nil, fmt.Errorf("take index %d out of range on axis %d (extent %d)", i, axis, a.shape[axis])
		}
	}

	outShape := a.Shape()
	outShape[axis] = len(idx)
	out := New(a.dtype, outShape)

	outer := outerCount(a.shape, axis)
	inner := a.innerBytes(axis)
	mid := a.shape[axis]
	for o := 0; o < outer; o++ {
		for j, ix := range idx {
			srcOff := (o*mid + ix) * inner
			dstOff := (o*len(idx) + j) * inner
			copy(out.data[dstOff:dstOff+inner], a.data[srcOff:srcOff+inner])
		}
	}
	return out, nil
}
