package array

import (
	"fmt"
	"math"
)

// AsType returns a copy of a with every element converted to the target
// dtype. Conversions follow Go's numeric conversion rules: float to
// integer truncates toward zero, narrowing wraps, and any non-zero value
// converts to boolean true.
func (a *Array) AsType(dt Dtype) (*Array, error) {
	if err := dt.validate(); err != nil {
		return nil, err
	}
	if dt == a.dtype {
		out := New(a.dtype, a.shape)
		copy(out.data, a.data)
		return out, nil
	}

	out := New(dt, a.shape)
	n := a.Len()
	for i := 0; i < n; i++ {
		switch a.dtype.Kind {
		case KindFloat:
			v := a.loadFloat(i)
			if err := out.storeFloat(i, v); err != nil {
				return nil, err
			}
		case KindUint, KindBool:
			v := a.loadUint(i)
			if err := out.storeUint(i, v); err != nil {
				return nil, err
			}
		case KindInt:
			v := a.loadInt(i)
			if err := out.storeInt(i, v); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unsupported source dtype %s", a.dtype)
		}
	}
	return out, nil
}

func (a *Array) loadBits(i int) uint64 {
	off := i * a.dtype.Size
	b := a.data[off : off+a.dtype.Size]
	switch a.dtype.Size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(a.dtype.byteOrder().Uint16(b))
	case 4:
		return uint64(a.dtype.byteOrder().Uint32(b))
	default:
		return a.dtype.byteOrder().Uint64(b)
	}
}

func (a *Array) storeBits(i int, v uint64) {
	off := i * a.dtype.Size
	b := a.data[off : off+a.dtype.Size]
	switch a.dtype.Size {
	case 1:
		b[0] = byte(v)
	case 2:
		a.dtype.byteOrder().PutUint16(b, uint16(v))
	case 4:
		a.dtype.byteOrder().PutUint32(b, uint32(v))
	default:
		a.dtype.byteOrder().PutUint64(b, v)
	}
}

func (a *Array) loadFloat(i int) float64 {
	bits := a.loadBits(i)
	if a.dtype.Size == 4 {
		return float64(math.Float32frombits(uint32(bits)))
	}
	return math.Float64frombits(bits)
}

func (a *Array) loadInt(i int) int64 {
	bits := a.loadBits(i)
	switch a.dtype.Size {
	case 1:
		return int64(int8(bits))
	case 2:
		return int64(int16(bits))
	case 4:
		return int64(int32(bits))
	default:
		return int64(bits)
	}
}

func (a *Array) loadUint(i int) uint64 {
	return a.loadBits(i)
}

func (a *Array) storeFloat(i int, v float64) error {
	switch a.dtype.Kind {
	case KindFloat:
		if a.dtype.Size == 4 {
			a.storeBits(i, uint64(math.Float32bits(float32(v))))
		} else {
			a.storeBits(i, math.Float64bits(v))
		}
	case KindInt:
		return a.storeInt(i, int64(v))
	case KindUint:
		return a.storeUint(i, uint64(v))
	case KindBool:
		a.storeBool(i, v != 0)
	default:
		return fmt.Errorf("unsupported target dtype %s", a.dtype)
	}
	return nil
}

func (a *Array) storeInt(i int, v int64) error {
	switch a.dtype.Kind {
	case KindFloat:
		return a.storeFloat(i, float64(v))
	case KindInt, KindUint:
		a.storeBits(i, uint64(v))
	case KindBool:
		a.storeBool(i, v != 0)
	default:
		return fmt.Errorf("unsupported target dtype %s", a.dtype)
	}
	return nil
}

func (a *Array) storeUint(i int, v uint64) error {
	switch a.dtype.Kind {
	case KindFloat:
		return a.storeFloat(i, float64(v))
	case KindInt, KindUint:
		a.storeBits(i, v)
	case KindBool:
		a.storeBool(i, v != 0)
	default:
		return fmt.Errorf("unsupported target dtype %s", a.dtype)
	}
	return nil
}

func (a *Array) storeBool(i int, v bool) {
	if v {
		a.data[i] = 1
	} else {
		a.data[i] = 0
	}
}

// Float64At returns element i (flat row-major index) converted to float64.
func (a *Array) Float64At(i int) float64 {
	switch a.dtype.Kind {
	case KindFloat:
		return a.loadFloat(i)
	case KindInt:
		return float64(a.loadInt(i))
	default:
		return float64(a.loadUint(i))
	}
}

// SetFloat64At stores v into element i, converting to the array's dtype.
func (a *Array) SetFloat64At(i int, v float64) error {
	return a.storeFloat(i, v)
}
