package array

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// ByteOrder is the first character of a numpy typestr.
type ByteOrder byte

const (
	// LittleEndian is "<"
	LittleEndian ByteOrder = '<'
	// BigEndian is ">"
	BigEndian ByteOrder = '>'
	// OrderNone is "|", used for single-byte types where order is irrelevant
	OrderNone ByteOrder = '|'
)

// Kind is the basic-type character of a numpy typestr.
type Kind byte

const (
	KindBool  Kind = 'b'
	KindInt   Kind = 'i'
	KindUint  Kind = 'u'
	KindFloat Kind = 'f'
)

// Dtype describes the element type of an array following the numpy array
// protocol type string ("typestr") format used by the directory store's
// metadata: one byte-order character, one kind character, and a decimal
// byte size. Examples: "<f8", "<i4", "|b1".
type Dtype struct {
	Order ByteOrder
	Kind  Kind
	Size  int
}

// Common element types. Multi-byte types are little-endian, matching what
// both backends write.
var (
	Bool    = Dtype{OrderNone, KindBool, 1}
	Int8    = Dtype{OrderNone, KindInt, 1}
	Int16   = Dtype{LittleEndian, KindInt, 2}
	Int32   = Dtype{LittleEndian, KindInt, 4}
	Int64   = Dtype{LittleEndian, KindInt, 8}
	Uint8   = Dtype{OrderNone, KindUint, 1}
	Uint16  = Dtype{LittleEndian, KindUint, 2}
	Uint32  = Dtype{LittleEndian, KindUint, 4}
	Uint64  = Dtype{LittleEndian, KindUint, 8}
	Float32 = Dtype{LittleEndian, KindFloat, 4}
	Float64 = Dtype{LittleEndian, KindFloat, 8}
)

// ParseDtype parses a typestr such as "<f8" into a Dtype.
func ParseDtype(s string) (Dtype, error) {
	var dt Dtype

	if len(s) < 3 {
		return dt, fmt.Errorf("invalid dtype string %q: too short", s)
	}

	switch ByteOrder(s[0]) {
	case LittleEndian, BigEndian, OrderNone:
		dt.Order = ByteOrder(s[0])
	default:
		return dt, fmt.Errorf("invalid dtype string %q: unknown byte order %q", s, s[0])
	}

	switch Kind(s[1]) {
	case KindBool, KindInt, KindUint, KindFloat:
		dt.Kind = Kind(s[1])
	default:
		return dt, fmt.Errorf("invalid dtype string %q: unsupported kind %q", s, s[1])
	}

	size, err := strconv.Atoi(s[2:])
	if err != nil {
		return dt, fmt.Errorf("invalid dtype string %q: %w", s, err)
	}
	dt.Size = size

	if err := dt.validate(); err != nil {
		return dt, err
	}
	return dt, nil
}

func (d Dtype) validate() error {
	switch d.Kind {
	case KindBool:
		if d.Size != 1 {
			return fmt.Errorf("bool dtype must have size 1, got %d", d.Size)
		}
	case KindInt, KindUint:
		switch d.Size {
		case 1, 2, 4, 8:
		default:
			return fmt.Errorf("integer dtype size must be 1, 2, 4 or 8, got %d", d.Size)
		}
	case KindFloat:
		switch d.Size {
		case 4, 8:
		default:
			return fmt.Errorf("float dtype size must be 4 or 8, got %d", d.Size)
		}
	default:
		return fmt.Errorf("unsupported dtype kind %q", d.Kind)
	}
	if d.Size > 1 && d.Order == OrderNone {
		return fmt.Errorf("multi-byte dtype requires an explicit byte order")
	}
	return nil
}

func (d Dtype) String() string {
	return string(d.Order) + string(d.Kind) + strconv.Itoa(d.Size)
}

// IsZero reports whether d is the zero value (no dtype).
func (d Dtype) IsZero() bool {
	return d == Dtype{}
}

func (d Dtype) byteOrder() binary.ByteOrder {
	if d.Order == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
