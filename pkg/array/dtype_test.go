package array

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDtype(t *testing.T) {
	tests := []struct {
		in   string
		want Dtype
	}{
		{"<f8", Dtype{Order: LittleEndian, Kind: KindFloat, Size: 8}},
		{"<f4", Dtype{Order: LittleEndian, Kind: KindFloat, Size: 4}},
		{">i4", Dtype{Order: BigEndian, Kind: KindInt, Size: 4}},
		{"<u2", Dtype{Order: LittleEndian, Kind: KindUint, Size: 2}},
		{"|b1", Dtype{Order: OrderNone, Kind: KindBool, Size: 1}},
		{"|i1", Dtype{Order: OrderNone, Kind: KindInt, Size: 1}},
		{"|u1", Dtype{Order: OrderNone, Kind: KindUint, Size: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			dt, err := ParseDtype(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, dt)
			assert.Equal(t, tt.in, dt.String())
		})
	}
}

func TestParseDtype_Invalid(t *testing.T) {
	for _, in := range []string{"", "f8", "<x8", "<f3", "<f0", "?f8", "<b2", "little-endian"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseDtype(in)
			assert.Error(t, err)
		})
	}
}

func TestDtype_Predefined(t *testing.T) {
	assert.Equal(t, "|b1", Bool.String())
	assert.Equal(t, "|i1", Int8.String())
	assert.Equal(t, "<i2", Int16.String())
	assert.Equal(t, "<i4", Int32.String())
	assert.Equal(t, "<i8", Int64.String())
	assert.Equal(t, "<u8", Uint64.String())
	assert.Equal(t, "<f4", Float32.String())
	assert.Equal(t, "<f8", Float64.String())
}

func TestDtype_IsZero(t *testing.T) {
	assert.True(t, Dtype{}.IsZero())
	assert.False(t, Float64.IsZero())
}
