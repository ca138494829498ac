package zarr

import (
	"encoding/json"
	"fmt"

	"github.com/DudLab/gridstore/pkg/array"
)

// Metadata keys stored under each logical path, zarr v2 layout.
const (
	keyGroup = ".zgroup"
	keyArray = ".zarray"
	keyAttrs = ".zattrs"
)

const zarrFormat = 2

// groupMeta is the value of a ".zgroup" key.
type groupMeta struct {
	ZarrFormat int `json:"zarr_format"`
}

// arrayMeta is the value of a ".zarray" key.
//
// Compressor and Filters are always null: chunks are stored as raw
// little-endian row-major element bytes. Codec selection is out of scope
// for this store; metadata keeps the fields so foreign readers see a
// well-formed document.
type arrayMeta struct {
	ZarrFormat int    `json:"zarr_format"`
	Shape      []int  `json:"shape"`
	Chunks     []int  `json:"chunks"`
	Dtype      string `json:"dtype"`
	Compressor any    `json:"compressor"`
	FillValue  any    `json:"fill_value"`
	Order      string `json:"order"`
	Filters    any    `json:"filters"`
}

func newArrayMeta(shape []int, dt array.Dtype, chunks []int) arrayMeta {
	return arrayMeta{
		ZarrFormat: zarrFormat,
		Shape:      shape,
		Chunks:     chunks,
		Dtype:      dt.String(),
		Order:      "C",
	}
}

func (m arrayMeta) validate() error {
	if m.ZarrFormat != zarrFormat {
		return fmt.Errorf("unsupported zarr format %d", m.ZarrFormat)
	}
	if len(m.Shape) != len(m.Chunks) {
		return fmt.Errorf("shape rank %d does not match chunk rank %d", len(m.Shape), len(m.Chunks))
	}
	if m.Order != "" && m.Order != "C" {
		return fmt.Errorf("unsupported chunk order %q", m.Order)
	}
	for i, c := range m.Chunks {
		if c < 1 {
			return fmt.Errorf("chunk extent %d on axis %d must be positive", c, i)
		}
	}
	return nil
}

func marshalMeta(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "    ")
}

func unmarshalMeta(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
