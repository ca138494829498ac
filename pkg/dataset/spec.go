package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedIndexPattern is returned when a selection carries an
	// index sequence on more than one axis. Backends resolve only one
	// axis of arbitrary fancy indexing without combinatorial blow-up.
	ErrUnsupportedIndexPattern = errors.New("unsupported index pattern")

	// ErrArgumentLength is returned by bulk operations given mismatched
	// argument counts.
	ErrArgumentLength = errors.New("argument length mismatch")
)

// Spec is one axis of a selection. The variants are full range, single
// integer, ordered range, index sequence, and boolean mask.
type Spec interface {
	isSpec()
}

type allSpec struct{}

type atSpec struct{ index int }

type rangeSpec struct{ start, stop int }

type seqSpec struct{ idx []int }

type maskSpec struct{ mask []bool }

func (allSpec) isSpec()   {}
func (atSpec) isSpec()    {}
func (rangeSpec) isSpec() {}
func (seqSpec) isSpec()   {}
func (maskSpec) isSpec()  {}

// All selects the full extent of an axis. Axes beyond the given specs are
// implicitly All.
func All() Spec { return allSpec{} }

// At selects a single position and drops the axis from the result.
// Negative values count from the end.
func At(i int) Spec { return atSpec{index: i} }

// Range selects the ordered half-open range [start, stop). Negative
// bounds count from the end.
func Range(start, stop int) Spec { return rangeSpec{start: start, stop: stop} }

// Indices selects discrete positions along an axis, in any order and with
// repeats. At most one axis of a selection may use Indices (or Mask).
func Indices(idx ...int) Spec {
	return seqSpec{idx: append([]int(nil), idx...)}
}

// Mask selects the positions where mask is true. The mask length must
// equal the axis extent. A mask produces an ordered index sequence and
// counts toward the one-sequence-axis limit.
func Mask(mask []bool) Spec {
	return maskSpec{mask: append([]bool(nil), mask...)}
}

// axisKind discriminates the normalized per-axis selection.
type axisKind int

const (
	axisSpan axisKind = iota // keep [start, stop)
	axisIndex                // single position, axis dropped from result
	axisSeq                  // index sequence in caller order
)

type axisSel struct {
	kind  axisKind
	start int
	stop  int
	idx   []int
}

func wrapIndex(i, extent int, what string) (int, error) {
	if i < 0 {
		i += extent
	}
	if i < 0 || i >= extent {
		return 0, fmt.Errorf("%s %d out of range for extent %d", what, i, extent)
	}
	return i, nil
}

// normalize resolves specs against a shape: missing trailing axes become
// full ranges, negative positions wrap, masks become sequences, and
// bounds are checked. It enforces the single-sequence-axis invariant.
func normalize(specs []Spec, shape []int) ([]axisSel, error) {
	if len(specs) > len(shape) {
		return nil, fmt.Errorf("%d axis specs for rank-%d dataset", len(specs), len(shape))
	}

	sels := make([]axisSel, len(shape))
	seqAxes := 0
	for axis := range shape {
		extent := shape[axis]

		var spec Spec = allSpec{}
		if axis < len(specs) {
			spec = specs[axis]
		}

		switch sp := spec.(type) {
		case allSpec:
			sels[axis] = axisSel{kind: axisSpan, start: 0, stop: extent}

		case atSpec:
			i, err := wrapIndex(sp.index, extent, "index")
			if err != nil {
				return nil, fmt.Errorf("axis %d: %w", axis, err)
			}
			sels[axis] = axisSel{kind: axisIndex, start: i, stop: i + 1}

		case rangeSpec:
			start, stop := sp.start, sp.stop
			if start < 0 {
				start += extent
			}
			if stop < 0 {
				stop += extent
			}
			if start < 0 || stop > extent || start > stop {
				return nil, fmt.Errorf("axis %d: range [%d, %d) out of bounds for extent %d",
					axis, sp.start, sp.stop, extent)
			}
			sels[axis] = axisSel{kind: axisSpan, start: start, stop: stop}

		case seqSpec:
			idx := make([]int, len(sp.idx))
			for j, i := range sp.idx {
				wrapped, err := wrapIndex(i, extent, "index")
				if err != nil {
					return nil, fmt.Errorf("axis %d: %w", axis, err)
				}
				idx[j] = wrapped
			}
			sels[axis] = axisSel{kind: axisSeq, idx: idx}
			seqAxes++

		case maskSpec:
			if len(sp.mask) != extent {
				return nil, fmt.Errorf("axis %d: mask length %d does not match extent %d",
					axis, len(sp.mask), extent)
			}
			var idx []int
			for j, keep := range sp.mask {
				if keep {
					idx = append(idx, j)
				}
			}
			sels[axis] = axisSel{kind: axisSeq, idx: idx}
			seqAxes++

		default:
			return nil, fmt.Errorf("axis %d: unknown spec %T", axis, spec)
		}
	}

	if seqAxes > 1 {
		return nil, fmt.Errorf("%w: %d axes carry index sequences, at most one is supported",
			ErrUnsupportedIndexPattern, seqAxes)
	}
	return sels, nil
}

// bounds extracts the hyper-rectangle covered by span and index axes.
// Sequence axes get their full extent; callers replace that axis
// themselves.
func bounds(sels []axisSel, shape []int) (start, stop []int) {
	start = make([]int, len(sels))
	stop = make([]int, len(sels))
	for i, sel := range sels {
		switch sel.kind {
		case axisSeq:
			start[i] = 0
			stop[i] = shape[i]
		default:
			start[i] = sel.start
			stop[i] = sel.stop
		}
	}
	return start, stop
}

// seqAxis returns the position of the sequence axis, or -1.
func seqAxis(sels []axisSel) int {
	for i, sel := range sels {
		if sel.kind == axisSeq {
			return i
		}
	}
	return -1
}

// resultShape returns the selection's output shape, dropping integer axes.
func resultShape(sels []axisSel) []int {
	var out []int
	for _, sel := range sels {
		switch sel.kind {
		case axisSpan:
			out = append(out, sel.stop-sel.start)
		case axisSeq:
			out = append(out, len(sel.idx))
		}
	}
	if out == nil {
		out = []int{}
	}
	return out
}
