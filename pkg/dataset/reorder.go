package dataset

import (
	"sort"

	"github.com/DudLab/gridstore/pkg/array"
)

// Backends guarantee correct results only for monotonically non-decreasing
// index lists. sortIndices prepares an arbitrary (unordered, repeated)
// list for such a backend: it returns the sorted list to request plus the
// inverse permutation mapping rows of the sorted response back to the
// caller's order, sorted[inverse[i]] == idx[i]. The sort is stable so
// repeated values map back to their duplicated positions in original
// relative order.
func sortIndices(idx []int) (sorted, inverse []int) {
	order := make([]int, len(idx))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return idx[order[a]] < idx[order[b]]
	})

	sorted = make([]int, len(idx))
	inverse = make([]int, len(idx))
	for k, o := range order {
		sorted[k] = idx[o]
		inverse[o] = k
	}
	return sorted, inverse
}

// reorderAxis permutes rows of data along axis so that a sorted-order
// response matches the originally requested order.
func reorderAxis(data *array.Array, axis int, inverse []int) (*array.Array, error) {
	return data.Take(axis, inverse)
}
