package ranking

import "sync/atomic"

// RoundRobin hands out start offsets for walks over a fixed-length list, so
// concurrent walkers spread their first attempt across the list instead of
// piling onto element zero. The zero value is ready to use; it is safe for
// concurrent use.
type RoundRobin struct {
	next atomic.Uint64
}

// NextStartIndex returns the next walk offset for a list of n elements,
// cycling through 0..n-1. It returns 0 when n is not positive.
func (r *RoundRobin) NextStartIndex(n int) int {
	if n <= 0 {
		return 0
	}
	return int((r.next.Add(1) - 1) % uint64(n))
}

// Interleave flattens groups by taking one element from each group per
// round, preserving the group order within a round. Groups shorter than the
// round index simply stop contributing:
//
//	[[a1 a2 a3] [b1] [c1 c2]] flattens to [a1 b1 c1 a2 c2 a3]
//
// Resource lists grouped by ranked storage account are flattened this way,
// so retries walk distinct accounts before revisiting one.
func Interleave[T any](groups [][]T) []T {
	total := 0
	longest := 0
	for _, g := range groups {
		total += len(g)
		if len(g) > longest {
			longest = len(g)
		}
	}

	out := make([]T, 0, total)
	for round := 0; round < longest; round++ {
		for _, g := range groups {
			if round < len(g) {
				out = append(out, g[round])
			}
		}
	}
	return out
}
