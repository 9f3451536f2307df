// Package sortx implements the generic distributed sample-sort (C3):
// sorting a distributed sequence of fixed-size records by a strict
// weak order, redistributing the result so every PE holds a
// contiguous, evenly-sliced range. strsort's string sort follows the
// same skeleton specialised to byte strings; PDD and induction build
// on this package for every index/rank record sort they need.
package sortx

import (
	"context"
	"sort"

	"github.com/distsa/distsa/comm"
	"github.com/pkg/errors"
)

// LocalSorter sorts a slice of T in place according to less. The
// default is sort.SliceStable; a fixed-width packed-record leaf such
// as RadixLeaf may be supplied instead.
type LocalSorter[T any] func(x []T, less func(a, b T) bool)

// DefaultLeaf sorts with sort.SliceStable.
func DefaultLeaf[T any](x []T, less func(a, b T) bool) {
	sort.SliceStable(x, func(i, j int) bool { return less(x[i], x[j]) })
}

// Codec pairs the fixed-width encode/decode functions sortx needs to
// move records as flat byte slices over comm.
type Codec[T any] struct {
	Size   int
	Encode func(T, []byte)
	Decode func([]byte) T
}

// Sort implements the seven-step distributed sample-sort protocol:
// rebalance, local sort, sample, global splitters, partition,
// all-to-all-v, then merge. leaf may be nil, in which case
// DefaultLeaf is used.
func Sort[T any](ctx context.Context, c comm.Comm, local []T, less func(a, b T) bool, leaf LocalSorter[T], codec Codec[T]) ([]T, error) {
	if leaf == nil {
		leaf = DefaultLeaf[T]
	}
	size := c.Size()

	// Step 1: rebalance to equal local sizes.
	local, err := rebalance(ctx, c, local, codec)
	if err != nil {
		return nil, errors.Wrap(err, "sortx: rebalance")
	}

	// Step 2: local sort.
	leaf(local, less)

	if size == 1 {
		return local, nil
	}

	// Step 3: local samples, s = min(20P-1, n).
	n := len(local)
	s := 20*size - 1
	if n < s {
		s = n
	}
	samples := make([]T, s)
	if s > 0 && n > 0 {
		stride := float64(n) / float64(s)
		for i := 0; i < s; i++ {
			idx := int(float64(i) * stride)
			if idx >= n {
				idx = n - 1
			}
			samples[i] = local[idx]
		}
	}

	// Step 4: global splitters. All-gather every PE's local samples
	// into one pool, sort it identically on every PE, and pick the P-1
	// splitters from it.
	globalSamples, err := sortSamplePool(ctx, c, samples, less, codec)
	if err != nil {
		return nil, errors.Wrap(err, "sortx: splitter sort")
	}
	splitters := pickSplitters(globalSamples, size)
	splitters, err = allGatherSplitters(ctx, c, splitters, codec)
	if err != nil {
		return nil, errors.Wrap(err, "sortx: splitter allgather")
	}

	// Step 5: partition local data into P intervals by the splitters.
	intervals := partition(local, splitters, less)

	// Step 6: all-to-all-v the intervals.
	send := make([][]byte, size)
	for r, iv := range intervals {
		buf := make([]byte, len(iv)*codec.Size)
		for i, rec := range iv {
			codec.Encode(rec, buf[i*codec.Size:(i+1)*codec.Size])
		}
		send[r] = buf
	}
	recv, err := c.AllToAll(ctx, send)
	if err != nil {
		return nil, errors.Wrap(err, "sortx: partition exchange")
	}
	runs := make([][]T, size)
	for r, buf := range recv {
		m := len(buf) / codec.Size
		run := make([]T, m)
		for i := 0; i < m; i++ {
			run[i] = codec.Decode(buf[i*codec.Size : (i+1)*codec.Size])
		}
		runs[r] = run
	}

	// Step 7: multiway merge the incoming runs, then rebalance the
	// merged output so every PE holds an evenly-sliced range of it.
	merged, err := rebalance(ctx, c, mergeRuns(runs, less), codec)
	if err != nil {
		return nil, errors.Wrap(err, "sortx: output rebalance")
	}
	return merged, nil
}

// rebalance all-to-alls local to achieve equal-sized slices (target
// ceil(total/P) per PE in rank order; the last non-empty PE holds what
// is left, which may be fewer). Global order is preserved.
func rebalance[T any](ctx context.Context, c comm.Comm, local []T, codec Codec[T]) ([]T, error) {
	size := c.Size()
	n := int64(len(local))
	localStart, err := c.ExPrefixSum(ctx, n)
	if err != nil {
		return nil, err
	}
	totals, err := c.AllReduceSum(ctx, []int64{n})
	if err != nil {
		return nil, err
	}
	total := totals[0]
	sliceSize := (total + int64(size) - 1) / int64(size)
	if sliceSize == 0 {
		send := make([][]byte, size)
		if _, err := c.AllToAll(ctx, send); err != nil {
			return nil, err
		}
		return local[:0], nil
	}

	send := make([][]byte, size)
	for i, rec := range local {
		globalPos := localStart + int64(i)
		target := int(globalPos / sliceSize)
		if target >= size {
			target = size - 1
		}
		buf := make([]byte, codec.Size)
		codec.Encode(rec, buf)
		send[target] = append(send[target], buf...)
	}
	recv, err := c.AllToAll(ctx, send)
	if err != nil {
		return nil, err
	}
	var out []T
	for _, buf := range recv {
		m := len(buf) / codec.Size
		for i := 0; i < m; i++ {
			out = append(out, codec.Decode(buf[i*codec.Size:(i+1)*codec.Size]))
		}
	}
	return out, nil
}

// sortSamplePool gathers every PE's local sample slice to all PEs
// (the pool is small — at most 20P-1 records per PE) and sorts it
// identically everywhere, avoiding a second full distributed sort for
// what is already a tiny amount of data.
func sortSamplePool[T any](ctx context.Context, c comm.Comm, samples []T, less func(a, b T) bool, codec Codec[T]) ([]T, error) {
	buf := make([]byte, len(samples)*codec.Size)
	for i, s := range samples {
		codec.Encode(s, buf[i*codec.Size:(i+1)*codec.Size])
	}
	gathered, err := c.AllGatherV(ctx, buf)
	if err != nil {
		return nil, err
	}
	var pool []T
	for _, g := range gathered {
		m := len(g) / codec.Size
		for i := 0; i < m; i++ {
			pool = append(pool, codec.Decode(g[i*codec.Size:(i+1)*codec.Size]))
		}
	}
	sort.SliceStable(pool, func(i, j int) bool { return less(pool[i], pool[j]) })
	return pool, nil
}

// pickSplitters cuts the globally sorted sample pool into P
// evenly-spaced parts and takes the last sample of each of the first
// P-1 parts.
func pickSplitters[T any](sorted []T, size int) []T {
	if len(sorted) == 0 || size <= 1 {
		return nil
	}
	out := make([]T, 0, size-1)
	for i := 1; i < size; i++ {
		idx := i*len(sorted)/size - 1
		if idx < 0 {
			idx = 0
		}
		out = append(out, sorted[idx])
	}
	return out
}

// allGatherSplitters is a no-op pass-through on every rank (the
// splitter pool has already been computed identically everywhere by
// sortSamplePool); kept as a distinct step so the seven-stage protocol
// reads literally as "all-gather these P-1 global splitters," and so
// an alternate splitter-selection strategy can slot in later without
// touching Sort's call sites.
func allGatherSplitters[T any](ctx context.Context, c comm.Comm, splitters []T, codec Codec[T]) ([]T, error) {
	return splitters, nil
}

// partition splits local (already locally sorted) into size
// intervals by the P-1 splitters, via one linear scan.
func partition[T any](local []T, splitters []T, less func(a, b T) bool) [][]T {
	size := len(splitters) + 1
	out := make([][]T, size)
	i := 0
	for target := 0; target < size; target++ {
		var upper func(T) bool
		if target < len(splitters) {
			sp := splitters[target]
			upper = func(x T) bool { return !less(sp, x) }
		} else {
			upper = func(T) bool { return true }
		}
		start := i
		for i < len(local) && upper(local[i]) {
			i++
		}
		out[target] = local[start:i]
	}
	return out
}

// mergeRuns performs a P-way merge of already-sorted runs via a loser
// tree.
func mergeRuns[T any](runs [][]T, less func(a, b T) bool) []T {
	total := 0
	for _, r := range runs {
		total += len(r)
	}
	out := make([]T, 0, total)
	lt := newLoserTree(runs, less)
	for {
		r, ok := lt.Next()
		if !ok {
			break
		}
		out = append(out, r)
	}
	return out
}
