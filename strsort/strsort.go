// Package strsort implements the distributed string sample-sort (C4):
// sorting a distributed set of (optionally indexed) null-terminated
// strings, used by induction to bucket B*-substrings globally. It
// follows sortx's skeleton (rebalance, local sort, sample, global
// splitters, partition, all-to-all-v, merge) specialised to byte
// strings instead of fixed-width records.
package strsort

import (
	"bytes"
	"context"
	"sort"

	"github.com/distsa/distsa/comm"
	"github.com/distsa/distsa/container"
	"github.com/pkg/errors"
)

// Sort globally sorts local's strings lexicographically, redistributed
// so each PE holds a contiguous evenly-sliced range of the result.
func Sort(ctx context.Context, c comm.Comm, local container.StringSet) (container.StringSet, error) {
	out, _, err := sortImpl(ctx, c, local, nil)
	return out, err
}

// SortIndexed is Sort for an IndexedStringSet: each string's global
// index travels with it through the redistribution.
func SortIndexed(ctx context.Context, c comm.Comm, local container.IndexedStringSet) (container.IndexedStringSet, error) {
	out, idx, err := sortImpl(ctx, c, local.StringSet, local.Index)
	if err != nil {
		return container.IndexedStringSet{}, err
	}
	return container.IndexedStringSet{StringSet: out, Index: idx}, nil
}

// stringRec is one string plus its (optional) carried index, used
// internally so the indexed and unindexed paths share one pipeline.
type stringRec struct {
	bytes []byte // includes trailing 0
	idx   int64
	haveIdx bool
}

func sortImpl(ctx context.Context, c comm.Comm, local container.StringSet, indices []int64) (container.StringSet, []int64, error) {
	haveIdx := indices != nil
	recs := make([]stringRec, local.Len())
	for i := 0; i < local.Len(); i++ {
		b := local.Bytes(i)
		cp := make([]byte, len(b))
		copy(cp, b)
		r := stringRec{bytes: cp, haveIdx: haveIdx}
		if haveIdx {
			r.idx = indices[i]
		}
		recs[i] = r
	}

	less := func(a, b stringRec) bool { return bytes.Compare(a.bytes, b.bytes) < 0 }

	size := c.Size()

	recs, err := rebalance(ctx, c, recs, haveIdx)
	if err != nil {
		return container.StringSet{}, nil, errors.Wrap(err, "strsort: rebalance")
	}

	recs = localSort(recs)

	if size > 1 {
		n := len(recs)
		s := 20*size - 1
		if n < s {
			s = n
		}
		samples := make([]stringRec, s)
		if s > 0 && n > 0 {
			stride := float64(n) / float64(s)
			for i := 0; i < s; i++ {
				idx := int(float64(i) * stride)
				if idx >= n {
					idx = n - 1
				}
				samples[i] = recs[idx]
			}
		}
		pool, err := sortSamplePool(ctx, c, samples, less, haveIdx)
		if err != nil {
			return container.StringSet{}, nil, errors.Wrap(err, "strsort: splitter sort")
		}
		splitters := pickSplitters(pool, size)

		intervals := partition(recs, splitters, less)

		send := make([][]byte, size)
		sendIdx := make([][]byte, size)
		for r, iv := range intervals {
			send[r] = encodeStrings(iv)
			if haveIdx {
				sendIdx[r] = encodeIndices(iv)
			}
		}
		recvBytes, err := c.AllToAll(ctx, send)
		if err != nil {
			return container.StringSet{}, nil, errors.Wrap(err, "strsort: string exchange")
		}
		var recvIdx [][]byte
		if haveIdx {
			recvIdx, err = c.AllToAll(ctx, sendIdx)
			if err != nil {
				return container.StringSet{}, nil, errors.Wrap(err, "strsort: index exchange")
			}
		}
		runs := make([][]stringRec, size)
		for r, buf := range recvBytes {
			strs := decodeStrings(buf)
			run := make([]stringRec, len(strs))
			for i, s := range strs {
				run[i] = stringRec{bytes: s, haveIdx: haveIdx}
			}
			if haveIdx {
				ids := decodeIndices(recvIdx[r])
				for i := range run {
					run[i].idx = ids[i]
				}
			}
			runs[r] = run
		}
		recs = mergeRuns(runs, less)

		// Rebalance the merged output so each PE holds an evenly-sliced
		// range of the sorted result.
		recs, err = rebalance(ctx, c, recs, haveIdx)
		if err != nil {
			return container.StringSet{}, nil, errors.Wrap(err, "strsort: output rebalance")
		}
	}

	var buf []byte
	var outIdx []int64
	for _, r := range recs {
		buf = append(buf, r.bytes...)
		if haveIdx {
			outIdx = append(outIdx, r.idx)
		}
	}
	return container.NewStringSet(buf), outIdx, nil
}

func rebalance(ctx context.Context, c comm.Comm, recs []stringRec, haveIdx bool) ([]stringRec, error) {
	size := c.Size()
	n := int64(len(recs))
	localStart, err := c.ExPrefixSum(ctx, n)
	if err != nil {
		return nil, err
	}
	totals, err := c.AllReduceSum(ctx, []int64{n})
	if err != nil {
		return nil, err
	}
	total := totals[0]
	if total == 0 {
		if _, err := c.AllToAll(ctx, make([][]byte, size)); err != nil {
			return nil, err
		}
		if haveIdx {
			if _, err := c.AllToAll(ctx, make([][]byte, size)); err != nil {
				return nil, err
			}
		}
		return recs[:0], nil
	}
	sliceSize := (total + int64(size) - 1) / int64(size)

	send := make([][]byte, size)
	sendIdx := make([][]byte, size)
	byTarget := make([][]stringRec, size)
	for i, r := range recs {
		globalPos := localStart + int64(i)
		target := int(globalPos / sliceSize)
		if target >= size {
			target = size - 1
		}
		byTarget[target] = append(byTarget[target], r)
	}
	for r, iv := range byTarget {
		send[r] = encodeStrings(iv)
		if haveIdx {
			sendIdx[r] = encodeIndices(iv)
		}
	}
	recvBytes, err := c.AllToAll(ctx, send)
	if err != nil {
		return nil, err
	}
	var recvIdx [][]byte
	if haveIdx {
		recvIdx, err = c.AllToAll(ctx, sendIdx)
		if err != nil {
			return nil, err
		}
	}
	var out []stringRec
	for r, buf := range recvBytes {
		strs := decodeStrings(buf)
		for i, s := range strs {
			rec := stringRec{bytes: s, haveIdx: haveIdx}
			if haveIdx {
				rec.idx = decodeIndices(recvIdx[r])[i]
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func sortSamplePool(ctx context.Context, c comm.Comm, samples []stringRec, less func(a, b stringRec) bool, haveIdx bool) ([]stringRec, error) {
	buf := encodeStrings(samples)
	idxBuf := encodeIndices(samples)
	gathered, err := c.AllGatherV(ctx, buf)
	if err != nil {
		return nil, err
	}
	var gatheredIdx [][]byte
	if haveIdx {
		gatheredIdx, err = c.AllGatherV(ctx, idxBuf)
		if err != nil {
			return nil, err
		}
	}
	var pool []stringRec
	for r, g := range gathered {
		strs := decodeStrings(g)
		for i, s := range strs {
			rec := stringRec{bytes: s, haveIdx: haveIdx}
			if haveIdx {
				rec.idx = decodeIndices(gatheredIdx[r])[i]
			}
			pool = append(pool, rec)
		}
	}
	sort.SliceStable(pool, func(i, j int) bool { return less(pool[i], pool[j]) })
	return pool, nil
}

func pickSplitters(sorted []stringRec, size int) []stringRec {
	if len(sorted) == 0 || size <= 1 {
		return nil
	}
	out := make([]stringRec, 0, size-1)
	for i := 1; i < size; i++ {
		idx := i*len(sorted)/size - 1
		if idx < 0 {
			idx = 0
		}
		out = append(out, sorted[idx])
	}
	return out
}

func partition(recs []stringRec, splitters []stringRec, less func(a, b stringRec) bool) [][]stringRec {
	size := len(splitters) + 1
	out := make([][]stringRec, size)
	i := 0
	for target := 0; target < size; target++ {
		var upper func(stringRec) bool
		if target < len(splitters) {
			sp := splitters[target]
			upper = func(x stringRec) bool { return !less(sp, x) }
		} else {
			upper = func(stringRec) bool { return true }
		}
		start := i
		for i < len(recs) && upper(recs[i]) {
			i++
		}
		out[target] = recs[start:i]
	}
	return out
}

func mergeRuns(runs [][]stringRec, less func(a, b stringRec) bool) []stringRec {
	pos := make([]int, len(runs))
	total := 0
	for _, r := range runs {
		total += len(r)
	}
	out := make([]stringRec, 0, total)
	for {
		best := -1
		for i, run := range runs {
			if pos[i] >= len(run) {
				continue
			}
			if best == -1 || less(run[pos[i]], runs[best][pos[best]]) {
				best = i
			}
		}
		if best == -1 {
			break
		}
		out = append(out, runs[best][pos[best]])
		pos[best]++
	}
	return out
}

func encodeStrings(recs []stringRec) []byte {
	var buf []byte
	for _, r := range recs {
		buf = append(buf, r.bytes...)
	}
	return buf
}

func decodeStrings(buf []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, b := range buf {
		if b == 0 {
			cp := make([]byte, i-start+1)
			copy(cp, buf[start:i+1])
			out = append(out, cp)
			start = i + 1
		}
	}
	return out
}

func encodeIndices(recs []stringRec) []byte {
	buf := make([]byte, len(recs)*8)
	for i, r := range recs {
		putUint64(buf[i*8:], uint64(r.idx))
	}
	return buf
}

func decodeIndices(buf []byte) []int64 {
	n := len(buf) / 8
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		out[i] = int64(getUint64(buf[i*8:]))
	}
	return out
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
