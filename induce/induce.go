// Package induce implements the top-level induced-sorting suffix
// array builder (C7): classify, sort and name the B*-suffixes, refine
// their names with prefix doubling, then induce the rank of every
// other suffix by two directional sweeps over per-(c0,c1) buckets.
//
// The bucket layout and sweep order follow classic induced-sorting
// construction exactly. One deliberate simplification from the literal
// per-bucket even-slicing
// design: rather than giving every individual bucket its own
// evenly-sliced descriptor, this package keeps one flat suffix array
// evenly sliced across all PEs (plain ceil(N/P) slicing) and tracks
// each bucket's start offset, size, and fill progress as small
// integers that every PE recomputes or all-reduces identically. A
// position's home, once assigned, is always its final resting slot in
// that flat array, so "read the source bucket" is just "read this
// PE's owned slice of the flat array restricted to that bucket's
// offset range" — no separate holding structure is needed. This keeps
// the bucket bookkeeping a few kilobytes of replicated counters
// instead of a distributed descriptor table, at the cost of exact
// per-bucket residency (see DESIGN.md).
package induce

import (
	"context"

	"github.com/distsa/distsa/classify"
	"github.com/distsa/distsa/comm"
	"github.com/distsa/distsa/container"
	"github.com/distsa/distsa/index"
	"github.com/distsa/distsa/pdd"
	"github.com/distsa/distsa/record"
	"github.com/distsa/distsa/sortx"
	"github.com/distsa/distsa/strsort"
	"github.com/pkg/errors"
)

const unfilled = -1

// layout gives every PE the same deterministic view of where each
// (class, c0, c1) bucket begins and how large it is, computed purely
// from the all-reduced border array and a fixed concatenation order.
type layout struct {
	startA, startAStar, startB, startBStar [256][256]int64
	sizeA, sizeAStar, sizeB, sizeBStar     [256][256]int64
	total                                  int64
}

func buildLayout(ba *classify.BorderArray) *layout {
	l := &layout{sizeA: ba.A, sizeAStar: ba.AStar, sizeB: ba.B, sizeBStar: ba.BStar}
	var offset int64
	for c0 := 0; c0 < 256; c0++ {
		for c1 := 0; c1 < c0; c1++ {
			l.startA[c0][c1] = offset
			offset += ba.A[c0][c1]
			l.startAStar[c0][c1] = offset
			offset += ba.AStar[c0][c1]
		}
		l.startA[c0][c0] = offset
		offset += ba.A[c0][c0]
		l.startB[c0][c0] = offset
		offset += ba.B[c0][c0]
		for c1 := c0 + 1; c1 < 256; c1++ {
			l.startBStar[c0][c1] = offset
			offset += ba.BStar[c0][c1]
			l.startB[c0][c1] = offset
			offset += ba.B[c0][c1]
		}
	}
	l.total = offset
	return l
}

// engine carries the flat SA buffer and the per-bucket fill counters
// (replicated identically on every PE) through both induction sweeps.
type engine struct {
	ctx       context.Context
	c         comm.Comm
	text      *container.RequestableArray[byte]
	l         *layout
	sa        []int64 // this PE's owned slice of the flat global SA
	sliceSize int64
	n         int64

	filledB, filledAStar, filledA [256][256]int64
	diagScannedB, diagScannedA    [256]int64
}

func (e *engine) ownerOf(slot int64) int {
	r := int(slot / e.sliceSize)
	if r >= e.c.Size() {
		r = e.c.Size() - 1
	}
	return r
}

func (e *engine) ownedRange() (start, end int64) {
	rank := int64(e.c.Rank())
	start = rank * e.sliceSize
	end = start + int64(len(e.sa))
	return
}

// localSlotsInRange returns the subset of global slots in [lo,hi) that
// this PE owns, along with the text positions stored there (skipping
// still-unfilled slots).
func (e *engine) localSlotsInRange(lo, hi int64) []int64 {
	ownStart, ownEnd := e.ownedRange()
	if lo < ownStart {
		lo = ownStart
	}
	if hi > ownEnd {
		hi = ownEnd
	}
	var out []int64
	for g := lo; g < hi; g++ {
		v := e.sa[g-ownStart]
		if v != unfilled {
			out = append(out, v)
		}
	}
	return out
}

// writeSlots routes (slot, position) pairs to their owning PE via one
// all-to-all and stores them into the local flat SA.
func (e *engine) writeSlots(slots []int64, positions []int64) error {
	size := e.c.Size()
	send := make([][]byte, size)
	for i, slot := range slots {
		r := e.ownerOf(slot)
		buf := make([]byte, 16)
		putI64(buf[0:8], slot)
		putI64(buf[8:16], positions[i])
		send[r] = append(send[r], buf...)
	}
	recv, err := e.c.AllToAll(e.ctx, send)
	if err != nil {
		return errors.Wrap(err, "induce: slot write exchange")
	}
	ownStart, _ := e.ownedRange()
	for _, buf := range recv {
		m := len(buf) / 16
		for i := 0; i < m; i++ {
			slot := getI64(buf[i*16 : i*16+8])
			pos := getI64(buf[i*16+8 : i*16+16])
			e.sa[slot-ownStart] = pos
		}
	}
	return nil
}

func putI64(b []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}

func getI64(b []byte) int64 {
	var u uint64
	for i := 0; i < 8; i++ {
		u |= uint64(b[i]) << (8 * i)
	}
	return int64(u)
}

// Build runs the complete induced-sorting pipeline over this PE's
// slice of the distributed text and returns this PE's part of the
// final SA: positions [r*ceil(N/P), (r+1)*ceil(N/P)) clipped to N. This
// differs from the text's own slicing (floor(N/P) per PE, the last PE
// taking the remainder) whenever P does not divide N.
func Build(ctx context.Context, c comm.Comm, text container.DistributedString) ([]index.I, error) {
	textRA, err := container.NewByteRequestableArray(ctx, c, text.Local)
	if err != nil {
		return nil, errors.Wrap(err, "induce: text requestable array")
	}

	cls, err := classify.Classify(ctx, c, text)
	if err != nil {
		return nil, errors.Wrap(err, "induce: classify")
	}

	sortedSubs, err := strsort.SortIndexed(ctx, c, cls.BStar)
	if err != nil {
		return nil, errors.Wrap(err, "induce: B*-substring sort")
	}

	named, err := nameSubstrings(ctx, c, sortedSubs)
	if err != nil {
		return nil, errors.Wrap(err, "induce: B*-substring naming")
	}

	refined, err := pdd.Refine(ctx, c, named, 2, pdd.DefaultDiscard)
	if err != nil {
		return nil, errors.Wrap(err, "induce: B*-name refinement")
	}
	irsCodec := sortx.Codec[record.IRS]{Size: record.IRSSize, Encode: func(r record.IRS, d []byte) { r.Encode(d) }, Decode: record.DecodeIRS}
	bstarOrder, err := sortx.Sort(ctx, c, refined, func(a, b record.IRS) bool { return a.LessRank(b) }, nil, irsCodec)
	if err != nil {
		return nil, errors.Wrap(err, "induce: B*-order sort")
	}

	l := buildLayout(cls.Borders)

	size := c.Size()
	sliceSize := (l.total + int64(size) - 1) / int64(size)
	if sliceSize == 0 {
		sliceSize = 1
	}
	rank := c.Rank()
	ownStart := int64(rank) * sliceSize
	ownEnd := ownStart + sliceSize
	if ownEnd > l.total {
		ownEnd = l.total
	}
	if ownStart > ownEnd {
		ownStart = ownEnd
	}
	localLen := ownEnd - ownStart
	sa := make([]int64, localLen)
	for i := range sa {
		sa[i] = unfilled
	}

	e := &engine{ctx: ctx, c: c, text: textRA, l: l, sa: sa, sliceSize: sliceSize, n: l.total}

	if err := e.fillBStarBuckets(bstarOrder); err != nil {
		return nil, errors.Wrap(err, "induce: B*-bucket fill")
	}

	if err := e.induceB(); err != nil {
		return nil, errors.Wrap(err, "induce: B-induction")
	}

	if err := e.seedAStar(text); err != nil {
		return nil, errors.Wrap(err, "induce: A*-seed")
	}

	if err := e.induceA(); err != nil {
		return nil, errors.Wrap(err, "induce: A-induction")
	}

	out := make([]index.I, len(e.sa))
	for i, v := range e.sa {
		out[i] = index.From(uint64(v))
	}
	return out, nil
}

// nameSubstrings assigns a dense 0-based name to each group of
// equal B*-substrings in the globally sorted stream, by comparing
// each local pair and resolving cross-PE group boundaries with a
// boundary exchange exactly like classify's.
func nameSubstrings(ctx context.Context, c comm.Comm, sorted container.IndexedStringSet) ([]record.IR, error) {
	n := sorted.Len()
	var lastBytes []byte
	if n > 0 {
		lastBytes = sorted.Bytes(n - 1)
	}
	received, err := c.ShiftRight(ctx, lastBytes)
	if err != nil {
		return nil, err
	}

	localNew := make([]bool, n)
	for i := 0; i < n; i++ {
		if i == 0 {
			// ShiftRight wraps around: rank 0's received string is the
			// last PE's, so rank 0 always starts a new group.
			localNew[i] = c.Rank() == 0 || received == nil || string(sorted.Bytes(i)) != string(received)
		} else {
			localNew[i] = string(sorted.Bytes(i)) != string(sorted.Bytes(i-1))
		}
	}
	localGroups := int64(0)
	for _, nw := range localNew {
		if nw {
			localGroups++
		}
	}
	base, err := c.ExPrefixSum(ctx, localGroups)
	if err != nil {
		return nil, err
	}

	out := make([]record.IR, n)
	name := base
	for i := 0; i < n; i++ {
		if localNew[i] {
			name++
		}
		out[i] = record.IR{Index: index.From(uint64(sorted.Index[i])), Rank: index.From(uint64(name - 1))}
	}
	return out, nil
}

func (e *engine) fillBStarBuckets(sorted []record.IRS) error {
	localStart, err := e.c.ExPrefixSum(e.ctx, int64(len(sorted)))
	if err != nil {
		return err
	}

	positions := make([]int64, len(sorted))
	for i, r := range sorted {
		positions[i] = int64(r.Index.Uint64())
	}
	c0c1, err := e.lookaheadPairs(positions)
	if err != nil {
		return err
	}

	var slots []int64
	var outPos []int64
	for i, pos := range positions {
		c0, c1 := c0c1[i][0], c0c1[i][1]
		globalRank := localStart + int64(i)
		firstRank := e.bucketFirstBStarRank(c0, c1)
		withinBucket := globalRank - firstRank
		slot := e.l.startBStar[c0][c1] + withinBucket
		slots = append(slots, slot)
		outPos = append(outPos, pos)
	}
	return e.writeSlots(slots, outPos)
}

// bucketFirstBStarRank is the cumulative count of B*-suffixes in all
// (c0,c1) buckets strictly before (c0,c1) in ascending enumeration
// order, which matches ascending suffix rank order since B*-suffixes
// sorted lexicographically group by their first two bytes first.
func (e *engine) bucketFirstBStarRank(c0, c1 byte) int64 {
	var total int64
	for x := 0; x < int(c0); x++ {
		for y := x + 1; y < 256; y++ {
			total += e.l.sizeBStar[x][y]
		}
	}
	for y := int(c0) + 1; y < int(c1); y++ {
		total += e.l.sizeBStar[c0][y]
	}
	return total
}

// lookaheadPairs fetches (T[pos], T[pos+1]) for a batch of global text
// positions via the requestable array.
func (e *engine) lookaheadPairs(positions []int64) ([][2]byte, error) {
	p1 := make([]int64, len(positions)*2)
	for i, p := range positions {
		p1[2*i] = p
		p1[2*i+1] = p + 1
		if p1[2*i+1] >= e.n {
			p1[2*i+1] = p // clamp; text's implicit terminator sorts as 0, never matched by a real byte
		}
	}
	vals, err := e.text.GatherRemote(e.ctx, p1)
	if err != nil {
		return nil, err
	}
	out := make([][2]byte, len(positions))
	for i := range positions {
		c0 := vals[2*i]
		c1 := vals[2*i+1]
		if positions[i]+1 >= e.n {
			c1 = 0
		}
		out[i] = [2]byte{c0, c1}
	}
	return out, nil
}

// induceB is the right-to-left sweep that fills every B and A* bucket
// from the already-complete B*-buckets and from earlier rounds'
// output, scanning outer = c0 from 255 down to 0.
func (e *engine) induceB() error {
	for outer := 255; outer >= 0; outer-- {
		var srcPositions []int64
		for y := 255; y > outer; y-- {
			lo, hi := e.l.startBStar[outer][y], e.l.startBStar[outer][y]+e.l.sizeBStar[outer][y]
			srcPositions = append(srcPositions, e.localSlotsInRange(lo, hi)...)
			lo, hi = e.l.startB[outer][y], e.l.startB[outer][y]+e.l.sizeB[outer][y]
			srcPositions = append(srcPositions, e.localSlotsInRange(lo, hi)...)
		}
		if err := e.contributeB(outer, srcPositions); err != nil {
			return err
		}

		for {
			lo := e.l.startB[outer][outer] + e.diagScannedB[outer]
			hi := e.l.startB[outer][outer] + e.l.sizeB[outer][outer]
			diag := e.localSlotsInRange(lo, hi)
			mineCount := int64(len(diag))
			totals, err := e.c.AllReduceSum(e.ctx, []int64{mineCount})
			if err != nil {
				return err
			}
			e.diagScannedB[outer] += mineCount
			if err := e.contributeB(outer, diag); err != nil {
				return err
			}
			if totals[0] == 0 {
				break
			}
		}
	}
	return nil
}

// contributeB computes, for each source position p, the induced
// position p-1's target bucket and back-to-front slot, using a single
// AllGather-based exclusive prefix sum over PEs per target-bucket
// first coordinate so every PE's contributions land in the correct,
// non-overlapping slots.
func (e *engine) contributeB(outer int, srcPositions []int64) error {
	if err := e.c.Barrier(e.ctx); err != nil {
		return err
	}
	predPositions := make([]int64, len(srcPositions))
	for i, p := range srcPositions {
		predPositions[i] = p - 1
	}
	preds, err := e.text.GatherRemote(e.ctx, clampNonNegative(predPositions))
	if err != nil {
		return err
	}

	var myCounts [256]int64
	buckets := make([]byte, len(srcPositions))
	for i, p := range srcPositions {
		if p == 0 {
			buckets[i] = 255 // sentinel: no predecessor, contributes nowhere
			continue
		}
		buckets[i] = preds[i]
		myCounts[preds[i]]++
	}

	allCounts, err := e.c.AllGather(e.ctx, encodeCounts(myCounts))
	if err != nil {
		return err
	}
	var base [256]int64
	for r := 0; r < e.c.Rank(); r++ {
		rc := decodeCounts(allCounts[r])
		for i := range base {
			base[i] += rc[i]
		}
	}

	var within [256]int64
	var slots, positions []int64
	for i, p := range srcPositions {
		if p == 0 {
			continue
		}
		ch := buckets[i]
		predPos := p - 1
		offset := base[ch] + within[ch]
		within[ch]++
		var bucketStart, bucketSize int64
		if int(ch) <= outer {
			bucketStart, bucketSize = e.l.startB[ch][outer], e.l.sizeB[ch][outer]
		} else {
			bucketStart, bucketSize = e.l.startAStar[ch][outer], e.l.sizeAStar[ch][outer]
		}
		slot := bucketStart + bucketSize - 1 - offset // back-to-front
		slots = append(slots, slot)
		positions = append(positions, predPos)
	}

	var totalMine int64
	for _, n := range myCounts {
		totalMine += n
	}
	_ = totalMine
	if err := e.writeSlots(slots, positions); err != nil {
		return err
	}
	for ch := 0; ch < 256; ch++ {
		var total int64
		for r := range allCounts {
			rc := decodeCounts(allCounts[r])
			total += rc[ch]
		}
		if int(ch) <= outer {
			e.filledB[ch][outer] += total
		} else {
			e.filledAStar[ch][outer] += total
		}
	}
	return nil
}

// seedAStar places the text's final position at the head of
// A*(T[N-1],0), the explicit A-induction seed every induced-sorting
// construction needs before the left-to-right sweep. Every PE joins
// the collective read and write; only rank 0 contributes the seed.
func (e *engine) seedAStar(text container.DistributedString) error {
	var want []int64
	if e.c.Rank() == 0 {
		want = []int64{e.n - 1}
	}
	lastChar, err := e.text.GatherRemote(e.ctx, want)
	if err != nil {
		return err
	}
	if e.c.Rank() != 0 {
		return e.writeSlots(nil, nil)
	}
	c0 := lastChar[0]
	slot := e.l.startAStar[c0][0] // head of the bucket: front-to-back convention, slot 0 of its range
	return e.writeSlots([]int64{slot}, []int64{e.n - 1})
}

// induceA is the left-to-right sweep for A-suffixes, outer = c0 from
// 0 up.
func (e *engine) induceA() error {
	for outer := 0; outer < 256; outer++ {
		var srcPositions []int64
		for y := 0; y < outer; y++ {
			lo, hi := e.l.startA[outer][y], e.l.startA[outer][y]+e.l.sizeA[outer][y]
			srcPositions = append(srcPositions, e.localSlotsInRange(lo, hi)...)
			lo, hi = e.l.startAStar[outer][y], e.l.startAStar[outer][y]+e.l.sizeAStar[outer][y]
			srcPositions = append(srcPositions, e.localSlotsInRange(lo, hi)...)
		}
		if err := e.contributeA(outer, srcPositions); err != nil {
			return err
		}

		for {
			lo := e.l.startA[outer][outer] + e.diagScannedA[outer]
			hi := e.l.startA[outer][outer] + e.l.sizeA[outer][outer]
			diag := e.localSlotsInRange(lo, hi)
			mineCount := int64(len(diag))
			totals, err := e.c.AllReduceSum(e.ctx, []int64{mineCount})
			if err != nil {
				return err
			}
			e.diagScannedA[outer] += mineCount
			if err := e.contributeA(outer, diag); err != nil {
				return err
			}
			if totals[0] == 0 {
				break
			}
		}
	}
	return nil
}

func (e *engine) contributeA(outer int, srcPositions []int64) error {
	if err := e.c.Barrier(e.ctx); err != nil {
		return err
	}
	predPositions := make([]int64, len(srcPositions))
	for i, p := range srcPositions {
		predPositions[i] = p - 1
	}
	preds, err := e.text.GatherRemote(e.ctx, clampNonNegative(predPositions))
	if err != nil {
		return err
	}

	var myCounts [256]int64
	buckets := make([]byte, len(srcPositions))
	skip := make([]bool, len(srcPositions))
	for i, p := range srcPositions {
		if p == 0 {
			skip[i] = true
			continue
		}
		ch := preds[i]
		if int(ch) < outer {
			skip[i] = true // already an induced B-suffix; nothing to do here
			continue
		}
		buckets[i] = ch
		myCounts[ch]++
	}

	allCounts, err := e.c.AllGather(e.ctx, encodeCounts(myCounts))
	if err != nil {
		return err
	}
	var base [256]int64
	for r := 0; r < e.c.Rank(); r++ {
		rc := decodeCounts(allCounts[r])
		for i := range base {
			base[i] += rc[i]
		}
	}

	var within [256]int64
	var slots, positions []int64
	for i, p := range srcPositions {
		if p == 0 || skip[i] {
			continue
		}
		ch := buckets[i]
		predPos := p - 1
		offset := base[ch] + within[ch]
		within[ch]++
		bucketStart := e.l.startA[ch][outer]
		slot := bucketStart + offset // front-to-back
		slots = append(slots, slot)
		positions = append(positions, predPos)
	}
	return e.writeSlots(slots, positions)
}

func clampNonNegative(xs []int64) []int64 {
	out := make([]int64, len(xs))
	for i, x := range xs {
		if x < 0 {
			x = 0
		}
		out[i] = x
	}
	return out
}

func encodeCounts(c [256]int64) []byte {
	buf := make([]byte, 256*8)
	for i, v := range c {
		putI64(buf[i*8:], v)
	}
	return buf
}

func decodeCounts(buf []byte) [256]int64 {
	var out [256]int64
	for i := range out {
		out[i] = getI64(buf[i*8 : i*8+8])
	}
	return out
}
