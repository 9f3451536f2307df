// Package sacheck verifies a distributed suffix array against its
// source text (C8): that SA is a permutation of [0, N), and that the
// triple (T[SA[i]], rank(SA[i]+1), i) is non-decreasing over i, where
// rank is SA's inverse. Both checks are expressed as distributed sorts
// plus neighbour shifts so no PE ever needs the whole array.
package sacheck

import (
	"context"
	"fmt"

	"github.com/distsa/distsa/comm"
	"github.com/distsa/distsa/container"
	"github.com/distsa/distsa/index"
	"github.com/distsa/distsa/record"
	"github.com/distsa/distsa/sortx"
	"github.com/pkg/errors"
)

// Violation describes the first-detected way a suffix array failed to
// validate.
type Violation struct {
	Kind string // "not-a-permutation" or "order"
	Detail string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("sacheck: %s: %s", v.Kind, v.Detail)
}

var irCodec = sortx.Codec[record.IR]{Size: record.IRSize, Encode: func(r record.IR, d []byte) { r.Encode(d) }, Decode: record.DecodeIR}

// Check validates sa (this PE's contiguous slice of the full SA, with
// sa[i] corresponding to global SA position offset+i) against text.
// Returns nil if valid, or a *Violation describing the first failure
// found. All PEs must call this together and receive the same
// verdict.
func Check(ctx context.Context, c comm.Comm, sa []index.I, offset index.I, text container.DistributedString) error {
	if err := checkPermutation(ctx, c, sa, text); err != nil {
		return err
	}
	return checkOrder(ctx, c, sa, offset, text)
}

// checkPermutation sorts the SA values and verifies, against each
// PE's exclusive prefix sum of sorted slice lengths, that the sorted
// SA values are exactly 0..N-1 with no gaps or repeats.
func checkPermutation(ctx context.Context, c comm.Comm, sa []index.I, text container.DistributedString) error {
	recs := make([]record.IR, len(sa))
	for i, v := range sa {
		recs[i] = record.IR{Index: v, Rank: index.Zero}
	}
	sorted, err := sortx.Sort(ctx, c, recs, func(a, b record.IR) bool { return a.Index.Less(b.Index) }, nil, irCodec)
	if err != nil {
		return errors.Wrap(err, "sacheck: permutation sort")
	}

	localStart, err := c.ExPrefixSum(ctx, int64(len(sorted)))
	if err != nil {
		return err
	}
	for i, r := range sorted {
		want := uint64(localStart + int64(i))
		if r.Index.Uint64() != want {
			v := &Violation{Kind: "not-a-permutation", Detail: fmt.Sprintf("expected SA value %d at sorted position %d, found %d", want, localStart+int64(i), r.Index.Uint64())}
			return reportViolation(ctx, c, v)
		}
	}
	if c.Rank() == c.Size()-1 && uint64(localStart)+uint64(len(sorted)) != text.Total.Uint64() {
		v := &Violation{Kind: "not-a-permutation", Detail: fmt.Sprintf("SA holds %d entries, text has %d", uint64(localStart)+uint64(len(sorted)), text.Total.Uint64())}
		return reportViolation(ctx, c, v)
	}
	return reportViolation(ctx, c, nil)
}

// checkOrder builds rank(j) = inverse of SA (by sorting (SA[i], i) and
// reading off i in SA[i] order, which is exactly ISA), then for each
// consecutive pair of SA entries verifies
// (T[SA[i]], rank(SA[i]+1)) <= (T[SA[i+1]], rank(SA[i+1]+1)),
// using one neighbour shift to cover the pair spanning a PE boundary.
func checkOrder(ctx context.Context, c comm.Comm, sa []index.I, offset index.I, text container.DistributedString) error {
	n := text.Total.Uint64()

	textRA, err := container.NewByteRequestableArray(ctx, c, text.Local)
	if err != nil {
		return err
	}

	isa, err := buildISA(ctx, c, sa, offset)
	if err != nil {
		return err
	}

	succ := make([]int64, len(sa))
	for i, v := range sa {
		p := v.Uint64() + 1
		if p >= n {
			succ[i] = -1 // successor of the last suffix: smallest possible rank
		} else {
			succ[i] = int64(p)
		}
	}
	req := make([]int64, len(succ)) // -1 is not a valid position; request 0 and overwrite below
	for i, s := range succ {
		if s >= 0 {
			req[i] = s
		}
	}
	succRanks, err := isa.GatherRemote(ctx, req)
	if err != nil {
		return err
	}
	for i := range succ {
		if succ[i] == -1 {
			succRanks[i] = -1
		}
	}

	saChars, err := textRA.GatherRemote(ctx, toInt64(sa))
	if err != nil {
		return err
	}

	var lastRec []byte // stays empty on a PE with no SA entries
	if len(sa) > 0 {
		lastRec = make([]byte, 9)
		lastRec[0] = saChars[len(saChars)-1]
		putI64(lastRec[1:], succRanks[len(succRanks)-1])
	}
	prevRec, err := c.ShiftRight(ctx, lastRec)
	if err != nil {
		return err
	}

	for i := 0; i < len(sa); i++ {
		var prevChar byte
		var prevRank int64
		// ShiftRight wraps around, so rank 0's received record is the
		// last PE's and has no place in the order check.
		haveLeft := i > 0 || (c.Rank() > 0 && len(prevRec) == 9)
		if !haveLeft {
			continue
		}
		if i == 0 {
			prevChar = prevRec[0]
			prevRank = getI64(prevRec[1:])
		} else {
			prevChar = saChars[i-1]
			prevRank = succRanks[i-1]
		}
		curChar := saChars[i]
		curRank := succRanks[i]
		if less2(curChar, curRank, prevChar, prevRank) {
			v := &Violation{Kind: "order", Detail: fmt.Sprintf("SA entry at local position %d is smaller than its predecessor under (T[SA[i]], rank(SA[i]+1))", i)}
			return reportViolation(ctx, c, v)
		}
	}
	return reportViolation(ctx, c, nil)
}

func less2(c1 byte, r1 int64, c0 byte, r0 int64) bool {
	if c1 != c0 {
		return c1 < c0
	}
	return r1 < r0
}

// buildISA returns a RequestableArray mapping text position -> its
// rank in sa, by sorting (SA[i], global rank i) by SA[i].
func buildISA(ctx context.Context, c comm.Comm, sa []index.I, offset index.I) (*container.RequestableArray[int64], error) {
	recs := make([]record.IR, len(sa))
	for i, v := range sa {
		recs[i] = record.IR{Index: v, Rank: index.From(offset.Uint64() + uint64(i))}
	}
	sorted, err := sortx.Sort(ctx, c, recs, func(a, b record.IR) bool { return a.Index.Less(b.Index) }, nil, irCodec)
	if err != nil {
		return nil, errors.Wrap(err, "sacheck: ISA sort")
	}
	ranks := make([]int64, len(sorted))
	for i, r := range sorted {
		ranks[i] = int64(r.Rank.Uint64())
	}
	return container.NewRequestableArray(ctx, c, ranks,
		func(v int64) []byte { b := make([]byte, 8); putI64(b, v); return b },
		func(b []byte) int64 { return getI64(b) },
	)
}

// reportViolation all-reduces whether any PE found a violation (so
// every PE returns the same verdict), returning the caller's own
// violation if it has one, or nil if no PE reported one.
func reportViolation(ctx context.Context, c comm.Comm, v *Violation) (error) {
	mine := v == nil
	all, err := c.AllReduceAnd(ctx, []bool{mine})
	if err != nil {
		return err
	}
	if all[0] {
		return nil
	}
	if v != nil {
		return v
	}
	return &Violation{Kind: "order", Detail: "another PE reported a violation"}
}

func toInt64(xs []index.I) []int64 {
	out := make([]int64, len(xs))
	for i, x := range xs {
		out[i] = int64(x.Uint64())
	}
	return out
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
