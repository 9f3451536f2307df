// Package pdd implements prefix doubling with discarding (C6): given
// either a freshly packed-alphabet text or a set of already-named
// records (as induction supplies for its B*-suffixes), iteratively
// refine ranks by doubling comparison length each round until every
// surviving record has a globally unique rank, discarding records
// early once their rank is already unique so they stop participating
// in later rounds.
package pdd

import (
	"context"
	"math/bits"
	"sort"

	"github.com/distsa/distsa/comm"
	"github.com/distsa/distsa/container"
	"github.com/distsa/distsa/index"
	"github.com/distsa/distsa/record"
	"github.com/distsa/distsa/sortx"
	"github.com/pkg/errors"
)

var irrCodec = sortx.Codec[record.IRR]{Size: record.IRRSize, Encode: func(r record.IRR, dst []byte) { r.Encode(dst) }, Decode: record.DecodeIRR}
var irsCodec = sortx.Codec[record.IRS]{Size: record.IRSSize, Encode: func(r record.IRS, dst []byte) { r.Encode(dst) }, Decode: record.DecodeIRS}

// DefaultDiscard is the discard setting every entry point in this
// package uses unless a caller explicitly wants the non-discarding
// variant (benchmarking the discard step's effect, or verifying it
// against the discarding path).
const DefaultDiscard = true

// Build runs PDD over a full distributed text, the standalone entry
// point cmd/pdd uses. Returns the globally sorted suffix array,
// evenly redistributed across PEs. discard controls whether step 3's
// early-discard rule runs each round; with discard=false every record
// stays in play until its rank is globally unique, which costs more
// rounds of comparison but must still converge on the same SA.
func Build(ctx context.Context, c comm.Comm, text container.DistributedString, discard bool) ([]index.I, error) {
	code, bitsPerChar, err := buildAlphabet(ctx, c, text.Local)
	if err != nil {
		return nil, errors.Wrap(err, "pdd: alphabet reduction")
	}
	k := 40 / bitsPerChar
	if k == 0 {
		k = 1
	}

	// Windows near this PE's right edge need up to 2k bytes from the PEs
	// to its right. Every PE publishes its leading 2k bytes (its whole
	// slice if shorter), and each PE appends those of the following PEs
	// until it has 2k bytes; the last PE appends nothing.
	lookahead := 2 * int(k)
	if lookahead > len(text.Local) {
		lookahead = len(text.Local)
	}
	sendPrefix := append([]byte(nil), text.Local[:lookahead]...)
	prefixes, err := c.AllGatherV(ctx, sendPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "pdd: window lookahead gather")
	}
	extended := append([]byte(nil), text.Local...)
	for r := c.Rank() + 1; r < c.Size() && len(extended) < len(text.Local)+2*int(k); r++ {
		extended = append(extended, prefixes[r]...)
	}

	irrs := make([]record.IRR, len(text.Local))
	for i := range text.Local {
		globalPos := text.Offset.Add(int64(i))
		irrs[i] = record.IRR{
			Index: globalPos,
			Rank1: packWindow(extended, i, int(k), code, bitsPerChar),
			Rank2: packWindow(extended, i+int(k), int(k), code, bitsPerChar),
		}
	}

	startH := uint(bits.Len(uint(k))) + 1
	irs, err := initialRound(ctx, c, irrs)
	if err != nil {
		return nil, err
	}
	final, err := refineLoop(ctx, c, irs, startH, discard)
	if err != nil {
		return nil, err
	}
	sorted, err := sortx.Sort(ctx, c, final, func(a, b record.IRS) bool { return a.LessRank(b) }, nil, irsCodec)
	if err != nil {
		return nil, errors.Wrap(err, "pdd: final rank sort")
	}
	out := make([]index.I, len(sorted))
	for i, r := range sorted {
		out[i] = r.Index
	}
	return out, nil
}

// Refine runs PDD's iterative loop starting from already-named
// records (induction's B*-suffix names after string sample-sort),
// rather than from a freshly packed alphabet window. startH is the
// doubling exponent the caller's naming resolution corresponds to.
// discard has the same meaning as in Build.
func Refine(ctx context.Context, c comm.Comm, initial []record.IR, startH uint, discard bool) ([]record.IRS, error) {
	irrs := make([]record.IRR, len(initial))
	for i, r := range initial {
		irrs[i] = record.IRR{Index: r.Index, Rank1: r.Rank, Rank2: index.Zero}
	}
	irs, err := initialRound(ctx, c, irrs)
	if err != nil {
		return nil, err
	}
	return refineLoop(ctx, c, irs, startH, discard)
}

// initialRound converts the first packed/named IRR batch into ranked,
// demoted IRS records exactly as step 4-6 of one PDD round would,
// seeding the iterative loop.
func initialRound(ctx context.Context, c comm.Comm, irrs []record.IRR) ([]record.IRS, error) {
	sorted, err := sortx.Sort(ctx, c, irrs, func(a, b record.IRR) bool { return a.LessRank(b) }, nil, irrCodec)
	if err != nil {
		return nil, errors.Wrap(err, "pdd: initial rank sort")
	}
	return renameAndDemote(ctx, c, sorted)
}

// refineLoop is the core of C6: repeat steps 1-7 until every surviving
// record is UNIQUE on every PE. When discard is false, step 3 never
// removes a record early: every record keeps cycling through the
// mod/div sort, pairing, and rank sort until its rank is globally
// unique, so the loop runs strictly more (or equal) rounds but must
// still converge on the same final ranking as the discard=true path.
func refineLoop(ctx context.Context, c comm.Comm, irs []record.IRS, h uint, discard bool) ([]record.IRS, error) {
	var discarded []record.IRS
	for {
		// Step 7 check (evaluated before the round body so a
		// first-round-already-unique input terminates immediately,
		// matching "if all surviving records are UNIQUE... stop").
		allUnique, err := allRecordsUnique(ctx, c, irs)
		if err != nil {
			return nil, err
		}
		if allUnique {
			discarded = append(discarded, irs...)
			break
		}

		// Step 1: mod/div sort by (index mod 2^h, index div 2^h).
		byModDiv, err := sortx.Sort(ctx, c, toIR(irs), func(a, b record.IR) bool {
			return record.LessIndexDivIRR(h, record.IRR{Index: a.Index, Rank1: a.Rank}, record.IRR{Index: b.Index, Rank1: b.Rank})
		}, nil, sortx.Codec[record.IR]{Size: record.IRSize, Encode: func(r record.IR, d []byte) { r.Encode(d) }, Decode: record.DecodeIR})
		if err != nil {
			return nil, errors.Wrap(err, "pdd: mod/div sort")
		}
		irsByModDiv := restoreState(byModDiv, irs)

		// Step 2: pair construction. Candidates whose successor i+2^h
		// is the immediate next record in mod/div order are paired
		// with that record's rank; otherwise paired with rank 0.
		delta := uint64(1) << h
		paired := make([]record.IRR, len(irsByModDiv))
		for i, rec := range irsByModDiv {
			r2 := index.Zero
			if i+1 < len(irsByModDiv) {
				nxt := irsByModDiv[i+1]
				if nxt.Index.Uint64() == rec.Index.Uint64()+delta {
					r2 = nxt.Rank
				}
			}
			paired[i] = record.IRR{Index: rec.Index, Rank1: rec.Rank, Rank2: r2}
		}

		// Step 3: discarding (skipped entirely when discard is false). A
		// record that is UNIQUE and flanked on both sides (in the current
		// sequence) by UNIQUE records is permanently discarded; other
		// UNIQUEs keep a degenerate pair (rank, 0); non-UNIQUEs become
		// full pairs (already are).
		var survivors []record.IRR
		for i, rec := range irsByModDiv {
			if rec.State != record.Unique {
				survivors = append(survivors, paired[i])
				continue
			}
			if discard {
				leftUnique := i == 0 || irsByModDiv[i-1].State == record.Unique
				rightUnique := i == len(irsByModDiv)-1 || irsByModDiv[i+1].State == record.Unique
				if leftUnique && rightUnique {
					discarded = append(discarded, rec)
					continue
				}
			}
			survivors = append(survivors, record.IRR{Index: rec.Index, Rank1: rec.Rank, Rank2: index.Zero})
		}

		if len(survivors) == 0 {
			break
		}

		// Step 4: rank sort by (rank1, rank2).
		sortedPairs, err := sortx.Sort(ctx, c, survivors, func(a, b record.IRR) bool { return a.LessRank(b) }, nil, irrCodec)
		if err != nil {
			return nil, errors.Wrap(err, "pdd: rank sort")
		}

		irs, err = renameAndDemote(ctx, c, sortedPairs)
		if err != nil {
			return nil, err
		}
		h++
	}

	// Finalise: every record has entered `discarded` above (early, or
	// once all were UNIQUE). The pool is returned unsorted; Build and
	// Refine's callers rank-sort it.
	return discarded, nil
}

// renameAndDemote is PDD round steps 5-6: compute each record's new
// rank as rank1 plus a within-group offset (the group being the run
// of consecutive records sharing rank1, continued across PE
// boundaries via an AllGather of each PE's leading/trailing run
// lengths), then demote to NONE any record whose immediate neighbour
// in the new sequence shares its new rank.
func renameAndDemote(ctx context.Context, c comm.Comm, sorted []record.IRR) ([]record.IRS, error) {
	n := len(sorted)
	if n == 0 {
		if _, err := c.AllGather(ctx, encodeLeadInfo(leadInfo{empty: true})); err != nil {
			return nil, err
		}
		return nil, nil
	}

	leadRank1 := sorted[0].Rank1
	trailRank1 := sorted[n-1].Rank1
	trailCount := int64(1)
	for i := n - 2; i >= 0 && sorted[i].Rank1 == trailRank1; i-- {
		trailCount++
	}
	mine := leadInfo{empty: false, leadRank1: leadRank1, trailRank1: trailRank1, trailCount: trailCount}
	gathered, err := c.AllGather(ctx, encodeLeadInfo(mine))
	if err != nil {
		return nil, errors.Wrap(err, "pdd: rename allgather")
	}
	infos := make([]leadInfo, len(gathered))
	for i, g := range gathered {
		infos[i] = decodeLeadInfo(g)
	}

	// Offset contributed by all strictly-preceding PEs whose trailing
	// run shares this PE's leading rank1.
	rank := c.Rank()
	var offset int64
	for r := rank - 1; r >= 0; r-- {
		if infos[r].empty {
			continue
		}
		if infos[r].trailRank1 == leadRank1 {
			offset += infos[r].trailCount
			if infos[r].trailRank1 != infos[r].leadRank1 {
				break // that PE's run didn't start at its own front; chain stops
			}
		} else {
			break
		}
	}

	out := make([]record.IRS, n)
	within := int64(0)
	for i, rec := range sorted {
		if i > 0 && sorted[i-1].Rank1 != rec.Rank1 {
			within = 0
			offset = 0 // group restarted locally; cross-PE offset only applies to the PE's leading group
		}
		newRank := rec.Rank1.Add(offset + within)
		out[i] = record.IRS{Index: rec.Index, Rank: newRank, State: record.Unique}
		within++
	}

	for i := range out {
		leftSame := i > 0 && out[i-1].Rank.Uint64() == out[i].Rank.Uint64()
		rightSame := i < len(out)-1 && out[i+1].Rank.Uint64() == out[i].Rank.Uint64()
		if leftSame || rightSame {
			out[i].State = record.None
		}
	}
	return out, nil
}

type leadInfo struct {
	empty      bool
	leadRank1  index.I
	trailRank1 index.I
	trailCount int64
}

func encodeLeadInfo(li leadInfo) []byte {
	buf := make([]byte, 1+index.Size*2+8)
	if li.empty {
		buf[0] = 1
	}
	index.PutLittleEndian(buf[1:1+index.Size], li.leadRank1)
	index.PutLittleEndian(buf[1+index.Size:1+2*index.Size], li.trailRank1)
	off := 1 + 2*index.Size
	for i := 0; i < 8; i++ {
		buf[off+i] = byte(li.trailCount >> (8 * i))
	}
	return buf
}

func decodeLeadInfo(buf []byte) leadInfo {
	var li leadInfo
	li.empty = buf[0] == 1
	li.leadRank1 = index.LittleEndian(buf[1 : 1+index.Size])
	li.trailRank1 = index.LittleEndian(buf[1+index.Size : 1+2*index.Size])
	off := 1 + 2*index.Size
	var tc uint64
	for i := 0; i < 8; i++ {
		tc |= uint64(buf[off+i]) << (8 * i)
	}
	li.trailCount = int64(tc)
	return li
}

// allRecordsUnique all-reduces (via AND) whether every local record is
// UNIQUE.
func allRecordsUnique(ctx context.Context, c comm.Comm, irs []record.IRS) (bool, error) {
	mine := true
	for _, r := range irs {
		if r.State != record.Unique {
			mine = false
			break
		}
	}
	res, err := c.AllReduceAnd(ctx, []bool{mine})
	if err != nil {
		return false, errors.Wrap(err, "pdd: uniqueness reduce")
	}
	return res[0], nil
}

func toIR(irs []record.IRS) []record.IR {
	out := make([]record.IR, len(irs))
	for i, r := range irs {
		out[i] = record.IR{Index: r.Index, Rank: r.Rank}
	}
	return out
}

// restoreState re-pairs a mod/div-sorted IR projection with each
// record's State by matching Index, since sortx.Sort only carries the
// comparator's record type (IR) through the mod/div pass.
func restoreState(irSorted []record.IR, irsOriginal []record.IRS) []record.IRS {
	byIndex := make(map[uint64]record.State, len(irsOriginal))
	for _, r := range irsOriginal {
		byIndex[r.Index.Uint64()] = r.State
	}
	out := make([]record.IRS, len(irSorted))
	for i, r := range irSorted {
		out[i] = record.IRS{Index: r.Index, Rank: r.Rank, State: byIndex[r.Index.Uint64()]}
	}
	return out
}

// buildAlphabet computes the global byte histogram and assigns each
// surviving byte a dense code in [1..sigma] in ascending byte order,
// the reduced-alphabet packing every PDD round keys its comparisons
// on. Returns the code table and the number of bits needed per packed
// character.
func buildAlphabet(ctx context.Context, c comm.Comm, local []byte) (code [256]int32, bitsPerChar uint, err error) {
	var hist [256]int64
	for _, b := range local {
		hist[b]++
	}
	reduced, err := c.AllReduceSum(ctx, hist[:])
	if err != nil {
		return code, 0, err
	}
	var sigma int32
	var present []int
	for b, n := range reduced {
		if n > 0 {
			present = append(present, b)
		}
	}
	sort.Ints(present)
	for _, b := range present {
		sigma++
		code[b] = sigma
	}
	bitsPerChar = uint(bits.Len(uint(sigma + 1)))
	if bitsPerChar == 0 {
		bitsPerChar = 1
	}
	return code, bitsPerChar, nil
}

// packWindow packs k reduced codes starting at pos into the low bits
// of a 40-bit index.I, most-significant character first; positions
// past the end of text pack as 0 (smaller than any real code), the
// "rank 0 means beyond the text" convention used throughout pairing.
func packWindow(text []byte, pos, k int, code [256]int32, bitsPerChar uint) index.I {
	var acc uint64
	for j := 0; j < k; j++ {
		var ch uint64
		if pos+j >= 0 && pos+j < len(text) {
			ch = uint64(code[text[pos+j]])
		}
		acc = (acc << bitsPerChar) | ch
	}
	return index.From(acc & index.Max)
}
