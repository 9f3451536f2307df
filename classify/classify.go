// Package classify implements B*-classification (C5): one right-to-left
// pass over a PE's local text slice that identifies A, A*, B, and B*
// suffixes, emits the B*-substring set with absolute global positions,
// and accumulates the 256x256 border-count matrices that get
// all-reduced across every PE.
package classify

import (
	"context"

	"github.com/distsa/distsa/comm"
	"github.com/distsa/distsa/container"
	"github.com/pkg/errors"
)

// BorderArray holds, per (c0, c1) byte pair, the count of suffixes of
// each of the four classes starting with that pair.
type BorderArray struct {
	A, AStar, B, BStar [256][256]int64
}

// Sum returns the grand total across all four matrices, which must
// equal N after the all-reduce.
func (b *BorderArray) Sum() int64 {
	var total int64
	for c0 := 0; c0 < 256; c0++ {
		for c1 := 0; c1 < 256; c1++ {
			total += b.A[c0][c1] + b.AStar[c0][c1] + b.B[c0][c1] + b.BStar[c0][c1]
		}
	}
	return total
}

func (b *BorderArray) flat() []int64 {
	out := make([]int64, 0, 4*256*256)
	for _, m := range [][256][256]int64{b.A, b.AStar, b.B, b.BStar} {
		for c0 := range m {
			out = append(out, m[c0][:]...)
		}
	}
	return out
}

func unflatten(x []int64) *BorderArray {
	b := &BorderArray{}
	mats := [...]*[256][256]int64{&b.A, &b.AStar, &b.B, &b.BStar}
	off := 0
	for _, m := range mats {
		for c0 := 0; c0 < 256; c0++ {
			copy(m[c0][:], x[off:off+256])
			off += 256
		}
	}
	return b
}

const (
	classA byte = iota
	classAStar
	classB
	classBStar
)

// countBorders increments exactly the counter for one classified
// suffix. Every classification path in this package funnels through
// this one function, so the "when does the counter fire" rule
// cannot drift between call sites: a suffix's border counter is incremented
// exactly once, by the PE that owns its leftmost byte, after the
// ShiftLeft exchange in Classify below has given that PE its right
// neighbour's prefix as lookahead; borrowed lookahead bytes are never
// counted by the PE that borrowed them.
func countBorders(ba *BorderArray, class byte, c0, c1 byte) {
	switch class {
	case classA:
		ba.A[c0][c1]++
	case classAStar:
		ba.AStar[c0][c1]++
	case classB:
		ba.B[c0][c1]++
	case classBStar:
		ba.BStar[c0][c1]++
	}
}

// Result is the output of Classify: this PE's B*-substrings (carrying
// global position) plus the globally all-reduced border array.
type Result struct {
	BStar   container.IndexedStringSet
	Borders *BorderArray
}

// Classify runs B*-classification over one PE's slice of the
// distributed text, exchanging boundary lookahead bytes with its
// right neighbour via ShiftLeft, then all-reducing the border counts.
func Classify(ctx context.Context, c comm.Comm, text container.DistributedString) (Result, error) {
	rank, size := c.Rank(), c.Size()
	local := text.Local

	// Send a prefix of this slice, up to the first B* position plus two
	// lookahead bytes, to the left neighbour (ShiftLeft moves data
	// towards lower rank) so it can finish classifying runs that span
	// the boundary, and receive the right neighbour's prefix in the same
	// exchange. The received bytes are appended to our own slice as
	// lookahead only; every PE counts and emits just its own positions.
	firstBStar := findFirstBStar(local)
	sendLen := len(local)
	if firstBStar >= 0 && firstBStar+2 < sendLen {
		sendLen = firstBStar + 2
	}
	toSend := append([]byte(nil), local[:sendLen]...)
	received, err := c.ShiftLeft(ctx, toSend)
	if err != nil {
		return Result{}, errors.Wrap(err, "classify: boundary shift")
	}
	if rank == size-1 {
		received = nil // ShiftLeft wraps around; the last PE has no right neighbour
	}

	ownLen := len(local)
	working := make([]byte, 0, ownLen+len(received))
	working = append(working, local...)
	working = append(working, received...)

	ba := &BorderArray{}
	var bstarBuf []byte
	var bstarIdx []int64

	n := len(working)
	isLastPE := rank == size-1
	nextIsA := true // classification of position i+1, seeded for i == n-1
	for i := n - 1; i >= 0; i-- {
		cur := working[i]
		var isTypeB bool
		var next byte
		switch {
		case i == n-1 && isLastPE:
			// True end of T: the implicit terminator is 0, smaller
			// than any real byte, so the true last position is
			// A*-type by convention; induction re-seeds
			// it explicitly as A*(T[N-1],0), so its border count must
			// land in A*, not plain A, but it is never itself a B*
			// position (the fall-through below only emits on
			// classBStar).
			isTypeB = false
			next = 0
		case i == n-1:
			// Last borrowed lookahead byte: its successor is not in
			// `working`, so it is skipped here; the PE that owns it
			// classifies it from its own slice.
			continue
		default:
			next = working[i+1]
			isTypeB = cur < next || (cur == next && !nextIsA)
		}

		var class byte
		if isTypeB {
			class = classB
			if nextIsA {
				class = classBStar
			}
		} else {
			class = classA
			if !nextIsA || (i == n-1 && isLastPE) {
				class = classAStar
			}
		}
		nextIsA = !isTypeB

		if i >= ownLen {
			continue // borrowed lookahead byte, not ours to count or emit
		}
		globalPos := text.Offset.Add(int64(i))
		countBorders(ba, class, cur, next)
		if class == classBStar {
			end := i + 2
			if end > n {
				end = n
			}
			bstarBuf = append(bstarBuf, working[i:end]...)
			bstarBuf = append(bstarBuf, 0)
			bstarIdx = append(bstarIdx, int64(globalPos.Uint64()))
		}
	}

	reverseStrings(&bstarBuf, &bstarIdx) // was emitted right-to-left; spec requires ascending order

	reduced, err := c.AllReduceSum(ctx, ba.flat())
	if err != nil {
		return Result{}, errors.Wrap(err, "classify: border reduce")
	}

	return Result{
		BStar:   container.NewIndexedStringSet(bstarBuf, bstarIdx),
		Borders: unflatten(reduced),
	}, nil
}

// findFirstBStar finds the leftmost (smallest index) B* position in
// local by a local-only right-to-left scan. The true classification
// of the tail run may still change once the right-neighbour lookahead
// arrives; this is only used to size the prefix sent to the left
// neighbour, which errs towards sending more context, never less.
func findFirstBStar(local []byte) int {
	n := len(local)
	if n == 0 {
		return -1
	}
	nextIsA := true
	first := -1
	for i := n - 1; i >= 0; i-- {
		var isTypeB bool
		if i < n-1 {
			isTypeB = local[i] < local[i+1] || (local[i] == local[i+1] && !nextIsA)
		}
		if isTypeB && nextIsA {
			first = i
		}
		nextIsA = !isTypeB
	}
	return first
}

func reverseStrings(buf *[]byte, idx *[]int64) {
	var strs [][]byte
	start := 0
	for i, b := range *buf {
		if b == 0 {
			strs = append(strs, (*buf)[start:i+1])
			start = i + 1
		}
	}
	for l, r := 0, len(strs)-1; l < r; l, r = l+1, r-1 {
		strs[l], strs[r] = strs[r], strs[l]
	}
	for l, r := 0, len(*idx)-1; l < r; l, r = l+1, r-1 {
		(*idx)[l], (*idx)[r] = (*idx)[r], (*idx)[l]
	}
	var out []byte
	for _, s := range strs {
		out = append(out, s...)
	}
	*buf = out
}
