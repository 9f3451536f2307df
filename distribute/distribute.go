// Package distribute builds this PE's slice of the global text, either
// by reading a byte range directly out of a file (so no PE ever reads
// more than its own share) or by generating one reproducibly from a
// seed for a given PE count.
package distribute

import (
	"context"
	"io"
	"math/rand/v2"

	"github.com/distsa/distsa/comm"
	"github.com/distsa/distsa/index"
	"github.com/pkg/errors"
)

// sliceBounds computes PE rank's [start, end) byte range of a
// totalSize-byte object evenly sliced over size PEs, last PE
// absorbing the remainder.
func sliceBounds(rank, size int, totalSize int64) (start, end int64) {
	sliceSize := totalSize / int64(size)
	start = int64(rank) * sliceSize
	end = start + sliceSize
	if rank == size-1 {
		end = totalSize
	}
	return
}

// Text reads this PE's evenly-sliced byte range directly out of r at
// its computed offset, returning the local slice and its global
// starting offset. Every PE must call this together with the same
// totalSize.
func Text(ctx context.Context, c comm.Comm, r io.ReaderAt, totalSize int64) ([]byte, index.I, error) {
	rank, size := c.Rank(), c.Size()
	start, end := sliceBounds(rank, size, totalSize)
	buf := make([]byte, end-start)
	if len(buf) > 0 {
		if _, err := r.ReadAt(buf, start); err != nil && err != io.EOF {
			return nil, index.Zero, errors.Wrapf(err, "distribute: reading range [%d,%d)", start, end)
		}
	}
	return buf, index.From(uint64(start)), nil
}

// Random generates this PE's evenly-sliced range of a reproducible
// pseudo-random text of the given total size. Every byte is drawn from
// [1, 255] (0 is reserved as the implicit terminator). The generator
// is seeded from (seed, rank), so the text is reproducible for a fixed
// seed and PE count; the same seed with a different PE count produces
// a different text.
func Random(ctx context.Context, c comm.Comm, size int64, seed uint64) ([]byte, index.I) {
	rank, world := c.Rank(), c.Size()
	start, end := sliceBounds(rank, world, size)
	n := end - start
	if n <= 0 {
		return nil, index.From(uint64(start))
	}
	src := rand.NewPCG(seed, uint64(rank))
	gen := rand.New(src)
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(1 + gen.IntN(255))
	}
	return buf, index.From(uint64(start))
}
