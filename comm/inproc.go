package comm

import (
	"context"

	"github.com/pkg/errors"
)

// inprocComm is the default Comm: P PEs as goroutines in one process,
// exchanging through a shared world instead of a network.
type inprocComm struct {
	rank, size int
	w          *world
}

// NewInProcGroup builds size bound Comm handles, one per rank, sharing
// one rendezvous world. Callers launch one goroutine per handle (see
// internal/cli for the orchestration this module expects).
func NewInProcGroup(size int) []Comm {
	w := newWorld(size)
	out := make([]Comm, size)
	for r := 0; r < size; r++ {
		out[r] = &inprocComm{rank: r, size: size, w: w}
	}
	return out
}

func (c *inprocComm) Rank() int { return c.rank }
func (c *inprocComm) Size() int { return c.size }

func (c *inprocComm) Barrier(ctx context.Context) error {
	_, err := c.w.rendezvous(ctx, c.rank, struct{}{})
	return errors.Wrap(err, "comm: barrier")
}

func (c *inprocComm) ExPrefixSum(ctx context.Context, x int64) (int64, error) {
	all, err := c.w.rendezvous(ctx, c.rank, x)
	if err != nil {
		return 0, errors.Wrap(err, "comm: ex_prefix_sum")
	}
	scalars := make([]int64, c.size)
	for r := range scalars {
		scalars[r] = all[r].(int64)
	}
	return exPrefixSums(scalars)[c.rank], nil
}

func (c *inprocComm) PrefixSum(ctx context.Context, x int64) (int64, error) {
	ex, err := c.ExPrefixSum(ctx, x)
	if err != nil {
		return 0, err
	}
	return ex + x, nil
}

func (c *inprocComm) allReduceInt64(ctx context.Context, x []int64, combine func([][]int64) []int64) ([]int64, error) {
	cp := append([]int64(nil), x...)
	raw, err := c.w.rendezvous(ctx, c.rank, cp)
	if err != nil {
		return nil, errors.Wrap(err, "comm: all_reduce")
	}
	all := make([][]int64, c.size)
	for r := range all {
		all[r] = raw[r].([]int64)
	}
	return combine(all), nil
}

func (c *inprocComm) AllReduceSum(ctx context.Context, x []int64) ([]int64, error) {
	return c.allReduceInt64(ctx, x, reduceSum)
}

func (c *inprocComm) AllReduceMax(ctx context.Context, x []int64) ([]int64, error) {
	return c.allReduceInt64(ctx, x, reduceMax)
}

func (c *inprocComm) AllReduceMin(ctx context.Context, x []int64) ([]int64, error) {
	return c.allReduceInt64(ctx, x, reduceMin)
}

func (c *inprocComm) AllReduceAnd(ctx context.Context, x []bool) ([]bool, error) {
	cp := append([]bool(nil), x...)
	raw, err := c.w.rendezvous(ctx, c.rank, cp)
	if err != nil {
		return nil, errors.Wrap(err, "comm: all_reduce_and")
	}
	all := make([][]bool, c.size)
	for r := range all {
		all[r] = raw[r].([]bool)
	}
	return reduceAnd(all), nil
}

func (c *inprocComm) AllGather(ctx context.Context, x []byte) ([][]byte, error) {
	return c.allGather(ctx, x)
}

func (c *inprocComm) AllGatherV(ctx context.Context, v []byte) ([][]byte, error) {
	// The variable-size path and the fixed-size path share one
	// rendezvous mechanism in-process; dispatchBySize is still
	// consulted so the size decision lives in exactly one place, as
	// it must for the real (chunked) transports.
	_ = dispatchBySize(len(v))
	return c.allGather(ctx, v)
}

func (c *inprocComm) allGather(ctx context.Context, x []byte) ([][]byte, error) {
	cp := append([]byte(nil), x...)
	all, err := c.w.rendezvous(ctx, c.rank, cp)
	if err != nil {
		return nil, errors.Wrap(err, "comm: all_gather")
	}
	out := make([][]byte, c.size)
	for r := range out {
		out[r] = all[r].([]byte)
	}
	return out, nil
}

func (c *inprocComm) AllToAll(ctx context.Context, send [][]byte) ([][]byte, error) {
	if len(send) != c.size {
		return nil, errors.Errorf("comm: all_to_all: send table has %d entries, want %d", len(send), c.size)
	}
	total := 0
	for _, b := range send {
		total += len(b)
	}
	_ = dispatchBySize(total)

	cp := make([][]byte, c.size)
	for i, b := range send {
		cp[i] = append([]byte(nil), b...)
	}
	all, err := c.w.rendezvous(ctx, c.rank, cp)
	if err != nil {
		return nil, errors.Wrap(err, "comm: all_to_all")
	}
	recv := make([][]byte, c.size)
	for src := 0; src < c.size; src++ {
		table := all[src].([][]byte)
		recv[src] = table[c.rank]
	}
	return recv, nil
}

func (c *inprocComm) ShiftLeft(ctx context.Context, x []byte) ([]byte, error) {
	cp := append([]byte(nil), x...)
	all, err := c.w.rendezvous(ctx, c.rank, cp)
	if err != nil {
		return nil, errors.Wrap(err, "comm: shift_left")
	}
	right := (c.rank + 1) % c.size
	return all[right].([]byte), nil
}

func (c *inprocComm) ShiftRight(ctx context.Context, x []byte) ([]byte, error) {
	cp := append([]byte(nil), x...)
	all, err := c.w.rendezvous(ctx, c.rank, cp)
	if err != nil {
		return nil, errors.Wrap(err, "comm: shift_right")
	}
	left := (c.rank - 1 + c.size) % c.size
	return all[left].([]byte), nil
}

func (c *inprocComm) ScatterV(ctx context.Context, root int, data [][]byte) ([]byte, error) {
	var mine [][]byte
	if c.rank == root {
		mine = data
	}
	all, err := c.w.rendezvous(ctx, c.rank, mine)
	if err != nil {
		return nil, errors.Wrap(err, "comm: scatterv")
	}
	rootData := all[root].([][]byte)
	if c.rank >= len(rootData) {
		return nil, nil
	}
	return rootData[c.rank], nil
}

func (c *inprocComm) GatherV(ctx context.Context, root int, data []byte) ([][]byte, error) {
	cp := append([]byte(nil), data...)
	total := len(cp)
	_ = dispatchBySize(total)
	all, err := c.w.rendezvous(ctx, c.rank, cp)
	if err != nil {
		return nil, errors.Wrap(err, "comm: gatherv")
	}
	if c.rank != root {
		return nil, nil
	}
	out := make([][]byte, c.size)
	for r := range out {
		out[r] = all[r].([]byte)
	}
	return out, nil
}
