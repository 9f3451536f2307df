// Package comm implements the collective layer every distributed
// component suspends on: point-to-point and collective exchanges
// between PEs, dispatched through one entry point per primitive so
// callers never branch on message size themselves.
//
// Comm is deliberately narrow: a handle already bound to a rank and a
// size. Components never construct one; the run's orchestrator does,
// once, and passes it down.
package comm

import "context"

// Comm is the communicator every distributed component takes as its
// first real argument. All methods are collective: every PE in the
// group must call the same method, in the same order, with compatible
// argument shapes, or behaviour is undefined (this package does not
// defend against it beyond the count-agreement assertions noted in
// doc.go).
type Comm interface {
	Rank() int
	Size() int

	// Barrier blocks until every PE has called Barrier.
	Barrier(ctx context.Context) error

	// ExPrefixSum returns the exclusive prefix sum of x across ranks
	// (0 on rank 0).
	ExPrefixSum(ctx context.Context, x int64) (int64, error)
	// PrefixSum returns the inclusive prefix sum of x across ranks.
	PrefixSum(ctx context.Context, x int64) (int64, error)

	// AllReduceSum sums x elementwise across all ranks.
	AllReduceSum(ctx context.Context, x []int64) ([]int64, error)
	// AllReduceMax takes the elementwise maximum across all ranks.
	AllReduceMax(ctx context.Context, x []int64) ([]int64, error)
	// AllReduceMin takes the elementwise minimum across all ranks.
	AllReduceMin(ctx context.Context, x []int64) ([]int64, error)
	// AllReduceAnd takes the elementwise logical AND across all ranks.
	AllReduceAnd(ctx context.Context, x []bool) ([]bool, error)

	// AllGather exchanges one equal-size payload per rank and returns
	// all P payloads, ordered by rank.
	AllGather(ctx context.Context, x []byte) ([][]byte, error)
	// AllGatherV exchanges one variable-size payload per rank.
	AllGatherV(ctx context.Context, v []byte) ([][]byte, error)

	// AllToAll exchanges variable-size payloads: send[target] is what
	// this PE sends to target; the returned slice holds what this PE
	// received from each source, ordered by source rank.
	AllToAll(ctx context.Context, send [][]byte) ([][]byte, error)

	// ShiftLeft sends x to this PE's left neighbour (rank-1, wrapping
	// rank 0 to size-1) and returns what was received from the right
	// neighbour (rank+1, wrapping).
	ShiftLeft(ctx context.Context, x []byte) ([]byte, error)
	// ShiftRight is the mirror exchange in the other direction.
	ShiftRight(ctx context.Context, x []byte) ([]byte, error)

	// ScatterV is root-driven: only the root's data argument is used,
	// sliced into data[r] for each rank r; every rank gets its slice
	// back.
	ScatterV(ctx context.Context, root int, data [][]byte) ([]byte, error)
	// GatherV is root-driven: every rank contributes data; only the
	// root's return value is meaningful (non-root ranks get nil).
	GatherV(ctx context.Context, root int, data []byte) ([][]byte, error)
}
