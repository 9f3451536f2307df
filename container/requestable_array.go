package container

import (
	"context"
	"encoding/binary"
	"sort"

	"github.com/distsa/distsa/comm"
	"github.com/pkg/errors"
)

// RequestableArray is a read-only, randomly-indexable view over a
// global array sliced (roughly) evenly across every PE. It supports
// exactly one operation, GatherRemote, serviced by a pair of
// all-to-all exchanges: no remote mutation is offered.
type RequestableArray[T any] struct {
	c       comm.Comm
	local   []T
	offsets []int64 // offsets[r] = global start of rank r's slice; len == Size()+1
	encode  func(T) []byte
	decode  func([]byte) T
}

// NewRequestableArray builds a requestable array from this PE's local
// slice. It performs one AllGather to learn every PE's slice length,
// so it is itself a collective call every PE must make together.
func NewRequestableArray[T any](ctx context.Context, c comm.Comm, local []T, encode func(T) []byte, decode func([]byte) T) (*RequestableArray[T], error) {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(local)))
	lens, err := c.AllGather(ctx, lenBuf[:])
	if err != nil {
		return nil, errors.Wrap(err, "container: requestable array setup")
	}
	offsets := make([]int64, len(lens)+1)
	for r, b := range lens {
		offsets[r+1] = offsets[r] + int64(binary.LittleEndian.Uint64(b))
	}
	return &RequestableArray[T]{c: c, local: local, offsets: offsets, encode: encode, decode: decode}, nil
}

// ownerOf returns the rank owning global position pos.
func (ra *RequestableArray[T]) ownerOf(pos int64) int {
	// offsets is sorted ascending; find the last rank whose start <= pos.
	r := sort.Search(len(ra.offsets), func(i int) bool { return ra.offsets[i] > pos }) - 1
	if r < 0 {
		r = 0
	}
	if r >= ra.c.Size() {
		r = ra.c.Size() - 1
	}
	return r
}

// GatherRemote returns the value stored at each requested global
// position, in the caller's original request order. Collective: every
// PE holding a slice of the array must call it together, though the
// position lists may differ (and may be empty) per PE.
func (ra *RequestableArray[T]) GatherRemote(ctx context.Context, positions []int64) ([]T, error) {
	size := ra.c.Size()

	// Step 1: classify requests by target rank, remembering where each
	// landed so results can be reassembled in request order.
	byTarget := make([][]int64, size)
	originalSlot := make([][]int, size)
	for i, pos := range positions {
		r := ra.ownerOf(pos)
		byTarget[r] = append(byTarget[r], pos-ra.offsets[r])
		originalSlot[r] = append(originalSlot[r], i)
	}

	// Step 2: all-to-all the normalised local positions.
	send := make([][]byte, size)
	for r, localPos := range byTarget {
		b := make([]byte, 8*len(localPos))
		for i, p := range localPos {
			binary.LittleEndian.PutUint64(b[i*8:], uint64(p))
		}
		send[r] = b
	}
	recvPositions, err := ra.c.AllToAll(ctx, send)
	if err != nil {
		return nil, errors.Wrap(err, "container: requestable array request exchange")
	}

	// Step 3: service incoming requests from the local array.
	replySend := make([][]byte, size)
	for src, buf := range recvPositions {
		n := len(buf) / 8
		out := make([]byte, 0, n*elemHint(ra))
		for i := 0; i < n; i++ {
			p := int64(binary.LittleEndian.Uint64(buf[i*8:]))
			out = append(out, ra.encode(ra.local[p])...)
		}
		replySend[src] = out
	}
	recvValues, err := ra.c.AllToAll(ctx, replySend)
	if err != nil {
		return nil, errors.Wrap(err, "container: requestable array value exchange")
	}

	// Step 4: reassemble in the caller's original order.
	out := make([]T, len(positions))
	for r := 0; r < size; r++ {
		buf := recvValues[r]
		slots := originalSlot[r]
		if len(slots) == 0 {
			continue
		}
		elemSize := len(buf) / len(slots)
		for i, slot := range slots {
			out[slot] = ra.decode(buf[i*elemSize : (i+1)*elemSize])
		}
	}
	return out, nil
}

// elemHint sizes the reply buffer; exact size doesn't matter for
// correctness (append grows as needed), only for fewer reallocations.
func elemHint[T any](ra *RequestableArray[T]) int {
	if len(ra.local) == 0 {
		return 1
	}
	return len(ra.encode(ra.local[0]))
}

// NewByteRequestableArray is the concrete instantiation induction
// uses to read remote bytes of T.
func NewByteRequestableArray(ctx context.Context, c comm.Comm, local []byte) (*RequestableArray[byte], error) {
	return NewRequestableArray(ctx, c, local,
		func(b byte) []byte { return []byte{b} },
		func(b []byte) byte { return b[0] },
	)
}
