package comm

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/gob"
	"io"
	"net"

	"github.com/pkg/errors"
)

// tcpComm is the multi-process transport: PEs are separate OS
// processes, rank 0 a hub every other rank dials. Each round, every
// non-hub rank sends its contribution to rank 0 and blocks for the
// reply; rank 0 collects all contributions (including its own),
// computes the collective's result with the same pure ops.go helpers
// inprocComm uses, and replies to everyone. This is a star, not a
// mesh: simpler to reason about and sufficient for the process counts
// this module targets (the input text size N can be large, but the PE
// count P is expected to stay modest).
type tcpComm struct {
	rank, size int
	// hub-only
	peers []*frameConn // peers[r] is the connection to rank r, nil for r == rank
	// spoke-only
	hub *frameConn
}

type frameConn struct {
	conn net.Conn
	bw   *bufio.Writer
	enc  *gob.Encoder
	dec  *gob.Decoder
}

func newFrameConn(c net.Conn) *frameConn {
	bw := bufio.NewWriter(c)
	return &frameConn{conn: c, bw: bw, enc: gob.NewEncoder(bw), dec: gob.NewDecoder(bufio.NewReader(c))}
}

func (fc *frameConn) send(v any) error {
	if err := fc.enc.Encode(v); err != nil {
		return err
	}
	return fc.bw.Flush()
}

// envelope is the wire type for every hub<->spoke exchange. Payload
// carries whatever op-specific Go value the round needs (mirroring
// the `any` contribution of the in-process rendezvous). When a payload
// is split across several envelopes per comm.chunkSizes, More is set on
// every envelope but the last, so the receiver knows to keep reading.
type envelope struct {
	Op      string
	Payload []byte
	More    bool
}

// ListenAndServeHub starts rank 0's listener and blocks until `size-1`
// spokes have connected, returning a bound tcpComm for rank 0.
func ListenAndServeHub(ctx context.Context, addr string, size int) (Comm, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "comm: listen")
	}
	defer ln.Close()

	peers := make([]*frameConn, size)
	for i := 1; i < size; i++ {
		c, err := ln.Accept()
		if err != nil {
			return nil, errors.Wrap(err, "comm: accept spoke")
		}
		fc := newFrameConn(c)
		var hello int
		if err := fc.dec.Decode(&hello); err != nil {
			return nil, errors.Wrap(err, "comm: read spoke hello")
		}
		peers[hello] = fc
	}
	return &tcpComm{rank: 0, size: size, peers: peers}, nil
}

// DialSpoke connects rank `rank` (1 <= rank < size) to the hub at
// hubAddr and returns its bound tcpComm.
func DialSpoke(ctx context.Context, hubAddr string, rank, size int) (Comm, error) {
	c, err := net.Dial("tcp", hubAddr)
	if err != nil {
		return nil, errors.Wrap(err, "comm: dial hub")
	}
	fc := newFrameConn(c)
	if err := fc.send(rank); err != nil {
		return nil, errors.Wrap(err, "comm: send spoke hello")
	}
	return &tcpComm{rank: rank, size: size, hub: fc}, nil
}

func (c *tcpComm) Rank() int { return c.rank }
func (c *tcpComm) Size() int { return c.size }

// round performs one hub-and-spoke exchange: every PE sends mine,
// the hub computes replies via combine, and every PE (including the
// hub) gets back its reply. combine receives the full rank-ordered
// contribution set and returns one payload per rank.
func (c *tcpComm) round(op string, mine []byte, combine func(all [][]byte) [][]byte) ([]byte, error) {
	if c.rank != 0 {
		if err := sendChunked(c.hub, op, mine); err != nil {
			return nil, errors.Wrap(err, "comm: send to hub")
		}
		reply, err := recvChunked(c.hub)
		if err != nil {
			return nil, errors.Wrap(err, "comm: recv from hub")
		}
		return reply, nil
	}

	all := make([][]byte, c.size)
	all[0] = mine
	for r := 1; r < c.size; r++ {
		payload, err := recvChunked(c.peers[r])
		if err != nil {
			return nil, errors.Wrapf(err, "comm: recv from rank %d", r)
		}
		all[r] = payload
	}
	replies := combine(all)
	for r := 1; r < c.size; r++ {
		if err := sendChunked(c.peers[r], op, replies[r]); err != nil {
			return nil, errors.Wrapf(err, "comm: send to rank %d", r)
		}
	}
	return replies[0], nil
}

func sendChunked(fc *frameConn, op string, payload []byte) error {
	sizes := chunkSizes(len(payload))
	if len(sizes) == 0 {
		return fc.send(envelope{Op: op, Payload: nil, More: false})
	}
	offset := 0
	for i, n := range sizes {
		env := envelope{Op: op, Payload: payload[offset : offset+n], More: i < len(sizes)-1}
		if err := fc.send(env); err != nil {
			return err
		}
		offset += n
	}
	return nil
}

func recvChunked(fc *frameConn) ([]byte, error) {
	var out []byte
	for {
		var env envelope
		if err := fc.dec.Decode(&env); err != nil {
			return nil, err
		}
		out = append(out, env.Payload...)
		if !env.More {
			return out, nil
		}
	}
}

func int64sToBytes(x []int64) []byte {
	b := make([]byte, 8*len(x))
	for i, v := range x {
		binary.LittleEndian.PutUint64(b[i*8:], uint64(v))
	}
	return b
}

func bytesToInt64s(b []byte) []int64 {
	x := make([]int64, len(b)/8)
	for i := range x {
		x[i] = int64(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return x
}

func (c *tcpComm) Barrier(ctx context.Context) error {
	_, err := c.round("barrier", nil, func(all [][]byte) [][]byte {
		return make([][]byte, c.size)
	})
	return err
}

func (c *tcpComm) ExPrefixSum(ctx context.Context, x int64) (int64, error) {
	reply, err := c.round("exscan", int64sToBytes([]int64{x}), func(all [][]byte) [][]byte {
		scalars := make([]int64, c.size)
		for r, b := range all {
			scalars[r] = bytesToInt64s(b)[0]
		}
		ex := exPrefixSums(scalars)
		out := make([][]byte, c.size)
		for r, v := range ex {
			out[r] = int64sToBytes([]int64{v})
		}
		return out
	})
	if err != nil {
		return 0, err
	}
	return bytesToInt64s(reply)[0], nil
}

func (c *tcpComm) PrefixSum(ctx context.Context, x int64) (int64, error) {
	ex, err := c.ExPrefixSum(ctx, x)
	if err != nil {
		return 0, err
	}
	return ex + x, nil
}

func (c *tcpComm) reduceInt64(op string, x []int64, combine func([][]int64) []int64) ([]int64, error) {
	reply, err := c.round(op, int64sToBytes(x), func(all [][]byte) [][]byte {
		parsed := make([][]int64, c.size)
		for r, b := range all {
			parsed[r] = bytesToInt64s(b)
		}
		result := int64sToBytes(combine(parsed))
		out := make([][]byte, c.size)
		for r := range out {
			out[r] = result
		}
		return out
	})
	if err != nil {
		return nil, err
	}
	return bytesToInt64s(reply), nil
}

func (c *tcpComm) AllReduceSum(ctx context.Context, x []int64) ([]int64, error) {
	return c.reduceInt64("allreduce_sum", x, reduceSum)
}

func (c *tcpComm) AllReduceMax(ctx context.Context, x []int64) ([]int64, error) {
	return c.reduceInt64("allreduce_max", x, reduceMax)
}

func (c *tcpComm) AllReduceMin(ctx context.Context, x []int64) ([]int64, error) {
	return c.reduceInt64("allreduce_min", x, reduceMin)
}

func (c *tcpComm) AllReduceAnd(ctx context.Context, x []bool) ([]bool, error) {
	mine := make([]byte, len(x))
	for i, b := range x {
		if b {
			mine[i] = 1
		}
	}
	reply, err := c.round("allreduce_and", mine, func(all [][]byte) [][]byte {
		out := append([]byte(nil), all[0]...)
		for _, v := range all[1:] {
			for i := range out {
				if v[i] == 0 {
					out[i] = 0
				}
			}
		}
		result := out
		reps := make([][]byte, c.size)
		for r := range reps {
			reps[r] = result
		}
		return reps
	})
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(reply))
	for i, b := range reply {
		out[i] = b != 0
	}
	return out, nil
}

func (c *tcpComm) AllGather(ctx context.Context, x []byte) ([][]byte, error) {
	return c.allGatherLike("allgather", x)
}

func (c *tcpComm) AllGatherV(ctx context.Context, v []byte) ([][]byte, error) {
	return c.allGatherLike("allgatherv", v)
}

func (c *tcpComm) allGatherLike(op string, x []byte) ([][]byte, error) {
	reply, err := c.round(op, x, func(all [][]byte) [][]byte {
		flat := gobEncodeBytesSlice(all)
		out := make([][]byte, c.size)
		for r := range out {
			out[r] = flat
		}
		return out
	})
	if err != nil {
		return nil, err
	}
	return gobDecodeBytesSlice(reply), nil
}

// gobEncodeBytesSlice and its decoder exist so the hub can broadcast
// the assembled [][]byte table back to every spoke as one envelope
// payload.
func gobEncodeBytesSlice(v [][]byte) []byte {
	var buf bytesBuffer
	enc := gob.NewEncoder(&buf)
	_ = enc.Encode(v)
	return buf.b
}

func gobDecodeBytesSlice(b []byte) [][]byte {
	var out [][]byte
	dec := gob.NewDecoder(&bytesBuffer{b: b})
	_ = dec.Decode(&out)
	return out
}

type bytesBuffer struct {
	b   []byte
	off int
}

func (w *bytesBuffer) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

func (r *bytesBuffer) Read(p []byte) (int, error) {
	if r.off >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.off:])
	r.off += n
	return n, nil
}

func (c *tcpComm) AllToAll(ctx context.Context, send [][]byte) ([][]byte, error) {
	if len(send) != c.size {
		return nil, errors.Errorf("comm: all_to_all: send table has %d entries, want %d", len(send), c.size)
	}
	mine := gobEncodeBytesSlice(send)
	reply, err := c.round("alltoall", mine, func(all [][]byte) [][]byte {
		tables := make([][][]byte, c.size)
		for r, b := range all {
			tables[r] = gobDecodeBytesSlice(b)
		}
		out := make([][]byte, c.size)
		for dst := 0; dst < c.size; dst++ {
			perDst := make([][]byte, c.size)
			for src := 0; src < c.size; src++ {
				perDst[src] = tables[src][dst]
			}
			out[dst] = gobEncodeBytesSlice(perDst)
		}
		return out
	})
	if err != nil {
		return nil, err
	}
	return gobDecodeBytesSlice(reply), nil
}

func (c *tcpComm) ShiftLeft(ctx context.Context, x []byte) ([]byte, error) {
	return c.shift("shift_left", x, func(all [][]byte) [][]byte {
		out := make([][]byte, c.size)
		for r := range out {
			out[r] = all[(r+1)%c.size]
		}
		return out
	})
}

func (c *tcpComm) ShiftRight(ctx context.Context, x []byte) ([]byte, error) {
	return c.shift("shift_right", x, func(all [][]byte) [][]byte {
		out := make([][]byte, c.size)
		for r := range out {
			out[r] = all[(r-1+c.size)%c.size]
		}
		return out
	})
}

func (c *tcpComm) shift(op string, x []byte, combine func(all [][]byte) [][]byte) ([]byte, error) {
	return c.round(op, x, combine)
}

func (c *tcpComm) ScatterV(ctx context.Context, root int, data [][]byte) ([]byte, error) {
	var mine []byte
	if c.rank == root {
		mine = gobEncodeBytesSlice(data)
	}
	return c.round("scatterv", mine, func(all [][]byte) [][]byte {
		rootData := gobDecodeBytesSlice(all[root])
		out := make([][]byte, c.size)
		for r := range out {
			if r < len(rootData) {
				out[r] = rootData[r]
			}
		}
		return out
	})
}

func (c *tcpComm) GatherV(ctx context.Context, root int, data []byte) ([][]byte, error) {
	reply, err := c.round("gatherv", data, func(all [][]byte) [][]byte {
		flat := gobEncodeBytesSlice(all)
		out := make([][]byte, c.size)
		out[root] = flat
		return out
	})
	if err != nil {
		return nil, err
	}
	if c.rank != root {
		return nil, nil
	}
	return gobDecodeBytesSlice(reply), nil
}
