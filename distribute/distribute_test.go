package distribute

import (
	"bytes"
	"context"
	"testing"

	"github.com/distsa/distsa/comm"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"
)

func TestTextReassemblesAcrossPEs(t *testing.T) {
	tests := map[string]struct {
		text []byte
		pes  int
	}{
		"even split":        {text: []byte("abcdefgh"), pes: 2},
		"uneven remainder":  {text: []byte("abcdefghi"), pes: 4},
		"more PEs than text": {text: []byte("ab"), pes: 5},
		"single PE":         {text: []byte("hello world"), pes: 1},
		"empty text":        {text: []byte{}, pes: 3},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			comms := comm.NewInProcGroup(tc.pes)
			r := bytes.NewReader(tc.text)

			g, _ := errgroup.WithContext(context.Background())
			locals := make([][]byte, tc.pes)
			offsets := make([]int64, tc.pes)
			for _, c := range comms {
				c := c
				g.Go(func() error {
					buf, off, err := Text(context.Background(), c, r, int64(len(tc.text)))
					locals[c.Rank()] = buf
					offsets[c.Rank()] = int64(off.Uint64())
					return err
				})
			}
			assert.NoError(t, g.Wait())

			var reassembled []byte
			wantOffset := int64(0)
			for i, buf := range locals {
				assert.Equal(t, wantOffset, offsets[i])
				reassembled = append(reassembled, buf...)
				wantOffset += int64(len(buf))
			}
			assert.Equal(t, tc.text, reassembled)
		})
	}
}

func TestRandomReassemblesAndIsReproducible(t *testing.T) {
	const size = 97
	const pes = 4

	gen := func() []byte {
		comms := comm.NewInProcGroup(pes)
		g, _ := errgroup.WithContext(context.Background())
		locals := make([][]byte, pes)
		for _, c := range comms {
			c := c
			g.Go(func() error {
				buf, _ := Random(context.Background(), c, size, 12345)
				locals[c.Rank()] = buf
				return nil
			})
		}
		_ = g.Wait()
		var out []byte
		for _, l := range locals {
			out = append(out, l...)
		}
		return out
	}

	first := gen()
	second := gen()
	assert.Equal(t, first, second)
	assert.Len(t, first, size)
	for _, b := range first {
		assert.GreaterOrEqual(t, b, byte(1))
	}
}

func TestSliceBounds(t *testing.T) {
	tests := map[string]struct {
		rank, size int
		total      int64
		start, end int64
	}{
		"first of three":     {rank: 0, size: 3, total: 10, start: 0, end: 3},
		"middle of three":    {rank: 1, size: 3, total: 10, start: 3, end: 6},
		"last absorbs remainder": {rank: 2, size: 3, total: 10, start: 6, end: 10},
		"single PE":          {rank: 0, size: 1, total: 10, start: 0, end: 10},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			start, end := sliceBounds(tc.rank, tc.size, tc.total)
			assert.Equal(t, tc.start, start)
			assert.Equal(t, tc.end, end)
		})
	}
}
