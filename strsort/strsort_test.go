package strsort

import (
	"bytes"
	"context"
	"sort"
	"testing"

	"github.com/distsa/distsa/comm"
	"github.com/distsa/distsa/container"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"
)

func buildSet(strs ...string) container.StringSet {
	var buf []byte
	for _, s := range strs {
		buf = append(buf, []byte(s)...)
		buf = append(buf, 0)
	}
	return container.NewStringSet(buf)
}

func allStrings(s container.StringSet) []string {
	out := make([]string, s.Len())
	for i := 0; i < s.Len(); i++ {
		b := s.Bytes(i)
		out[i] = string(b[:len(b)-1])
	}
	return out
}

func runPEs(t *testing.T, comms []comm.Comm, body func(c comm.Comm) (container.StringSet, []int64, error)) ([]container.StringSet, [][]int64) {
	t.Helper()
	g, _ := errgroup.WithContext(context.Background())
	sets := make([]container.StringSet, len(comms))
	idxs := make([][]int64, len(comms))
	for _, c := range comms {
		c := c
		g.Go(func() error {
			s, idx, err := body(c)
			sets[c.Rank()] = s
			idxs[c.Rank()] = idx
			return err
		})
	}
	assert.NoError(t, g.Wait())
	return sets, idxs
}

func TestSortOrdersAcrossPEs(t *testing.T) {
	tests := map[string]struct {
		pes  int
		sets []container.StringSet
	}{
		"single PE": {
			pes:  1,
			sets: []container.StringSet{buildSet("banana", "apple", "cherry")},
		},
		"two PEs": {
			pes:  2,
			sets: []container.StringSet{buildSet("delta", "bravo"), buildSet("alpha", "charlie")},
		},
		"empty PE": {
			pes:  3,
			sets: []container.StringSet{buildSet("z", "a"), buildSet(), buildSet("m")},
		},
		"all empty": {
			pes:  2,
			sets: []container.StringSet{buildSet(), buildSet()},
		},
		"repeated strings": {
			pes:  2,
			sets: []container.StringSet{buildSet("same", "same"), buildSet("same")},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			comms := comm.NewInProcGroup(tc.pes)
			var want []string
			for _, s := range tc.sets {
				want = append(want, allStrings(s)...)
			}
			sort.Strings(want)

			sets, _ := runPEs(t, comms, func(c comm.Comm) (container.StringSet, []int64, error) {
				out, err := Sort(context.Background(), c, tc.sets[c.Rank()])
				return out, nil, err
			})

			var got []string
			for _, s := range sets {
				got = append(got, allStrings(s)...)
			}
			assert.Equal(t, len(want), len(got))
			sort.Strings(got)
			assert.Equal(t, want, got)

			for _, s := range sets {
				strs := allStrings(s)
				assert.True(t, sort.StringsAreSorted(strs))
			}
		})
	}
}

func TestSortIndexedCarriesIndex(t *testing.T) {
	comms := comm.NewInProcGroup(2)
	local := []container.IndexedStringSet{
		container.NewIndexedStringSet(append(append([]byte("bb"), 0), append([]byte("aa"), 0)...), []int64{10, 11}),
		container.NewIndexedStringSet(append([]byte("cc"), 0), []int64{20}),
	}

	g, _ := errgroup.WithContext(context.Background())
	results := make([]container.IndexedStringSet, 2)
	for _, c := range comms {
		c := c
		g.Go(func() error {
			out, err := SortIndexed(context.Background(), c, local[c.Rank()])
			results[c.Rank()] = out
			return err
		})
	}
	assert.NoError(t, g.Wait())

	pairs := map[string]int64{}
	for _, r := range results {
		strs := allStrings(r.StringSet)
		assert.Equal(t, len(strs), len(r.Index))
		for i, s := range strs {
			pairs[s] = r.Index[i]
		}
	}
	assert.Equal(t, map[string]int64{"aa": 11, "bb": 10, "cc": 20}, pairs)

	for _, r := range results {
		assert.True(t, sort.StringsAreSorted(allStrings(r.StringSet)))
	}
}

func TestEncodeDecodeStringsRoundTrip(t *testing.T) {
	recs := []stringRec{{bytes: []byte("foo\x00")}, {bytes: []byte("bar\x00")}}
	buf := encodeStrings(recs)
	decoded := decodeStrings(buf)
	assert.Equal(t, [][]byte{[]byte("foo\x00"), []byte("bar\x00")}, decoded)
}

func TestEncodeDecodeIndicesRoundTrip(t *testing.T) {
	recs := []stringRec{{idx: 7}, {idx: -3}, {idx: 1 << 40}}
	buf := encodeIndices(recs)
	assert.Equal(t, []int64{7, -3, 1 << 40}, decodeIndices(buf))
}

func TestPartition(t *testing.T) {
	less := func(a, b stringRec) bool { return bytes.Compare(a.bytes, b.bytes) < 0 }
	recs := []stringRec{{bytes: []byte("a")}, {bytes: []byte("b")}, {bytes: []byte("c")}, {bytes: []byte("d")}}
	splitters := []stringRec{{bytes: []byte("b")}}
	parts := partition(recs, splitters, less)
	assert.Len(t, parts, 2)
	assert.Equal(t, []stringRec{{bytes: []byte("a")}, {bytes: []byte("b")}}, parts[0])
	assert.Equal(t, []stringRec{{bytes: []byte("c")}, {bytes: []byte("d")}}, parts[1])
}
