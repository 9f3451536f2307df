package induce

import (
	"bytes"
	"context"
	"sort"
	"testing"

	"github.com/distsa/distsa/classify"
	"github.com/distsa/distsa/comm"
	"github.com/distsa/distsa/container"
	"github.com/distsa/distsa/index"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"
)

func split(text []byte, pes int) []container.DistributedString {
	total := int64(len(text))
	sliceSize := total / int64(pes)
	out := make([]container.DistributedString, pes)
	for r := 0; r < pes; r++ {
		start := int64(r) * sliceSize
		end := start + sliceSize
		if r == pes-1 {
			end = total
		}
		out[r] = container.DistributedString{
			Local:  append([]byte(nil), text[start:end]...),
			Offset: index.From(uint64(start)),
			Total:  index.From(uint64(total)),
		}
	}
	return out
}

func referenceSA(text []byte) []int64 {
	n := len(text)
	sa := make([]int64, n)
	for i := range sa {
		sa[i] = int64(i)
	}
	sort.Slice(sa, func(i, j int) bool {
		return bytes.Compare(text[sa[i]:], text[sa[j]:]) < 0
	})
	return sa
}

func buildDistributed(t *testing.T, text []byte, pes int) []int64 {
	t.Helper()
	comms := comm.NewInProcGroup(pes)
	dists := split(text, pes)

	g, _ := errgroup.WithContext(context.Background())
	results := make([][]index.I, pes)
	for _, c := range comms {
		c := c
		g.Go(func() error {
			sa, err := Build(context.Background(), c, dists[c.Rank()])
			results[c.Rank()] = sa
			return err
		})
	}
	assert.NoError(t, g.Wait())

	var out []int64
	for _, r := range results {
		for _, v := range r {
			out = append(out, int64(v.Uint64()))
		}
	}
	return out
}

func TestBuildMatchesReferenceSA(t *testing.T) {
	tests := map[string]struct {
		text []byte
		pes  int
	}{
		"single PE":        {text: []byte("banana"), pes: 1},
		"mississippi":      {text: []byte("mississippi"), pes: 1},
		"mississippi/2PE":  {text: []byte("mississippi"), pes: 2},
		"mississippi/4PE":  {text: []byte("mississippi"), pes: 4},
		"repeated pattern": {text: []byte("abababab"), pes: 2},
		"all same byte":    {text: []byte("aaaaaaaaaaaa"), pes: 3},
		"distinct bytes":   {text: []byte("dcba"), pes: 2},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := buildDistributed(t, tc.text, tc.pes)
			want := referenceSA(tc.text)
			assert.ElementsMatch(t, want, got)
			for i := 1; i < len(got); i++ {
				assert.True(t, bytes.Compare(tc.text[got[i-1]:], tc.text[got[i]:]) < 0)
			}
		})
	}
}

func TestBuildLayoutConcatenationOrder(t *testing.T) {
	ba := &classify.BorderArray{}
	ba.A['b']['a'] = 2
	ba.AStar['b']['a'] = 1
	ba.A['b']['b'] = 3
	ba.B['b']['b'] = 1
	ba.BStar['b']['c'] = 2
	ba.B['b']['c'] = 1

	l := buildLayout(ba)

	assert.Equal(t, int64(0), l.startA['b']['a'])
	assert.Equal(t, int64(2), l.startAStar['b']['a'])
	assert.Equal(t, int64(3), l.startA['b']['b'])
	assert.Equal(t, int64(6), l.startB['b']['b'])
	assert.Equal(t, int64(7), l.startBStar['b']['c'])
	assert.Equal(t, int64(9), l.startB['b']['c'])
	assert.Equal(t, int64(10), l.total)
}

func TestBucketFirstBStarRank(t *testing.T) {
	l := &layout{}
	l.sizeBStar['a']['b'] = 3
	l.sizeBStar['a']['c'] = 2
	l.sizeBStar['b']['c'] = 5
	e := &engine{l: l}

	assert.Equal(t, int64(0), e.bucketFirstBStarRank('a', 'b'))
	assert.Equal(t, int64(3), e.bucketFirstBStarRank('a', 'c'))
	assert.Equal(t, int64(5), e.bucketFirstBStarRank('b', 'c'))
}
