package classify

import (
	"context"
	"sort"
	"testing"

	"github.com/distsa/distsa/comm"
	"github.com/distsa/distsa/container"
	"github.com/distsa/distsa/index"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"
)

// split divides text into pes contiguous, evenly-sized slices (last PE
// absorbing the remainder), mirroring distribute.Text's convention.
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

func classifyAll(t *testing.T, text []byte, pes int) ([]Result, []int64) {
	t.Helper()
	comms := comm.NewInProcGroup(pes)
	dists := split(text, pes)
	g, _ := errgroup.WithContext(context.Background())
	results := make([]Result, pes)
	for _, c := range comms {
		c := c
		g.Go(func() error {
			res, err := Classify(context.Background(), c, dists[c.Rank()])
			results[c.Rank()] = res
			return err
		})
	}
	assert.NoError(t, g.Wait())

	var positions []int64
	for _, r := range results {
		positions = append(positions, r.BStar.Index...)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })
	return results, positions
}

func TestClassifyBorderSumEqualsLength(t *testing.T) {
	tests := map[string]struct {
		text []byte
		pes  int
	}{
		"single PE":       {text: []byte("banana"), pes: 1},
		"two PEs":         {text: []byte("mississippi"), pes: 2},
		"three PEs":       {text: []byte("abracadabraabracadabra"), pes: 3},
		"all same byte":   {text: []byte("aaaaaaaaaa"), pes: 2},
		"strictly descending": {text: []byte{9, 8, 7, 6, 5, 4}, pes: 2},
		"strictly ascending":  {text: []byte{1, 2, 3, 4, 5, 6}, pes: 3},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			results, _ := classifyAll(t, tc.text, tc.pes)
			for _, r := range results {
				assert.Equal(t, int64(len(tc.text)), r.Borders.Sum())
			}
		})
	}
}

func TestClassifySplitInvariantBStarCount(t *testing.T) {
	text := []byte("mississippimississippimississippi")
	_, posP1 := classifyAll(t, text, 1)
	_, posP2 := classifyAll(t, text, 2)
	_, posP4 := classifyAll(t, text, 4)

	assert.Equal(t, posP1, posP2)
	assert.Equal(t, posP1, posP4)
}

func TestClassifyLastPositionIsAStarNotBStar(t *testing.T) {
	text := []byte("abcab")
	results, positions := classifyAll(t, text, 1)
	lastPos := int64(len(text) - 1)
	assert.NotContains(t, positions, lastPos)
	assert.Equal(t, int64(1), results[0].Borders.AStar[text[len(text)-1]][0])
}
