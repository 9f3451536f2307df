package localsa

import (
	"math/rand"
	"slices"
	"sort"
	"testing"

	"github.com/distsa/distsa/index"
	"github.com/stretchr/testify/assert"
)

func genRandText(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(rand.Intn(255) + 1)
	}
	return b
}

func bruteForceSA(text []byte) []index.I {
	sa := make([]int, len(text))
	for i := range sa {
		sa[i] = i
	}
	sort.Slice(sa, func(i, j int) bool {
		return slices.Compare(text[sa[i]:], text[sa[j]:]) < 0
	})
	out := make([]index.I, len(sa))
	for i, v := range sa {
		out[i] = index.From(uint64(v))
	}
	return out
}

func TestBuild(t *testing.T) {
	tests := map[string]struct {
		input []byte
	}{
		"empty":            {input: []byte{}},
		"single character":  {input: []byte{100}},
		"same characters":   {input: []byte("aaaaaaaaaaaaaaaaaaaaa")},
		"1 LMS":             {input: []byte("aabab")},
		"2 LMS":             {input: []byte("aababab")},
		"banana":            {input: []byte("banana")},
		"repeated pattern":  {input: []byte{1, 2, 1, 2, 1, 2, 1, 2}},
		"reverse sorted":    {input: []byte{5, 4, 3, 2, 1}},
		"abracadabra":       {input: []byte("abracadabra")},
		"min/max edges":     {input: []byte{1, 255}},
		"long random":       {input: genRandText(2000)},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, bruteForceSA(tc.input), Build(tc.input))
		})
	}
}

func BenchmarkBuild(b *testing.B) {
	text := genRandText(20000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Build(text)
	}
}
