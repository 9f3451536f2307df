package record

import (
	"testing"

	"github.com/distsa/distsa/index"
	"github.com/stretchr/testify/assert"
)

func TestIREncodeDecode(t *testing.T) {
	r := IR{Index: index.From(7), Rank: index.From(99)}
	buf := make([]byte, IRSize)
	r.Encode(buf)
	assert.Equal(t, r, DecodeIR(buf))
}

func TestIRREncodeDecode(t *testing.T) {
	r := IRR{Index: index.From(1), Rank1: index.From(2), Rank2: index.From(3)}
	buf := make([]byte, IRRSize)
	r.Encode(buf)
	assert.Equal(t, r, DecodeIRR(buf))
}

func TestIRSEncodeDecode(t *testing.T) {
	tests := map[string]IRS{
		"none":   {Index: index.From(1), Rank: index.From(2), State: None},
		"unique": {Index: index.From(3), Rank: index.From(4), State: Unique},
	}
	for name, r := range tests {
		t.Run(name, func(t *testing.T) {
			buf := make([]byte, IRSSize)
			r.Encode(buf)
			assert.Equal(t, r, DecodeIRS(buf))
		})
	}
}

func TestIRRLessRank(t *testing.T) {
	a := IRR{Rank1: index.From(1), Rank2: index.From(5)}
	b := IRR{Rank1: index.From(1), Rank2: index.From(6)}
	c := IRR{Rank1: index.From(2), Rank2: index.From(0)}
	assert.True(t, a.LessRank(b))
	assert.False(t, b.LessRank(a))
	assert.True(t, b.LessRank(c))
}

func TestLessIndexDivIRR(t *testing.T) {
	// h=1 => mod 2: compares (index%2, index/2).
	a := IRR{Index: index.From(2)} // mod=0, div=1
	b := IRR{Index: index.From(1)} // mod=1, div=0
	c := IRR{Index: index.From(4)} // mod=0, div=2
	assert.True(t, LessIndexDivIRR(1, a, b))
	assert.False(t, LessIndexDivIRR(1, b, a))
	assert.True(t, LessIndexDivIRR(1, a, c))
}

func TestIRSLessIndexAndRank(t *testing.T) {
	a := IRS{Index: index.From(1), Rank: index.From(9)}
	b := IRS{Index: index.From(2), Rank: index.From(3)}
	assert.True(t, a.LessIndex(b))
	assert.False(t, a.LessRank(b))
	assert.True(t, b.LessRank(a))
}
