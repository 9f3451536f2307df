package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromUint64RoundTrip(t *testing.T) {
	tests := map[string]struct {
		v uint64
	}{
		"zero":       {v: 0},
		"one":        {v: 1},
		"byte edge":  {v: 0xff},
		"word edge":  {v: 0xffff},
		"max":        {v: Max},
		"mid":        {v: 0x1234567890},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			x := From(tc.v)
			assert.Equal(t, tc.v, x.Uint64())
		})
	}
}

func TestFromTruncates(t *testing.T) {
	x := From(1 << 40)
	assert.Equal(t, uint64(0), x.Uint64())
}

func TestLess(t *testing.T) {
	assert.True(t, From(1).Less(From(2)))
	assert.False(t, From(2).Less(From(1)))
	assert.False(t, From(2).Less(From(2)))
}

func TestAdd(t *testing.T) {
	assert.Equal(t, From(5), From(2).Add(3))
	assert.Equal(t, From(0), From(5).Add(-5))
}

func TestLittleEndianRoundTrip(t *testing.T) {
	x := From(0x1122334455 & Max)
	buf := make([]byte, Size)
	PutLittleEndian(buf, x)
	assert.Equal(t, x, LittleEndian(buf))
}

func TestEncodeDecode(t *testing.T) {
	values := []I{From(0), From(1), From(Max), From(42)}
	buf := Encode(values)
	assert.Len(t, buf, len(values)*Size)
	assert.Equal(t, values, Decode(buf))
}

func TestDecodeEmpty(t *testing.T) {
	assert.Equal(t, []I{}, Decode(nil))
}
