// Package index implements the packed 40-bit position/rank type used
// throughout the distributed suffix array builders. A dedicated value
// object keeps the packed representation explicit rather than relying
// on unaligned loads over a wider integer.
package index

// Size is the width in bytes of a packed index value.
const Size = 5

// Max is the largest representable value (2^40 - 1), the module's
// hard ceiling on N.
const Max = 1<<40 - 1

// I is an unsigned 40-bit index into the global text or suffix array.
// Arithmetic always widens through Uint64; the 5-byte array is never
// reinterpreted as a machine integer.
type I [Size]byte

// Zero is the index value 0.
var Zero I

// From constructs a packed index from a uint64, truncated to 40 bits.
func From(v uint64) I {
	var b I
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	return b
}

// Uint64 widens the packed index to a 64-bit accumulator.
func (x I) Uint64() uint64 {
	return uint64(x[0]) | uint64(x[1])<<8 | uint64(x[2])<<16 |
		uint64(x[3])<<24 | uint64(x[4])<<32
}

// Less reports whether x < y.
func (x I) Less(y I) bool { return x.Uint64() < y.Uint64() }

// Add returns x + delta, truncated to 40 bits.
func (x I) Add(delta int64) I {
	return From(uint64(int64(x.Uint64()) + delta))
}

// PutLittleEndian writes x as 5 little-endian bytes into dst, which
// must have length >= Size.
func PutLittleEndian(dst []byte, x I) {
	copy(dst, x[:])
}

// LittleEndian reads a packed index from the first Size bytes of src.
func LittleEndian(src []byte) I {
	var x I
	copy(x[:], src[:Size])
	return x
}

// Encode writes a slice of indices as concatenated little-endian
// records, the on-disk SA output format written by cmd/is and cmd/pdd.
func Encode(values []I) []byte {
	out := make([]byte, len(values)*Size)
	for i, v := range values {
		copy(out[i*Size:], v[:])
	}
	return out
}

// Decode parses concatenated little-endian index records.
func Decode(buf []byte) []I {
	n := len(buf) / Size
	out := make([]I, n)
	for i := 0; i < n; i++ {
		copy(out[i][:], buf[i*Size:(i+1)*Size])
	}
	return out
}
