package container

import "github.com/distsa/distsa/index"

// DistributedString is this PE's contiguous slice of the global text
// T, plus the global offset at which the slice begins. Concatenating
// every PE's Local in rank order reproduces T exactly.
type DistributedString struct {
	Local  []byte
	Offset index.I
	Total  index.I
}

// At returns the global position of the i-th local byte.
func (d DistributedString) At(i int) index.I {
	return d.Offset.Add(int64(i))
}
