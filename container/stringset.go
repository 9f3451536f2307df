// Package container implements the distributed containers of the
// suffix array builders: flat byte-buffer string sets, a distributed
// text slice, and the one-sided requestable array used to read remote
// positions of the text.
//
// StringSet stores offsets into its buffer rather than raw pointers:
// growing or replacing the buffer never requires rebasing anything,
// because nothing but an integer index into it is ever held.
package container

// StringSet holds a flat, null-terminated concatenation of byte
// strings plus the start offset of each string in that buffer.
type StringSet struct {
	buf    []byte
	starts []int32
}

// NewStringSet scans buf for 0 terminators and builds the start
// offset table. buf is retained, not copied.
func NewStringSet(buf []byte) StringSet {
	var starts []int32
	start := int32(0)
	for i, b := range buf {
		if b == 0 {
			starts = append(starts, start)
			start = int32(i) + 1
		}
	}
	return StringSet{buf: buf, starts: starts}
}

// Len returns the number of strings in the set.
func (s StringSet) Len() int { return len(s.starts) }

// Bytes returns the i-th string's bytes, including its trailing 0.
func (s StringSet) Bytes(i int) []byte {
	start := s.starts[i]
	end := start
	for s.buf[end] != 0 {
		end++
	}
	return s.buf[start : end+1]
}

// Buffer returns the underlying flat byte buffer.
func (s StringSet) Buffer() []byte { return s.buf }

// Starts returns the start-offset table. Callers must not retain a
// mutable reference across a call that replaces the set's buffer.
func (s StringSet) Starts() []int32 { return s.starts }

// WithBuffer returns a StringSet over a new buffer, re-scanning for
// terminators. Used after a buffer is rebuilt (e.g. post sample-sort
// merge) so no stale offsets from the old buffer can leak through.
func WithBuffer(buf []byte) StringSet {
	return NewStringSet(buf)
}

// IndexedStringSet pairs a StringSet with one global index per string,
// used to carry a B*-substring's originating text position through
// the string sample-sort.
type IndexedStringSet struct {
	StringSet
	Index []int64
}

// NewIndexedStringSet builds an IndexedStringSet from a buffer and a
// parallel index slice; len(index) must equal the number of strings
// the buffer scans to.
func NewIndexedStringSet(buf []byte, index []int64) IndexedStringSet {
	ss := NewStringSet(buf)
	return IndexedStringSet{StringSet: ss, Index: index}
}
