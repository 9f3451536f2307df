package sortx

// RadixLeaf builds a LocalSorter for fixed-width packed records whose
// sort key is comparable byte-by-byte (most significant byte first),
// by running one LSD counting-sort pass per key byte. This is the
// teacher's sais.go frequency/bucketStart/bucketEnd counting-sort
// generalized from "one byte of text" to "one byte of a fixed-width
// packed record key" (see DESIGN.md): instead of bucketing suffixes by
// their next text character, it buckets records by one byte of their
// encoded key, least-significant byte first, and repeats for every key
// byte, which reproduces the same ascending order a byte-by-byte
// comparator would for records whose comparator IS exactly
// lexicographic order over those key bytes.
//
// keyBytes returns the fixed-width big-endian key bytes used for
// comparison (most significant first); LSD radix sort processes them
// from the last byte to the first so the final pass (most significant
// byte) dominates the final order.
func RadixLeaf[T any](keyBytes func(T) []byte, keyLen int) LocalSorter[T] {
	return func(x []T, _ func(a, b T) bool) {
		if len(x) < 2 {
			return
		}
		src := x
		dst := make([]T, len(x))
		var freq [256]int32
		var bucket [256]int32
		for byteIdx := keyLen - 1; byteIdx >= 0; byteIdx-- {
			for i := range freq {
				freq[i] = 0
			}
			for _, rec := range src {
				freq[keyBytes(rec)[byteIdx]]++
			}
			var offset int32
			for i, n := range freq {
				bucket[i] = offset
				offset += n
			}
			for _, rec := range src {
				b := keyBytes(rec)[byteIdx]
				dst[bucket[b]] = rec
				bucket[b]++
			}
			src, dst = dst, src
		}
		if &src[0] != &x[0] {
			copy(x, src)
		}
	}
}
