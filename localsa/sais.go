// Copyright (c) 2025 Nikita Kamenev
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package localsa is the sequential suffix-array builder behind
// strsort's local sort-leaf. It is SA-IS over the single-byte alphabet
// this module's text is always drawn from, with its public boundary
// speaking the module's own packed index.I rather than a bare int32
// so callers never juggle two position types. The recursive core
// still operates over int32, because the LMS-substring summary string
// built at each recursion level can name more than 256 distinct
// substrings even when the source text can't, so the arbitrary-
// alphabet bucket-map path is retained here too; it is reached only
// through the recursion, when a level's alphabet outgrows the dense
// bucket table. See DESIGN.md.
package localsa

import "github.com/distsa/distsa/index"

// Build constructs the suffix array of text using the SA-IS algorithm.
// Returns the starting positions of text's suffixes in lexicographic
// order, packed as index.I the way every other distributed position
// in this module is carried.
func Build(text []byte) []index.I {
	if len(text) == 0 {
		return []index.I{}
	}
	if len(text) == 1 {
		return []index.I{index.Zero}
	}
	runes := make([]int32, len(text))
	for i, b := range text {
		runes[i] = int32(b)
	}
	sa := sais(runes)
	out := make([]index.I, len(sa))
	for i, v := range sa {
		out[i] = index.From(uint64(v))
	}
	return out
}

// sais constructs a suffix array for the given text using the SA-IS algorithm.
func sais(text []int32) []int32 {
	if len(text) == 0 {
		return []int32{}
	} else if len(text) == 1 {
		return []int32{0}
	}
	return _sais(text, nil, nil, 0)
}

// _sais is the recursive core of sais.
func _sais(text, sa, data []int32, srcAlphaSize int32) []int32 {
	var (
		minChar, maxChar int32 = text[0], text[0]
		l, r, numLMS     int32
		S                bool
	)
	// Scan text to find min/max characters and count LMS (Left-Most S-type) suffixes.
	for i := len(text) - 1; i >= 0; i-- {
		l, r = text[i], l
		if l < minChar {
			minChar = l
		}
		if l > maxChar {
			maxChar = l
		}
		if l < r {
			S = true
		} else if l > r && S {
			S = false
			numLMS++
		}
	}
	currAlphaSize := maxChar - minChar + 1
	if sa == nil {
		srcAlphaSize = currAlphaSize
		sa = make([]int32, len(text))
	}
	if currAlphaSize > 256 || currAlphaSize > srcAlphaSize {
		return induceSortArb(text, sa, data, numLMS)
	}
	return induceSort(text, sa, data, minChar, numLMS, srcAlphaSize, currAlphaSize)
}

// induceSort constructs the suffix array using induced sorting for alphabets <= 256.
func induceSort(text, sa, data []int32, minChar, numLMS, srcAlphaSize, currAlphaSize int32) []int32 {
	if data == nil || len(data) < int(srcAlphaSize)*2 {
		data = make([]int32, srcAlphaSize*2)
	}
	var summary []int32
	freq := data[:currAlphaSize]
	buckets := data[srcAlphaSize : srcAlphaSize+currAlphaSize]
	frequency(text, freq, minChar)

	insertLMS(text, sa, freq, buckets, minChar)
	if numLMS > 1 {
		induceSubL(text, sa, freq, buckets, minChar)
		induceSubS(text, sa, freq, buckets, minChar)
		summary = sa[len(sa)-int(numLMS):]
		maxName := summarise(text, sa, summary, numLMS)

		summarySA := sa[:numLMS]
		if maxName < numLMS {
			_sais(summary, summarySA, data, srcAlphaSize)
			unmap(text, sa, summarySA, summary)
		} else {
			copy(summarySA, summary)
			clear(sa[numLMS:])
		}
		expand(text, sa, summarySA, freq, buckets, minChar)
	}
	induceL(text, sa, freq, buckets, minChar)
	induceS(text, sa, freq, buckets, minChar)
	return sa
}

// unmap maps LMS substring indices from the summary suffix array back to the original text.
func unmap(text, sa, summarySA, LMS []int32) {
	var (
		j    int32 = int32(len(LMS))
		l, r int32
		S    bool
	)
	for i := len(text) - 1; i >= 0; i-- {
		l, r = text[i], l
		if l < r {
			S = true
		} else if l > r && S {
			S = false
			j--
			LMS[j] = int32(i) + 1
		}
	}
	for i := 0; i < len(LMS); i++ {
		j = summarySA[i]
		sa[i] = LMS[j]
		LMS[j] = 0
	}
}

// expand places LMS suffixes into the suffix array using bucket sorting.
func expand(text, sa, summarySA, freq, bucket []int32, minChar int32) {
	frequency(text, freq, minChar)
	bucketEnd(freq, bucket)
	var lmsIdx, b, j int32
	for i := len(summarySA) - 1; i >= 0; i-- {
		lmsIdx = summarySA[i]
		summarySA[i] = 0
		j = text[lmsIdx] - minChar
		b = bucket[j]
		sa[b] = lmsIdx
		bucket[j] = b - 1
	}
}

// frequency calculates the frequency of each character in the text.
func frequency(text, freq []int32, minChar int32) {
	clear(freq)
	for _, v := range text {
		freq[v-minChar]++
	}
}

// bucketStart computes the starting positions of buckets for L-type suffixes.
func bucketStart(freq, bucket []int32) {
	var offset int32
	for i, n := range freq {
		if n > 0 {
			bucket[i] = offset
			offset += n
		}
	}
}

// bucketEnd computes the ending positions of buckets for S-type suffixes.
func bucketEnd(freq, bucket []int32) {
	var offset int32
	for i, n := range freq {
		if n > 0 {
			offset += n
			bucket[i] = offset - 1
		}
	}
}

// insertLMS inserts LMS suffixes into the suffix array.
func insertLMS(text, sa, freq, bucket []int32, minChar int32) {
	bucketEnd(freq, bucket)
	var (
		l, r, i, j, b, lastLMS int32
		numLMS                 int
		S                      bool
	)
	for i = int32(len(text) - 1); i >= 0; i-- {
		l, r = text[i], l
		if l < r {
			S = true
		} else if l > r && S {
			S = false
			j = r - minChar
			b = bucket[j]
			bucket[j] = b - 1
			sa[b] = i + 1
			lastLMS = b
			numLMS++
		}
	}
	if numLMS > 1 {
		sa[lastLMS] = 0
	}
}

// induceSubL induces L-type suffixes for the summary suffix array.
func induceSubL(text, sa, freq, bucket []int32, minChar int32) {
	bucketStart(freq, bucket)
	var (
		k, j     int32 = int32(len(text) - 1), 0
		l, r     int32 = text[k-1], text[k]
		lastChar int32 = text[len(text)-1]
		b        int32 = bucket[lastChar-minChar]
	)
	if l < r {
		k = -k
	}
	bucket[lastChar-minChar] = b + 1
	sa[b] = int32(k)

	for i := 0; i < len(sa); i++ {
		if sa[i] == 0 {
			continue
		}
		j = sa[i]
		if j < 0 {
			sa[i] = -j
			continue
		}
		sa[i] = 0
		k = j - 1
		l, r = text[k-1], text[k]
		if l < r {
			k = -k
		}
		b = bucket[r-minChar]
		bucket[r-minChar] = b + 1
		sa[b] = k
	}
}

// induceSubS induces S-type suffixes for the summary suffix array.
func induceSubS(text, sa, freq, bucket []int32, minChar int32) {
	bucketEnd(freq, bucket)
	var (
		j, b, l, r, k int32
		top           = len(sa)
	)
	for i := len(sa) - 1; i >= 0; i-- {
		j = sa[i]
		if j == 0 {
			continue
		}
		sa[i] = 0
		if j < 0 {
			top--
			sa[top] = -j
			continue
		}
		k = j - 1
		l, r = text[k-1], text[k]
		if l > r {
			k = -k
		}
		b = bucket[r-minChar]
		bucket[r-minChar] = b - 1
		sa[b] = k
	}
}

// induceL induces L-type suffixes for the final suffix array.
func induceL(text, sa, freq, bucket []int32, minChar int32) {
	bucketStart(freq, bucket)
	var (
		k, j     int32 = int32(len(text) - 1), 0
		l, r     int32 = text[k-1], text[k]
		lastChar int32 = text[len(text)-1]
		b        int32 = bucket[lastChar-minChar]
	)
	if l < r {
		k = -k
	}
	bucket[lastChar-minChar] = b + 1
	sa[b] = int32(k)

	for i := 0; i < len(sa); i++ {
		j = sa[i]
		if j <= 0 {
			continue
		}
		k = j - 1
		r = text[k]
		if k > 0 {
			if l = text[k-1]; l < r {
				k = -k
			}
		}
		b = bucket[r-minChar]
		bucket[r-minChar] = b + 1
		sa[b] = k
	}
}

// induceS induces S-type suffixes for the final suffix array.
func induceS(text, sa, freq, bucket []int32, minChar int32) {
	bucketEnd(freq, bucket)
	var j, l, r, k, b int32
	for i := len(sa) - 1; i >= 0; i-- {
		j = sa[i]
		if j >= 0 {
			continue
		}
		j = -j
		sa[i] = j
		k = j - 1
		r = text[k]
		if k > 0 {
			if l = text[k-1]; l <= r {
				k = -k
			}
		}
		b = bucket[r-minChar]
		bucket[r-minChar] = b - 1
		sa[b] = k
	}
}

// lengthLMS computes the lengths of LMS substrings and stores them in sa.
func lengthLMS(text, sa []int32) {
	var (
		l, r int32
		prev int32 = int32(len(text)) - 1
		S    bool
	)
	for i := len(text) - 1; i >= 0; i-- {
		l, r = text[i], l
		if l < r {
			S = true
		} else if l > r && S {
			S = false
			sa[(i+1)/2] = prev - int32(i)
			prev = int32(i)
		}
	}
}

// equalLMS checks if two LMS substrings are equal.
func equalLMS(text []int32, l, r, lLen, rLen int32) bool {
	if lLen != rLen {
		return false
	}
	for lLen > 0 {
		if text[l] != text[r] {
			return false
		}
		l++
		r++
		lLen--
	}
	return true
}

// summarise creates a summary string from LMS substrings and assigns names.
func summarise(text, sa, summary []int32, numLMS int32) int32 {
	lengthLMS(text, sa)
	var (
		name, maxName int32 = 1, 1
		posLMS              = summary
		prev, curr    int32 = sa[posLMS[0]], 0
		prevLen       int32 = sa[posLMS[0]/2]
	)
	sa[posLMS[0]/2] = name
	for i := 1; i < len(posLMS); i++ {
		prev = posLMS[i-1]
		curr = posLMS[i]
		if !equalLMS(text, prev, curr, prevLen, sa[curr/2]) {
			name++
			maxName++
		}
		prevLen = sa[curr/2]
		sa[curr/2] = name
	}
	if maxName >= numLMS {
		return maxName
	}
	var j int
	for i := 0; i < len(sa)/2; i++ {
		curr := sa[i]
		if curr <= 0 {
			continue
		}
		sa[i], summary[j] = 0, curr
		j++
	}
	return maxName
}
