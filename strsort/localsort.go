package strsort

// localSort orders local strings lexicographically using one local
// suffix array over the whole batch instead of a pairwise comparison
// sort: concatenate every string (each already 0-terminated), build
// localsa.Build's suffix array over the concatenation, then read off
// the string order by scanning the resulting SA for positions that
// are string starts. This is the generalized-suffix-array trick:
// stringing multiple texts together behind one suffix array to answer
// per-string questions, applied here to answer "what order do my
// strings sort in" instead of "where does this pattern occur".
//
// Every string here already ends in its own 0 terminator (the
// StringSet convention), so no extra separator needs inserting: 0 is
// always the minimal byte, so SA-IS naturally treats each terminator
// as a hard boundary between neighbouring strings.
import "github.com/distsa/distsa/localsa"

func localSort(recs []stringRec) []stringRec {
	if len(recs) < 2 {
		return recs
	}
	var buf []byte
	starts := make([]int, len(recs))
	for i, r := range recs {
		starts[i] = len(buf)
		buf = append(buf, r.bytes...)
	}
	sa := localsa.Build(buf)

	startOf := make(map[int]int, len(recs))
	for i, s := range starts {
		startOf[s] = i
	}

	order := make([]stringRec, 0, len(recs))
	for _, pos := range sa {
		if i, ok := startOf[int(pos.Uint64())]; ok {
			order = append(order, recs[i])
		}
	}
	return order
}
