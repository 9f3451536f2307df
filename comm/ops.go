package comm

// The functions below compute a collective's result from the full,
// rank-ordered set of contributions. Both transports (inprocComm's
// shared-memory rendezvous and tcpComm's hub) funnel through these so
// the arithmetic of each primitive is defined exactly once.

func reduceSum(all [][]int64) []int64 {
	out := append([]int64(nil), all[0]...)
	for _, v := range all[1:] {
		for i := range out {
			out[i] += v[i]
		}
	}
	return out
}

func reduceMax(all [][]int64) []int64 {
	out := append([]int64(nil), all[0]...)
	for _, v := range all[1:] {
		for i := range out {
			if v[i] > out[i] {
				out[i] = v[i]
			}
		}
	}
	return out
}

func reduceMin(all [][]int64) []int64 {
	out := append([]int64(nil), all[0]...)
	for _, v := range all[1:] {
		for i := range out {
			if v[i] < out[i] {
				out[i] = v[i]
			}
		}
	}
	return out
}

func reduceAnd(all [][]bool) []bool {
	out := append([]bool(nil), all[0]...)
	for _, v := range all[1:] {
		for i := range out {
			out[i] = out[i] && v[i]
		}
	}
	return out
}

// exPrefixSums returns, for each rank r, the sum of x[0:r].
func exPrefixSums(x []int64) []int64 {
	out := make([]int64, len(x))
	var sum int64
	for r, v := range x {
		out[r] = sum
		sum += v
	}
	return out
}
