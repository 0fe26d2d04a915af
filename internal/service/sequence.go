package service

// NextValue returns the sequential number following current.
func NextValue(current int64) int64 {
	return current + 1
}

// allocateSequence numbers n items consecutively after current and returns
// the assigned values. The caller writes back the last one.
func allocateSequence(current int64, n int) []int64 {
	out := make([]int64, n)
	next := current
	for i := range out {
		next = NextValue(next)
		out[i] = next
	}
	return out
}
