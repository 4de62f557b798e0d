package dsp

// Downsample keeps the samples of src picked by DownsampleIndex. The result
// is built in dst when it has the capacity.
func Downsample[T any](dst, src []T, maxPoints int) []T {
	idx := DownsampleIndex(len(src), maxPoints)
	if cap(dst) < len(idx) {
		dst = make([]T, 0, len(idx))
	}
	dst = dst[:0]
	for _, j := range idx {
		dst = append(dst, src[j])
	}
	return dst
}

// DownsampleIndex returns at most maxPoints evenly spaced indices into n
// samples, starting at 0. maxPoints <= 0 keeps every sample.
func DownsampleIndex(n, maxPoints int) []int {
	keep := n
	if maxPoints > 0 && n > maxPoints {
		keep = maxPoints
	}
	idx := make([]int, keep)
	for i := range idx {
		idx[i] = i * n / keep
	}
	return idx
}
