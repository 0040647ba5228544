package sequence

// filterIndexes builds the dense output-to-input index mapping of a run:
// position k of the result holds the source index of the k-th included
// frame, in original order. The mapping is computed once, before dispatch,
// so that contiguous output containers can rely on it being stable while
// workers complete out of order.
func filterIndexes(src Source) []int {
	n := src.FrameCount()
	idx := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if src.Included(i) {
			idx = append(idx, i)
		}
	}
	return idx
}
