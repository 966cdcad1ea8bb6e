package reconcile

// moved returns the indexes of matched children that changed position
// relative to the other matched children. pairs maps each new index to its old
// index or -1. Children on the longest increasing run of old indexes keep
// their place; everything else matched is reported as moved.
func moved(pairs []int) []int {
	var idx []int // new indexes of matched children
	for i, j := range pairs {
		if j >= 0 {
			idx = append(idx, i)
		}
	}
	if len(idx) < 2 {
		return nil
	}

	// Patience sort over old indexes.
	tails := make([]int, 0, len(idx)) // positions into idx
	prev := make([]int, len(idx))
	for p, i := range idx {
		v := pairs[i]
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := (lo + hi) / 2
			if pairs[idx[tails[mid]]] < v {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo > 0 {
			prev[p] = tails[lo-1]
		} else {
			prev[p] = -1
		}
		if lo == len(tails) {
			tails = append(tails, p)
		} else {
			tails[lo] = p
		}
	}
	if len(tails) == len(idx) {
		return nil
	}

	keep := make([]bool, len(idx))
	for p := tails[len(tails)-1]; p >= 0; p = prev[p] {
		keep[p] = true
	}
	var out []int
	for p, i := range idx {
		if !keep[p] {
			out = append(out, i)
		}
	}
	return out
}
