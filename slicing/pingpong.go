package slicing

// IsPingPong reports whether moving to candidate would repeat the most recent
// back-and-forth pattern in history (destinations, oldest first).
//
// With r the history newest first and k the index of candidate's latest
// occurrence in r, the window [candidate, r[0..k-1]] is compared with the
// window r[k..2k]. Equal windows mean the move replays the sequence that led
// to the previous visit. k == 0 (candidate is the latest destination) is a
// block change on the same AP and never counts.
func IsPingPong(history []AccessPointID, candidate AccessPointID) bool {
	n := len(history)
	if n == 0 {
		return false
	}
	// r[i] == history[n-1-i]
	rev := func(i int) AccessPointID { return history[n-1-i] }

	k := -1
	for i := 0; i < n; i++ {
		if rev(i) == candidate {
			k = i
			break
		}
	}
	if k < 1 || n < 2*k+1 {
		return false
	}
	for i := 0; i < k; i++ {
		// window A[i+1] = r[i], window B[i+1] = r[k+1+i]
		if rev(i) != rev(k+1+i) {
			return false
		}
	}
	return true
}

// destinations extracts AP identities from records, preserving order.
func destinations(records []HandoverRecord) []AccessPointID {
	out := make([]AccessPointID, len(records))
	for i, r := range records {
		out[i] = r.AP
	}
	return out
}
