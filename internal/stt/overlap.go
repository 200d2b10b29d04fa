package stt

const (
	minOverlapTokens = 4
	maxOverlapTokens = 20
)

// FindTokenOverlap returns the length of the largest suffix of left
// that matches a prefix of right, for stitching adjacent chunk
// transcripts at their overlap region. An exact match is preferred;
// once k reaches 6 tokens, up to floor(k/6) single-token mismatches
// are tolerated, since decode drift at a chunk boundary rarely
// reproduces a word byte-for-byte on both sides. Returns 0 if no
// window of at least minOverlapTokens qualifies.
func FindTokenOverlap(left, right []string) int {
	maxK := maxOverlapTokens
	if len(left) < maxK {
		maxK = len(left)
	}
	if len(right) < maxK {
		maxK = len(right)
	}
	for k := maxK; k >= minOverlapTokens; k-- {
		leftSuffix := left[len(left)-k:]
		rightPrefix := right[:k]
		mismatches := countMismatches(leftSuffix, rightPrefix)
		if mismatches == 0 {
			return k
		}
		if k >= 6 && mismatches <= k/6 {
			return k
		}
	}
	return 0
}

func countMismatches(a, b []string) int {
	n := 0
	for i := range a {
		if normalizeToken(a[i]) != normalizeToken(b[i]) {
			n++
		}
	}
	return n
}
