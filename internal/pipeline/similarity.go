package pipeline

// titleSequenceRatio measures how similar two titles are as a normalized
// sequence ratio in [0, 1]: twice the longest common subsequence length over
// the combined length. Both inputs are normalized first, so case and
// whitespace differences do not count against the match.
func titleSequenceRatio(left, right string) float64 {
	a := []rune(normalizeText(left))
	b := []rune(normalizeText(right))
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if string(a) == string(b) {
		return 1
	}

	lcs := longestCommonSubsequence(a, b)
	return 2 * float64(lcs) / float64(len(a)+len(b))
}

func longestCommonSubsequence(a, b []rune) int {
	if len(b) > len(a) {
		a, b = b, a
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				continue
			}
			if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
		for j := range curr {
			curr[j] = 0
		}
	}
	return prev[len(b)]
}
