package company

// Similarity returns the Ratcliff-Obershelp ratio of a and b in [0, 1]:
// twice the number of matched runes over the total rune count, where matches
// are found by recursively taking the longest common block and recursing on
// the pieces to its left and right.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchedRunes(ra, rb)) / float64(total)
}

func matchedRunes(a, b []rune) int {
	i, j, k := longestCommonBlock(a, b)
	if k == 0 {
		return 0
	}
	return k + matchedRunes(a[:i], b[:j]) + matchedRunes(a[i+k:], b[j+k:])
}

// longestCommonBlock returns the earliest longest common substring of a and b
// as (start in a, start in b, length).
func longestCommonBlock(a, b []rune) (int, int, int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}
	bestI, bestJ, bestK := 0, 0, 0
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > bestK {
					bestI, bestJ, bestK = i-cur[j], j-cur[j], cur[j]
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return bestI, bestJ, bestK
}
