package dedup

import "strings"

// Ratio returns the Ratcliff/Obershelp similarity of a and b in [0, 1],
// ignoring case. Two empty strings are identical.
func Ratio(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))

	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matches(ra, rb)) / float64(total)
}

// matches counts the characters covered by the longest common block of a and b
// plus, recursively, the blocks to its left and right.
func matches(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	i, j, n := longestMatch(a, b)
	if n == 0 {
		return 0
	}
	return n + matches(a[:i], b[:j]) + matches(a[i+n:], b[j+n:])
}

// longestMatch finds the longest common substring, preferring the earliest one in a.
func longestMatch(a, b []rune) (int, int, int) {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)

	var bestI, bestJ, size int
	for x := 1; x <= len(a); x++ {
		for y := 1; y <= len(b); y++ {
			if a[x-1] != b[y-1] {
				cur[y] = 0
				continue
			}
			cur[y] = prev[y-1] + 1
			if cur[y] > size {
				size = cur[y]
				bestI = x - size
				bestJ = y - size
			}
		}
		prev, cur = cur, prev
	}
	return bestI, bestJ, size
}
