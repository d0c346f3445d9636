// Package similarity provides the symbolic similarity measures used for
// evidence re-ranking and coordinate comparison.
package similarity

import (
	"regexp"
	"strings"
)

var (
	bracketedNumbers = regexp.MustCompile(`\(\d*\)`)
	punctuation      = strings.NewReplacer(",", "", ".", "", "\t", " ", "\n", " ")
)

// normalize lowercases a string and strips bracketed numbers and
// punctuation before comparison.
func normalize(s string) string {
	s = bracketedNumbers.ReplaceAllString(s, "")
	s = punctuation.Replace(strings.ToLower(s))
	return strings.TrimSpace(s)
}

// StringSimilarity blends normalized Levenshtein and Jaccard similarity
// (0.2/0.8). Both inputs are normalized first.
func StringSimilarity(a, b string) float64 {
	a = normalize(a)
	b = normalize(b)

	editSim := levenshteinSimilarity(a, b)
	jaccSim := jaccardSimilarity(a, b)

	return 0.2*editSim + 0.8*jaccSim
}

// JaccardSimilarity compares the normalized character multisets of two
// strings.
func JaccardSimilarity(a, b string) float64 {
	return jaccardSimilarity(normalize(a), normalize(b))
}

// LevenshteinSimilarity is the normalized edit similarity of two strings.
func LevenshteinSimilarity(a, b string) float64 {
	return levenshteinSimilarity(normalize(a), normalize(b))
}

// StringContainment reports whether one token set is contained in the
// other.
func StringContainment(a, b string) bool {
	tokensA := tokenSet(normalize(a))
	tokensB := tokenSet(normalize(b))

	return isSubset(tokensA, tokensB) || isSubset(tokensB, tokensA)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.Fields(s) {
		set[token] = struct{}{}
	}
	return set
}

func isSubset(a, b map[string]struct{}) bool {
	for token := range a {
		if _, ok := b[token]; !ok {
			return false
		}
	}
	return true
}

// jaccardSimilarity compares the character multisets of two strings,
// normalized to [0, 1].
func jaccardSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}

	countsA := runeCounts(a)
	countsB := runeCounts(b)

	intersection := 0
	for r, ca := range countsA {
		if cb, ok := countsB[r]; ok {
			intersection += min(ca, cb)
		}
	}
	union := len([]rune(a)) + len([]rune(b)) - intersection
	if union == 0 {
		return 1
	}
	return float64(intersection) / float64(union)
}

func runeCounts(s string) map[rune]int {
	counts := make(map[rune]int)
	for _, r := range s {
		counts[r]++
	}
	return counts
}

// levenshteinSimilarity is 1 - distance/maxLen, in [0, 1].
func levenshteinSimilarity(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	maxLen := max(len(ra), len(rb))
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(maxLen)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
