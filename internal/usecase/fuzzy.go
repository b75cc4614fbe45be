package usecase

import (
	"regexp"
	"strings"
)

var punctuationRegex = regexp.MustCompile(`[^\w\s]`)

// nameSimilarity returns a similarity ratio in [0,1] between two card names.
// Both names are normalized first so OCR punctuation noise ("Farfetch d"
// vs "Farfetch'd") does not dominate the distance.
func nameSimilarity(a, b string) float64 {
	a = normalizeName(a)
	b = normalizeName(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	return 1.0 - float64(levenshteinDistance(a, b))/float64(longest)
}

// normalizeName lowercases a name and strips punctuation and repeated
// whitespace.
func normalizeName(s string) string {
	cleaned := punctuationRegex.ReplaceAllString(strings.ToLower(s), " ")
	return strings.Join(strings.Fields(cleaned), " ")
}

// levenshteinDistance calculates the edit distance between two strings
// using two rows instead of the full matrix.
func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	r1 := []rune(s1)
	r2 := []rune(s2)
	m := len(r1)
	n := len(r2)

	prev := make([]int, n+1)
	curr := make([]int, n+1)

	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[n]
}
