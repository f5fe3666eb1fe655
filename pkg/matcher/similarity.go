package matcher

import (
	"sort"
	"strings"
)

// Similarity returns a 0-1 ratio between two field names. It takes the
// higher of the plain Levenshtein ratio and the token-sort ratio, so
// "email_customer" and "customer_email" score as near-identical.
func Similarity(a, b string) float64 {
	na := NormalizeFieldName(a)
	nb := NormalizeFieldName(b)
	if na == nb {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0.0
	}

	plain := levenshteinRatio(na, nb)
	tokenSort := levenshteinRatio(tokenSortKey(a), tokenSortKey(b))
	if tokenSort > plain {
		return tokenSort
	}
	return plain
}

// tokenSortKey joins a name's tokens in sorted order, which makes the
// comparison insensitive to token ordering.
func tokenSortKey(name string) string {
	tokens := TokenizeFieldName(name)
	sort.Strings(tokens)
	return strings.Join(tokens, "")
}

// levenshteinRatio converts edit distance to a 0-1 similarity ratio.
func levenshteinRatio(a, b string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(a, b))/float64(longest)
}

// levenshtein computes edit distance with a two-row dynamic program.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
