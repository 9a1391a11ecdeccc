package graph

import "strings"

// SimilarityFunc scores how alike two observation texts are, in [0,1].
// The merge logic treats scores at or above nearDuplicateThreshold as the
// same fact. The function is pluggable so the matching strategy can be
// swapped without touching merge logic.
type SimilarityFunc func(a, b string) float64

// nearDuplicateThreshold is the similarity score at or above which two
// observation texts are merged instead of stored separately.
const nearDuplicateThreshold = 0.82

// TokenOverlap is the default similarity function: Jaccard overlap of the
// lowercase token sets, falling back to normalized edit distance for very
// short texts where token overlap is too coarse.
func TokenOverlap(a, b string) float64 {
	ta := tokens(a)
	tb := tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
			return 1
		}
		return 0
	}

	// Token overlap is meaningless for one- or two-word texts.
	if len(ta) <= 2 || len(tb) <= 2 {
		return editSimilarity(strings.ToLower(a), strings.ToLower(b))
	}

	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

// EditDistance is an alternative similarity function based purely on
// normalized Levenshtein distance.
func EditDistance(a, b string) float64 {
	return editSimilarity(strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b)))
}

func tokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		out[w] = true
	}
	return out
}

// editSimilarity is 1 - levenshtein(a,b)/max(len). Identical strings score 1.
func editSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}

	longest := la
	if lb > longest {
		longest = lb
	}
	return 1 - float64(prev[lb])/float64(longest)
}
