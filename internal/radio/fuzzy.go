package radio

import (
	"strings"
	"unicode"

	"github.com/llehouerou/wavebot/internal/lastfm"
)

// matchArtists maps local artists to the best similarity score of the
// Last.fm artists they fuzzily match.
func matchArtists(similar []lastfm.SimilarArtist, localArtists []string, threshold float64) map[string]float64 {
	byNorm := make(map[string]string, len(localArtists)) // normalized -> original
	for _, artist := range localArtists {
		byNorm[normalizeString(artist)] = artist
	}

	matched := make(map[string]float64)
	keep := func(local string, score float64) {
		if score > matched[local] {
			matched[local] = score
		}
	}

	for _, sa := range similar {
		norm := normalizeString(sa.Name)
		if local, ok := byNorm[norm]; ok {
			keep(local, sa.MatchScore)
			continue
		}

		best, bestScore := "", 0.0
		for n, local := range byNorm {
			if score := similarity(norm, n); score >= threshold && score > bestScore {
				best, bestScore = local, score
			}
		}
		if best != "" {
			keep(best, sa.MatchScore)
		}
	}
	return matched
}

var remasterSuffixes = []string{
	" (remastered)",
	" (remaster)",
	" - remastered",
	" [remastered]",
}

// normalizeString lowercases s, drops punctuation and collapses
// whitespace.
func normalizeString(s string) string {
	s = strings.ToLower(s)
	for _, suffix := range remasterSuffixes {
		s = strings.TrimSuffix(s, suffix)
	}

	var b strings.Builder
	space := true // trims leading separators
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case unicode.IsSpace(r) || r == '-' || r == '_':
			if !space {
				b.WriteRune(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// similarity is 1 minus the edit distance relative to the longer string.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}
	return 1.0 - float64(levenshtein(ra, rb))/float64(max(len(ra), len(rb)))
}

func levenshtein(a, b []rune) int {
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
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
