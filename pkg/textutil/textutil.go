package textutil

import (
	"regexp"
	"strings"
)

var (
	punctRe = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Normalize lowercases a string, strips punctuation and collapses whitespace.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = punctRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Words splits a normalized string into its word set.
func Words(s string) []string {
	s = Normalize(s)
	if s == "" {
		return nil
	}
	return strings.Split(s, " ")
}

// Similarity scores two strings on [0,∞). Both inputs are normalized first.
// If one normalized string subsumes the other, the score is the length ratio
// of the longer to the shorter, so containment always reads as near-identical.
// Otherwise it is the Dice coefficient over the two word sets.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}

	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		longer, shorter := len(na), len(nb)
		if shorter > longer {
			longer, shorter = shorter, longer
		}
		return float64(longer) / float64(shorter)
	}

	wa, wb := strings.Split(na, " "), strings.Split(nb, " ")
	seen := make(map[string]bool, len(wa))
	for _, w := range wa {
		seen[w] = true
	}
	counted := make(map[string]bool, len(wb))
	common := 0
	for _, w := range wb {
		if seen[w] && !counted[w] {
			common++
			counted[w] = true
		}
	}

	return 2.0 * float64(common) / float64(len(wa)+len(wb))
}
