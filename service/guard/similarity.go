package guard

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const shingleSize = 3

// contentHash returns the canonical fingerprint of signal content used for
// exact duplicate detection. Case and surrounding whitespace are ignored.
func contentHash(content string) string {
	normalized := strings.ToLower(strings.TrimSpace(content))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// shingles tokenizes content into a set of overlapping word n-grams.
func shingles(content string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(content))
	ret := make(map[string]struct{})
	if len(words) == 0 {
		return ret
	}
	if len(words) < shingleSize {
		ret[strings.Join(words, " ")] = struct{}{}
		return ret
	}
	for i := 0; i+shingleSize <= len(words); i++ {
		ret[strings.Join(words[i:i+shingleSize], " ")] = struct{}{}
	}
	return ret
}

// jaccard computes the Jaccard similarity of two shingle sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for shingle := range a {
		if _, ok := b[shingle]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
