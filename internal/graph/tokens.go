package graph

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "how": {}, "in": {}, "is": {}, "it": {},
	"of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "this": {}, "to": {},
	"what": {}, "when": {}, "where": {}, "who": {}, "why": {}, "with": {},
}

// normalizeToken lowercases a token and strips a small set of English
// suffixes so near-identical word forms score as the same token.
func normalizeToken(token string) string {
	t := strings.ToLower(token)

	switch {
	case strings.HasSuffix(t, "ies") && len(t) > 4:
		t = t[:len(t)-3] + "y"
	case strings.HasSuffix(t, "ing") && len(t) > 5:
		t = t[:len(t)-3]
	case strings.HasSuffix(t, "ed") && len(t) > 4:
		t = t[:len(t)-2]
	case strings.HasSuffix(t, "es") && len(t) > 4:
		t = t[:len(t)-2]
	case strings.HasSuffix(t, "s") && len(t) > 3:
		t = t[:len(t)-1]
	}

	return t
}

// orderedTokens returns the normalized tokens of text in order of appearance.
// If stop-word and short-token filtering would drop everything, the raw
// normalized tokens are returned instead so trivial inputs still tokenize.
func orderedTokens(text string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(text), -1)

	filtered := make([]string, 0, len(matches))
	for _, m := range matches {
		token := normalizeToken(m)
		if len(token) <= 1 {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		filtered = append(filtered, token)
	}

	if len(filtered) > 0 {
		return filtered
	}

	raw := make([]string, 0, len(matches))
	for _, m := range matches {
		raw = append(raw, normalizeToken(m))
	}
	return raw
}

// Tokenize returns the unique normalized tokens of text, preserving first
// appearance order.
func Tokenize(text string) []string {
	seen := make(map[string]struct{})
	unique := make([]string, 0)

	for _, token := range orderedTokens(text) {
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		unique = append(unique, token)
	}

	return unique
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func orderedBigramSet(tokens []string) map[string]struct{} {
	bigrams := make(map[string]struct{})
	for i := 0; i+1 < len(tokens); i++ {
		bigrams[tokens[i]+" "+tokens[i+1]] = struct{}{}
	}
	return bigrams
}

func intersectionSize(left, right map[string]struct{}) int {
	n := 0
	for v := range left {
		if _, ok := right[v]; ok {
			n++
		}
	}
	return n
}

func unionSize(left, right map[string]struct{}) int {
	n := len(left)
	for v := range right {
		if _, ok := left[v]; !ok {
			n++
		}
	}
	return n
}

// fnv1a32 is the 32-bit FNV-1a hash, used to derive a stable per-candidate
// salt so otherwise-tied placement candidates resolve deterministically.
func fnv1a32(value string) uint32 {
	hash := uint32(0x811c9dc5)
	for i := 0; i < len(value); i++ {
		hash ^= uint32(value[i])
		hash *= 0x01000193
	}
	return hash
}
