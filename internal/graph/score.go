package graph

import (
	"fmt"
	"math"
)

// Scoring weights for the deterministic similarity function. Empirically
// chosen; the salt keeps tied candidates stable rather than arbitrary.
const (
	jaccardWeight     = 0.55
	coverageWeight    = 0.25
	bigramWeight      = 0.12
	longTokenWeight   = 0.08
	longTokenMinChars = 5
)

// JaccardSimilarity returns the token-set Jaccard similarity of two texts.
func JaccardSimilarity(left, right string) float64 {
	leftTokens := Tokenize(left)
	rightTokens := Tokenize(right)

	if len(leftTokens) == 0 && len(rightTokens) == 0 {
		return 1
	}

	leftSet := tokenSet(leftTokens)
	rightSet := tokenSet(rightTokens)

	union := unionSize(leftSet, rightSet)
	if union == 0 {
		return 0
	}
	return float64(intersectionSize(leftSet, rightSet)) / float64(union)
}

// Score computes the deterministic similarity of newText against an existing
// candidate node's text. It blends token-set Jaccard, coverage of the smaller
// set, ordered-bigram Jaccard and long-token overlap, then adds a small salt
// hashed from (streamID, candidateNodeID, newText). Clamped to [0,1] and
// rounded to 4 decimal places.
func Score(streamID string, candidateNodeID int, newText, candidateText string) float64 {
	leftTokens := Tokenize(newText)
	rightTokens := Tokenize(candidateText)
	leftSet := tokenSet(leftTokens)
	rightSet := tokenSet(rightTokens)

	intersection := intersectionSize(leftSet, rightSet)
	union := unionSize(leftSet, rightSet)

	jaccard := 0.0
	if union > 0 {
		jaccard = float64(intersection) / float64(union)
	}

	coverage := 0.0
	if smaller := min(len(leftSet), len(rightSet)); smaller > 0 {
		coverage = float64(intersection) / float64(smaller)
	}

	longTokenOverlap := 0.0
	if larger := max(len(leftTokens), len(rightTokens)); larger > 0 {
		shared := 0
		for token := range leftSet {
			if len(token) < longTokenMinChars {
				continue
			}
			if _, ok := rightSet[token]; ok {
				shared++
			}
		}
		longTokenOverlap = float64(shared) / float64(larger)
	}

	leftBigrams := orderedBigramSet(orderedTokens(newText))
	rightBigrams := orderedBigramSet(orderedTokens(candidateText))
	bigramScore := 0.0
	if bigramUnion := unionSize(leftBigrams, rightBigrams); bigramUnion > 0 {
		bigramScore = float64(intersectionSize(leftBigrams, rightBigrams)) / float64(bigramUnion)
	}

	salt := float64(fnv1a32(fmt.Sprintf("%s:%d:%s", streamID, candidateNodeID, newText))%1000) / 100000

	score := jaccard*jaccardWeight +
		coverage*coverageWeight +
		bigramScore*bigramWeight +
		longTokenOverlap*longTokenWeight +
		salt

	return Round4(math.Min(1, score))
}

// Round4 rounds to 4 decimal places, matching the precision stored on nodes.
func Round4(v float64) float64 {
	return math.Round(v*10_000) / 10_000
}
