package grading

import (
	"math"
	"strings"
	"unicode"
)

// SimilarityResult is the outcome of scoring a submission against its candidates.
type SimilarityResult struct {
	Similarity    float64
	Percentage    int
	IsCorrect     bool
	BestCandidate string
}

// SimilarityScorer grades free text by bigram overlap against the best candidate.
type SimilarityScorer struct {
	threshold int
}

// NewSimilarityScorer builds a scorer that accepts answers at or above the
// threshold percentage. The threshold is clamped to [0, 100].
func NewSimilarityScorer(threshold int) SimilarityScorer {
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 100 {
		threshold = 100
	}
	return SimilarityScorer{threshold: threshold}
}

// Threshold returns the pass mark in percent.
func (s SimilarityScorer) Threshold() int {
	return s.threshold
}

// Score takes the maximum similarity across all candidates. Empty input yields
// a zero, incorrect result rather than an error.
func (s SimilarityScorer) Score(submitted string, candidates []string) SimilarityResult {
	if strings.TrimSpace(submitted) == "" || len(candidates) == 0 {
		return SimilarityResult{}
	}

	best := SimilarityResult{}
	for i, candidate := range candidates {
		value := Similarity(submitted, candidate)
		if i == 0 || value > best.Similarity {
			best.Similarity = value
			best.BestCandidate = candidate
		}
	}

	best.Percentage = int(math.Round(best.Similarity * 100))
	best.IsCorrect = best.Similarity >= float64(s.threshold)/100
	return best
}

// Similarity is the Dice coefficient over character bigrams of the two strings
// after case folding and removing all whitespace. It is symmetric and bounded to [0, 1].
func Similarity(a, b string) float64 {
	first := stripSpace(strings.ToLower(a))
	second := stripSpace(strings.ToLower(b))

	if string(first) == string(second) {
		if len(first) == 0 {
			return 0
		}
		return 1
	}
	if len(first) < 2 || len(second) < 2 {
		return 0
	}

	counts := make(map[[2]rune]int, len(first)-1)
	for i := 0; i < len(first)-1; i++ {
		counts[[2]rune{first[i], first[i+1]}]++
	}

	intersection := 0
	for i := 0; i < len(second)-1; i++ {
		key := [2]rune{second[i], second[i+1]}
		if counts[key] > 0 {
			counts[key]--
			intersection++
		}
	}

	return 2 * float64(intersection) / float64(len(first)+len(second)-2)
}

func stripSpace(value string) []rune {
	out := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsSpace(r) {
			continue
		}
		out = append(out, r)
	}
	return out
}
