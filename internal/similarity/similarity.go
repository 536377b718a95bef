// Package similarity scores how closely a generated output matches an
// expected one using word overlap and relative length.
package similarity

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// PassThreshold is the minimum score for an evaluation case to pass.
const PassThreshold = 0.70

const (
	overlapWeight = 0.8
	lengthWeight  = 0.2
)

// Score returns a similarity in [0,1]. An expected text without words scores
// 0, even against an equally blank answer. Otherwise identical texts (after
// case folding and trimming) score 1.
func Score(expected, actual string) float64 {
	fold := cases.Fold()
	e := strings.TrimSpace(fold.String(expected))
	a := strings.TrimSpace(fold.String(actual))
	expectedWords := wordSet(e)
	if len(expectedWords) == 0 {
		return 0.0
	}
	if e == a {
		return 1.0
	}
	actualWords := wordSet(a)

	var common int
	for w := range expectedWords {
		if _, ok := actualWords[w]; ok {
			common++
		}
	}
	overlap := float64(common) / float64(len(expectedWords))

	el, al := utf8.RuneCountInString(expected), utf8.RuneCountInString(actual)
	var lengthRatio float64
	if hi := max(el, al); hi > 0 {
		lengthRatio = float64(min(el, al)) / float64(hi)
	}

	return min(overlapWeight*overlap+lengthWeight*lengthRatio, 1.0)
}

// Passed reports whether score clears PassThreshold.
func Passed(score float64) bool {
	return score >= PassThreshold
}

func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
