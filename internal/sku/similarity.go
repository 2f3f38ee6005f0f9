package sku

import (
	"math"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
)

// unit costs for every edit; levenshtein.DefaultOptions charges 2 per substitution
var editCosts = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// Similarity returns 1 - editDistance / longerLength over the lower-cased,
// space-collapsed forms of a and b. Empty input scores 0.
func Similarity(a, b string) float64 {
	return similarity([]rune(models.AliasKey(a)), []rune(models.AliasKey(b)))
}

func similarity(a, b []rune) float64 {
	longest := max(len(a), len(b))
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	distance := levenshtein.DistanceForStrings(a, b, editCosts)
	return 1 - float64(distance)/float64(longest)
}

// roundConfidence keeps four decimals so reruns compare equal
func roundConfidence(c float64) float64 {
	return math.Round(c*10000) / 10000
}

func clampConfidence(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(0, math.Min(1, c))
}
