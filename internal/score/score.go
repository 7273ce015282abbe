// Package score rates the quality of a transcript correction.
//
// Two scorers are provided. Simple derives a score from the number of
// corrections alone and is used for fast rule-only runs. Weighted inspects
// the original and corrected text pair and weighs correction categories,
// length drift, known-good rewrites and known regressions; it is the
// canonical scorer used for escalation decisions and audit reports. Both
// return values clamped to [0, 1].
package score

import (
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/kousei/internal/correct"
)

const base = 0.5

// categoryWeights maps a correction category to its contribution. Categories
// not listed contribute defaultWeight.
var categoryWeights = map[string]float64{
	correct.CategoryTechTerm:    0.20,
	correct.CategoryRepetition:  0.15,
	correct.CategoryEndingFix:   0.15,
	correct.CategoryPunctuation: 0.10,
	correct.CategoryNatural:     0.10,
	correct.CategoryFiller:      0.05,
}

const defaultWeight = 0.02

// improvementPairs are rewrites known to be correct: when the original
// contains the left side and the corrected text contains the right side, the
// correction demonstrably fixed a real defect.
var improvementPairs = [][2]string{
	{"Day2になるDay2", "Day2"},
	{"ますタイトル", "ます。タイトル"},
	{"かなと思っている", "かと思"},
}

// lostKeywords are content words that must never disappear from a lecture
// transcript. Losing one marks the correction as a regression.
var lostKeywords = []string{"講師", "講座", "皆さん", "研究室"}

// Simple scores a correction from the number of logged corrections alone:
// 0.3 base plus 0.2 per correction, capped at 1.
func Simple(corrections int) float64 {
	return clamp(0.3 + 0.2*float64(corrections))
}

// Weighted scores a correction from the text pair and the correction log.
//
// The score starts at 0.5 and accumulates a weight per logged category, a
// length-ratio adjustment (+0.1 when the corrected length stays within
// [0.7, 1.3] of the original, -0.2 when it drops below half), +0.15 when a
// known-good rewrite is present, and -0.3 when the pair shows a regression.
func Weighted(original, corrected string, corrections []string) float64 {
	s := base

	for _, cat := range corrections {
		if w, ok := categoryWeights[cat]; ok {
			s += w
		} else {
			s += defaultWeight
		}
	}

	if origLen := utf8.RuneCountInString(original); origLen > 0 {
		ratio := float64(utf8.RuneCountInString(corrected)) / float64(origLen)
		switch {
		case ratio >= 0.7 && ratio <= 1.3:
			s += 0.1
		case ratio < 0.5:
			s -= 0.2
		}
	}

	if Improved(original, corrected) {
		s += 0.15
	}
	if Deteriorated(original, corrected) {
		s -= 0.3
	}

	return clamp(s)
}

// Improved reports whether the text pair contains a known-good rewrite.
func Improved(original, corrected string) bool {
	for _, p := range improvementPairs {
		if strings.Contains(original, p[0]) && strings.Contains(corrected, p[1]) {
			return true
		}
	}
	return false
}

// Deteriorated reports whether the correction made the text worse: a polite
// phrase got truncated, or a content keyword vanished.
func Deteriorated(original, corrected string) bool {
	if strings.Contains(original, "ありがとうございます") &&
		strings.Contains(corrected, "りがとうございます") &&
		!strings.Contains(corrected, "ありがとうございます") {
		return true
	}
	for _, kw := range lostKeywords {
		if strings.Contains(original, kw) && !strings.Contains(corrected, kw) {
			return true
		}
	}
	return false
}

// Bucket names the quality band a score falls into.
func Bucket(q float64) string {
	switch {
	case q >= 0.8:
		return "excellent"
	case q >= 0.6:
		return "good"
	case q >= 0.4:
		return "fair"
	default:
		return "poor"
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
