// Package diffreport audits a finished correction run: it compares an
// original transcript against its corrected counterpart, independently
// re-detects correction categories, and aggregates quality metrics. It runs
// after the fact over two files, never during correction.
package diffreport

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
	"github.com/dlclark/regexp2"

	"github.com/MrWong99/kousei/internal/correct"
	"github.com/MrWong99/kousei/internal/score"
	"github.com/MrWong99/kousei/internal/segment"
)

// previewRunes caps the original/corrected previews in a pair analysis.
const previewRunes = 100

// exemplarQuality is the minimum quality for a pair to appear as an
// exemplar in the report.
const exemplarQuality = 0.7

// duplicateRe detects the phrase-duplication artefact the rule pipeline
// collapses. Backreference, so regexp2.
var duplicateRe = regexp2.MustCompile(`(\w+)になる\1`, regexp2.None)

// sentenceSplitRe splits text on sentence-final punctuation.
var sentenceSplitRe = regexp.MustCompile(`[。！？]`)

// punctRe matches counted punctuation marks.
var punctRe = regexp.MustCompile(`[。、]`)

// termPairs are the (misrecognised, canonical) term substitutions the
// detector looks for. Must stay consistent with the technical-term stage.
var termPairs = [][2]string{
	{"ベルト", "ベルトン"},
	{"ジーピーティー", "GPT"},
	{"ラーム", "Llama"},
	{"エルエム", "LLM"},
}

// fillers are the hesitation markers counted by the filler-removal detector.
var fillers = []string{"えー", "あのー", "なんか"}

// endingPairs are the (truncated, repaired) verb endings the grammar
// detector looks for.
var endingPairs = [][2]string{
	{"申しす", "申します"},
	{"ございす", "ございます"},
}

// naturalPairs are the (spoken, written) register substitutions the
// naturalization detector looks for.
var naturalPairs = [][2]string{
	{"っていう", "という"},
	{"だったのかな", "でした"},
}

// PairDiff is the analysis of one positionally paired segment.
type PairDiff struct {
	SegmentID int    `json:"segment_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`

	// OriginalLength and CorrectedLength are rune counts.
	OriginalLength  int `json:"original_length"`
	CorrectedLength int `json:"corrected_length"`

	// Corrections are the independently re-detected category labels.
	Corrections []string `json:"corrections"`

	// Quality is the weighted quality score for the pair.
	Quality float64 `json:"quality"`

	// Similarity is a normalized edit-distance ratio: 1 means identical,
	// 0 means fully disjoint.
	Similarity float64 `json:"similarity"`

	OriginalPreview  string `json:"original_preview"`
	CorrectedPreview string `json:"corrected_preview"`

	// SignificantChanges are human-readable descriptions of notable edits.
	SignificantChanges []string `json:"significant_changes,omitempty"`
}

// OverallMetrics compares the two transcripts as wholes.
type OverallMetrics struct {
	// CharacterDelta is original minus corrected rune count; positive
	// means the correction shortened the text.
	CharacterDelta int `json:"character_delta"`

	// SentenceCountDelta is corrected minus original sentence-final
	// punctuation count.
	SentenceCountDelta int `json:"sentence_count_delta"`

	// PunctuationDensityDelta is the change in punctuation marks per rune.
	PunctuationDensityDelta float64 `json:"punctuation_density_delta"`
}

// Analysis is the machine-readable aggregate of a transcript comparison.
type Analysis struct {
	Pairs []PairDiff `json:"pairs"`

	// AverageQuality is 0 when there are no pairs.
	AverageQuality float64 `json:"average_quality"`

	// QualityDistribution counts pairs per reporting bucket
	// (excellent/good/fair/poor).
	QualityDistribution map[string]int `json:"quality_distribution"`

	// CategoryTotals counts re-detected corrections per category.
	CategoryTotals map[string]int `json:"category_totals"`

	Overall OverallMetrics `json:"overall_metrics"`

	// TruncatedPairs is how many segments of the longer transcript had no
	// positional counterpart and were excluded from pairing.
	TruncatedPairs int `json:"truncated_pairs"`
}

// AnalyzeFiles reads both transcripts and compares them.
func AnalyzeFiles(originalPath, correctedPath string) (*Analysis, error) {
	original, err := os.ReadFile(originalPath)
	if err != nil {
		return nil, fmt.Errorf("diffreport: read %q: %w", originalPath, err)
	}
	corrected, err := os.ReadFile(correctedPath)
	if err != nil {
		return nil, fmt.Errorf("diffreport: read %q: %w", correctedPath, err)
	}
	return Analyze(string(original), string(corrected)), nil
}

// Analyze re-segments both transcripts, pairs segments positionally, and
// aggregates per-pair findings. When the segment counts differ only the
// shorter length is paired; the surplus is reported via TruncatedPairs.
func Analyze(original, corrected string) *Analysis {
	origSegs := segment.Parse(original)
	corrSegs := segment.Parse(corrected)

	n := min(len(origSegs), len(corrSegs))
	a := &Analysis{
		Pairs:               make([]PairDiff, 0, n),
		QualityDistribution: map[string]int{"excellent": 0, "good": 0, "fair": 0, "poor": 0},
		CategoryTotals:      map[string]int{},
		TruncatedPairs:      max(len(origSegs), len(corrSegs)) - n,
		Overall:             overallMetrics(original, corrected),
	}

	var qualitySum float64
	for i := 0; i < n; i++ {
		pair := analyzePair(origSegs[i], corrSegs[i])
		a.Pairs = append(a.Pairs, pair)
		a.QualityDistribution[score.Bucket(pair.Quality)]++
		for _, cat := range pair.Corrections {
			a.CategoryTotals[cat]++
		}
		qualitySum += pair.Quality
	}
	if n > 0 {
		a.AverageQuality = qualitySum / float64(n)
	}

	return a
}

func analyzePair(orig, corr segment.Segment) PairDiff {
	origText := orig.Original
	corrText := corr.Original

	corrections := detectCorrections(origText, corrText)

	return PairDiff{
		SegmentID:          orig.ID,
		StartTime:          orig.StartTime,
		EndTime:            orig.EndTime,
		OriginalLength:     utf8.RuneCountInString(origText),
		CorrectedLength:    utf8.RuneCountInString(corrText),
		Corrections:        corrections,
		Quality:            score.Weighted(origText, corrText, corrections),
		Similarity:         Similarity(origText, corrText),
		OriginalPreview:    preview(origText),
		CorrectedPreview:   preview(corrText),
		SignificantChanges: significantChanges(origText, corrText),
	}
}

// Similarity is 1 − Levenshtein(a,b)/max(len(a),len(b)) over runes. Two
// empty strings are identical.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(matchr.Levenshtein(a, b))/float64(longest)
}

// detectCorrections re-derives the correction categories from the text pair
// alone. The labels are the shared category vocabulary of the rule pipeline.
func detectCorrections(original, corrected string) []string {
	var corrections []string

	if m, _ := duplicateRe.MatchString(original); m {
		if m2, _ := duplicateRe.MatchString(corrected); !m2 {
			corrections = append(corrections, correct.CategoryRepetition)
		}
	}

	for _, p := range termPairs {
		if termSubstituted(original, corrected, p) {
			corrections = append(corrections, correct.CategoryTechTerm)
		}
	}

	for _, p := range endingPairs {
		if strings.Contains(original, p[0]) && strings.Contains(corrected, p[1]) {
			corrections = append(corrections, correct.CategoryEndingFix)
			break
		}
	}

	origFillers, corrFillers := 0, 0
	for _, f := range fillers {
		origFillers += strings.Count(original, f)
		corrFillers += strings.Count(corrected, f)
	}
	if corrFillers < origFillers {
		corrections = append(corrections, correct.CategoryFiller)
	}

	for _, p := range naturalPairs {
		if strings.Contains(original, p[0]) && strings.Contains(corrected, p[1]) {
			corrections = append(corrections, correct.CategoryNatural)
			break
		}
	}

	if len(punctRe.FindAllString(corrected, -1)) > len(punctRe.FindAllString(original, -1)) {
		corrections = append(corrections, correct.CategoryPunctuation)
	}

	return corrections
}

// significantChanges lists human-readable descriptions of notable edits
// between the two texts.
func significantChanges(original, corrected string) []string {
	var changes []string

	// Duplicate-phrase removal, e.g. "Day2になるDay2" collapsed to "Day2".
	if m, _ := duplicateRe.FindStringMatch(original); m != nil {
		phrase := m.String()
		kept := m.GroupByNumber(1).String()
		if !strings.Contains(corrected, phrase) && strings.Contains(corrected, kept) {
			changes = append(changes, fmt.Sprintf("duplicate phrase %q collapsed to %q", phrase, kept))
		}
	}

	for _, p := range termPairs {
		if termSubstituted(original, corrected, p) {
			changes = append(changes, fmt.Sprintf("term %q corrected to %q", p[0], p[1]))
		}
	}

	origSentences := countSentences(original)
	corrSentences := countSentences(corrected)
	if corrSentences > origSentences {
		changes = append(changes, fmt.Sprintf("sentence segmentation improved from %d to %d sentences", origSentences, corrSentences))
	}

	return changes
}

// termSubstituted reports whether the canonical term p[1] appears more often
// in the corrected text than in the original while the misrecognised form
// p[0] was present. The count comparison matters because some misrecognised
// forms are substrings of their canonical replacements.
func termSubstituted(original, corrected string, p [2]string) bool {
	return strings.Contains(original, p[0]) &&
		strings.Count(corrected, p[1]) > strings.Count(original, p[1])
}

func countSentences(text string) int {
	n := 0
	for _, s := range sentenceSplitRe.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	return n
}

func overallMetrics(original, corrected string) OverallMetrics {
	origRunes := utf8.RuneCountInString(original)
	corrRunes := utf8.RuneCountInString(corrected)

	m := OverallMetrics{
		CharacterDelta: origRunes - corrRunes,
		SentenceCountDelta: len(sentenceSplitRe.FindAllString(corrected, -1)) -
			len(sentenceSplitRe.FindAllString(original, -1)),
	}
	if origRunes > 0 && corrRunes > 0 {
		m.PunctuationDensityDelta = float64(len(punctRe.FindAllString(corrected, -1)))/float64(corrRunes) -
			float64(len(punctRe.FindAllString(original, -1)))/float64(origRunes)
	}
	return m
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return string(runes[:previewRunes]) + "..."
}
