package diffreport

import (
	"fmt"
	"strings"

	"github.com/MrWong99/kousei/internal/correct"
)

// reportCategories fixes the category order in the report.
var reportCategories = []string{
	correct.CategoryTechTerm,
	correct.CategoryRepetition,
	correct.CategoryEndingFix,
	correct.CategoryPunctuation,
	correct.CategoryNatural,
	correct.CategoryFiller,
	correct.CategoryContext,
}

// Report renders a human-readable summary of the analysis: overall
// statistics, the quality distribution, per-category totals, and up to three
// exemplar segments of quality 0.7 or higher.
func Report(a *Analysis) string {
	var b strings.Builder

	b.WriteString("Correction Quality Report\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	total := len(a.Pairs)
	fmt.Fprintf(&b, "Segments analyzed:   %d\n", total)
	if a.TruncatedPairs > 0 {
		fmt.Fprintf(&b, "Unpaired segments:   %d (segment counts differ; excluded from analysis)\n", a.TruncatedPairs)
	}
	if total == 0 {
		b.WriteString("\nNo pairable segments found.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Average quality:     %.3f\n", a.AverageQuality)
	fmt.Fprintf(&b, "Character delta:     %d\n", a.Overall.CharacterDelta)
	fmt.Fprintf(&b, "Sentence delta:      %+d\n", a.Overall.SentenceCountDelta)
	fmt.Fprintf(&b, "Punctuation density: %+.4f\n", a.Overall.PunctuationDensityDelta)

	b.WriteString("\nQuality distribution:\n")
	for _, bucket := range []string{"excellent", "good", "fair", "poor"} {
		count := a.QualityDistribution[bucket]
		fmt.Fprintf(&b, "  %-10s %3d (%.1f%%)\n", bucket, count, 100*float64(count)/float64(total))
	}

	b.WriteString("\nCorrections by category:\n")
	for _, cat := range reportCategories {
		if count := a.CategoryTotals[cat]; count > 0 {
			fmt.Fprintf(&b, "  %-20s %d\n", cat, count)
		}
	}

	exemplars := exemplarPairs(a.Pairs)
	if len(exemplars) > 0 {
		b.WriteString("\nNotable corrections:\n")
		for _, p := range exemplars {
			fmt.Fprintf(&b, "\n  Segment %d [%s - %s] quality %.3f, similarity %.3f\n",
				p.SegmentID, p.StartTime, p.EndTime, p.Quality, p.Similarity)
			if len(p.SignificantChanges) > 0 {
				fmt.Fprintf(&b, "    changes:   %s\n", strings.Join(p.SignificantChanges, "; "))
			}
			fmt.Fprintf(&b, "    original:  %s\n", p.OriginalPreview)
			fmt.Fprintf(&b, "    corrected: %s\n", p.CorrectedPreview)
		}
	}

	return b.String()
}

// exemplarPairs returns up to three high-quality pairs in source order.
func exemplarPairs(pairs []PairDiff) []PairDiff {
	var out []PairDiff
	for _, p := range pairs {
		if p.Quality >= exemplarQuality {
			out = append(out, p)
			if len(out) == 3 {
				break
			}
		}
	}
	return out
}
