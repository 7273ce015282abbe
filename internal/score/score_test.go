package score_test

import (
	"math"
	"testing"

	"github.com/MrWong99/kousei/internal/correct"
	"github.com/MrWong99/kousei/internal/score"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSimple(t *testing.T) {
	t.Parallel()

	tests := []struct {
		corrections int
		want        float64
	}{
		{0, 0.3},
		{1, 0.5},
		{2, 0.7},
		{3, 0.9},
		{4, 1.0},
		{10, 1.0},
	}
	for _, tt := range tests {
		if got := score.Simple(tt.corrections); !almostEqual(got, tt.want) {
			t.Errorf("Simple(%d)=%v, want %v", tt.corrections, got, tt.want)
		}
	}
}

func TestWeighted_CategoryWeights(t *testing.T) {
	t.Parallel()

	// Same-length pair keeps the ratio bonus constant (+0.1), so the score
	// moves only with the category weights.
	orig := "あいうえおかきくけこ"
	corr := "かきくけこあいうえお"

	baseline := score.Weighted(orig, corr, nil)
	if !almostEqual(baseline, 0.6) {
		t.Fatalf("Weighted with empty log=%v, want 0.6", baseline)
	}

	tests := []struct {
		category string
		want     float64
	}{
		{correct.CategoryTechTerm, 0.8},
		{correct.CategoryRepetition, 0.75},
		{correct.CategoryEndingFix, 0.75},
		{correct.CategoryPunctuation, 0.7},
		{correct.CategoryNatural, 0.7},
		{correct.CategoryFiller, 0.65},
		{correct.CategoryContext, 0.62},
		{"unknown category", 0.62},
	}
	for _, tt := range tests {
		got := score.Weighted(orig, corr, []string{tt.category})
		if !almostEqual(got, tt.want) {
			t.Errorf("Weighted with %q=%v, want %v", tt.category, got, tt.want)
		}
	}
}

func TestWeighted_LengthRatio(t *testing.T) {
	t.Parallel()

	orig := "あいうえおかきくけこ" // 10 runes

	// Within [0.7, 1.3]: bonus.
	if got := score.Weighted(orig, "あいうえおかき", nil); !almostEqual(got, 0.6) {
		t.Errorf("ratio 0.7: got %v, want 0.6", got)
	}
	// Between 0.5 and 0.7: no adjustment.
	if got := score.Weighted(orig, "あいうえおか", nil); !almostEqual(got, 0.5) {
		t.Errorf("ratio 0.6: got %v, want 0.5", got)
	}
	// Below 0.5: penalty.
	if got := score.Weighted(orig, "あいうえ", nil); !almostEqual(got, 0.3) {
		t.Errorf("ratio 0.4: got %v, want 0.3", got)
	}
	// Empty original: no ratio adjustment at all.
	if got := score.Weighted("", "あい", nil); !almostEqual(got, 0.5) {
		t.Errorf("empty original: got %v, want 0.5", got)
	}
}

func TestWeighted_KnownRewriteBonus(t *testing.T) {
	t.Parallel()

	orig := "本日はDay2になるDay2の講座です"
	corr := "本日はDay2の講座です"
	// The ratio (12/19) falls in the no-adjustment band, so: base 0.5 +
	// repetition 0.15 + rewrite 0.15 = 0.8.
	got := score.Weighted(orig, corr, []string{correct.CategoryRepetition})
	if !almostEqual(got, 0.8) {
		t.Errorf("Weighted=%v, want 0.8", got)
	}
}

func TestWeighted_DeteriorationPenalty(t *testing.T) {
	t.Parallel()

	// Truncated politeness phrase.
	orig := "ありがとうございます皆さん"
	corr := "りがとうございます皆さん"
	got := score.Weighted(orig, corr, nil)
	// base 0.5 + ratio 0.1 - deterioration 0.3 = 0.3.
	if !almostEqual(got, 0.3) {
		t.Errorf("truncated phrase: Weighted=%v, want 0.3", got)
	}

	// Lost keyword.
	orig = "本日の講座について"
	corr = "本日のについて"
	got = score.Weighted(orig, corr, nil)
	if !almostEqual(got, 0.3) {
		t.Errorf("lost keyword: Weighted=%v, want 0.3", got)
	}
}

func TestWeighted_Clamped(t *testing.T) {
	t.Parallel()

	log := []string{
		correct.CategoryTechTerm,
		correct.CategoryTechTerm,
		correct.CategoryRepetition,
		correct.CategoryEndingFix,
		correct.CategoryEndingFix,
	}
	orig := "ジーピーティーのベルトです"
	if got := score.Weighted(orig, "GPTのベルトンです", log); got > 1 {
		t.Errorf("Weighted=%v, want <= 1", got)
	}
	if got := score.Weighted("講師あいうえおかきくけこ", "x", nil); got < 0 {
		t.Errorf("Weighted=%v, want >= 0", got)
	}
}

func TestDeteriorated(t *testing.T) {
	t.Parallel()

	if score.Deteriorated("ありがとうございます", "ありがとうございます。") {
		t.Error("intact phrase flagged as deteriorated")
	}
	if !score.Deteriorated("ありがとうございます", "りがとうございます") {
		t.Error("truncated phrase not flagged")
	}
	if !score.Deteriorated("皆さんこんにちは", "こんにちは") {
		t.Error("lost keyword not flagged")
	}
}

func TestBucket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		q    float64
		want string
	}{
		{0.95, "excellent"},
		{0.8, "excellent"},
		{0.79, "good"},
		{0.6, "good"},
		{0.59, "fair"},
		{0.4, "fair"},
		{0.39, "poor"},
		{0, "poor"},
	}
	for _, tt := range tests {
		if got := score.Bucket(tt.q); got != tt.want {
			t.Errorf("Bucket(%v)=%q, want %q", tt.q, got, tt.want)
		}
	}
}
