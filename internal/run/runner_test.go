package run

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/kousei/internal/config"
	"github.com/MrWong99/kousei/internal/correct"
	"github.com/MrWong99/kousei/internal/escalate"
	"github.com/MrWong99/kousei/internal/llmcorrect"
	"github.com/MrWong99/kousei/internal/observe"
	"github.com/MrWong99/kousei/internal/statstore"
	"github.com/MrWong99/kousei/pkg/provider/llm"
	"github.com/MrWong99/kousei/pkg/provider/llm/mock"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func testCorrector(t *testing.T) *correct.Corrector {
	t.Helper()
	c, err := correct.New()
	if err != nil {
		t.Fatalf("correct.New: %v", err)
	}
	return c
}

// constScorer pins rule quality so tests do not re-derive scoring math.
func constScorer(q float64) ScoreFunc {
	return func(_, _ string, _ []string) float64 { return q }
}

const twoSegmentText = "[0:00:01 - 0:00:05]\n申しす\n\n[0:00:05 - 0:00:10]\nこんにちは\n"

func TestProcessText_RuleOnly(t *testing.T) {
	t.Parallel()

	r := New(testCorrector(t),
		WithMetrics(testMetrics(t)),
		WithScorer(constScorer(0.6)),
	)

	segments, stats, err := r.ProcessText(context.Background(), twoSegmentText)
	if err != nil {
		t.Fatalf("ProcessText: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(segments))
	}

	if segments[0].Corrected != "申します。" {
		t.Errorf("segment 1 corrected=%q, want %q", segments[0].Corrected, "申します。")
	}
	want := []string{correct.CategoryEndingFix, correct.CategoryPunctuation}
	if len(segments[0].Corrections) != len(want) {
		t.Fatalf("segment 1 corrections=%v, want %v", segments[0].Corrections, want)
	}
	for i := range want {
		if segments[0].Corrections[i] != want[i] {
			t.Errorf("segment 1 corrections=%v, want %v", segments[0].Corrections, want)
			break
		}
	}
	if segments[0].Quality != 0.6 || segments[1].Quality != 0.6 {
		t.Errorf("qualities=%v/%v, want 0.6/0.6", segments[0].Quality, segments[1].Quality)
	}
	if segments[0].LLMUsed || segments[1].LLMUsed {
		t.Error("rule-only run marked segments as LLM-corrected")
	}

	if stats.TotalSegments != 2 || stats.LLMUsage != 0 || stats.HighQualityCount != 0 {
		t.Errorf("stats=%+v", stats)
	}
	if math.Abs(stats.AverageQuality-0.6) > 1e-9 {
		t.Errorf("average_quality=%v, want 0.6", stats.AverageQuality)
	}
	if stats.InputTokens != 0 || stats.OutputTokens != 0 || stats.TotalCostJPY != 0 {
		t.Errorf("token/cost stats not zero without an LLM: %+v", stats)
	}
	if stats.ProcessingTimestamp == "" {
		t.Error("processing timestamp is empty")
	}
}

func TestProcessText_Escalation(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "ウェルトンさんです",
			Usage:   llm.Usage{PromptTokens: 100, CompletionTokens: 50},
		},
	}
	r := New(testCorrector(t),
		WithMetrics(testMetrics(t)),
		WithScorer(constScorer(0.6)),
		WithEscalation(escalate.NewGate(), llmcorrect.New(provider)),
		WithCost(config.CostConfig{DisplayRateJPY: 150}),
	)

	segments, stats, err := r.ProcessText(context.Background(), "[0:00:01 - 0:00:05]\nベルトンさんです\n")
	if err != nil {
		t.Fatalf("ProcessText: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(segments))
	}

	seg := segments[0]
	if !seg.LLMUsed {
		t.Error("segment not marked as LLM-corrected")
	}
	if seg.Corrected != "ウェルトンさんです" {
		t.Errorf("corrected=%q, want the LLM rewrite", seg.Corrected)
	}
	if len(seg.Corrections) == 0 || seg.Corrections[len(seg.Corrections)-1] != correct.CategoryContext {
		t.Errorf("corrections=%v, want trailing %q", seg.Corrections, correct.CategoryContext)
	}
	if math.Abs(seg.Quality-0.9) > 1e-9 {
		t.Errorf("quality=%v, want 0.9 (0.6 boosted)", seg.Quality)
	}

	if stats.LLMUsage != 1 || stats.InputTokens != 100 || stats.OutputTokens != 50 {
		t.Errorf("stats=%+v", stats)
	}
	wantJPY := (100*0.000035/1000 + 50*0.00014/1000) * 150
	if math.Abs(stats.TotalCostJPY-wantJPY) > 1e-12 {
		t.Errorf("total_cost_jpy=%v, want %v", stats.TotalCostJPY, wantJPY)
	}
	if len(provider.CompleteCalls) != 1 {
		t.Errorf("provider called %d times, want 1", len(provider.CompleteCalls))
	}
}

func TestProcessText_UseThresholdEscalatesLowQuality(t *testing.T) {
	t.Parallel()

	// こんにちは trips no residual-defect pattern; only the quality
	// threshold can send it to the LLM.
	text := "[0:00:01 - 0:00:05]\nこんにちは\n"
	newRunner := func(provider *mock.Provider, opts ...Option) *Runner {
		base := []Option{
			WithMetrics(testMetrics(t)),
			WithScorer(constScorer(0.3)),
			WithEscalation(escalate.NewGate(), llmcorrect.New(provider)),
		}
		return New(testCorrector(t), append(base, opts...)...)
	}

	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "今日は"},
	}
	segments, _, err := newRunner(provider, WithUseThreshold(0.5)).ProcessText(context.Background(), text)
	if err != nil {
		t.Fatalf("ProcessText: %v", err)
	}
	if len(provider.CompleteCalls) != 1 {
		t.Fatalf("provider called %d times, want 1 (quality 0.3 is below threshold 0.5)", len(provider.CompleteCalls))
	}
	if !segments[0].LLMUsed {
		t.Error("low-quality segment not marked as LLM-corrected")
	}

	// Without a threshold the same segment stays rule-only.
	provider.Reset()
	segments, _, err = newRunner(provider).ProcessText(context.Background(), text)
	if err != nil {
		t.Fatalf("ProcessText: %v", err)
	}
	if len(provider.CompleteCalls) != 0 {
		t.Errorf("provider called %d times, want 0 without a threshold", len(provider.CompleteCalls))
	}
	if segments[0].LLMUsed {
		t.Error("segment escalated although neither gate nor threshold applied")
	}
}

func TestProcessText_UseThresholdSkipsGoodQuality(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "今日は"},
	}
	r := New(testCorrector(t),
		WithMetrics(testMetrics(t)),
		WithScorer(constScorer(0.8)),
		WithEscalation(escalate.NewGate(), llmcorrect.New(provider)),
		WithUseThreshold(0.5),
	)

	if _, _, err := r.ProcessText(context.Background(), "[0:00:01 - 0:00:05]\nこんにちは\n"); err != nil {
		t.Fatalf("ProcessText: %v", err)
	}
	if len(provider.CompleteCalls) != 0 {
		t.Errorf("provider called %d times, want 0 (quality 0.8 is above threshold 0.5)", len(provider.CompleteCalls))
	}
}

func TestProcessText_EscalationFailureKeepsRuleText(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{CompleteErr: errors.New("connection reset")}
	r := New(testCorrector(t),
		WithMetrics(testMetrics(t)),
		WithScorer(constScorer(0.6)),
		WithEscalation(escalate.NewGate(), llmcorrect.New(provider)),
	)

	segments, _, err := r.ProcessText(context.Background(), "[0:00:01 - 0:00:05]\nベルトンさんです\n")
	if err != nil {
		t.Fatalf("transport failure aborted the run: %v", err)
	}
	if segments[0].LLMUsed {
		t.Error("failed escalation marked the segment as LLM-corrected")
	}
	if segments[0].Corrected != "ベルトンさんです" {
		t.Errorf("corrected=%q, want the rule-corrected text", segments[0].Corrected)
	}
}

func TestProcessText_Cancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(testCorrector(t), WithMetrics(testMetrics(t)))
	if _, _, err := r.ProcessText(ctx, twoSegmentText); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}

func TestProcessText_CostCeilingStopsEscalation(t *testing.T) {
	t.Parallel()

	// 10M prompt tokens cost 0.35 USD, well past the 0.1 USD ceiling after
	// the first call.
	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "ウェルトンさんです",
			Usage:   llm.Usage{PromptTokens: 10_000_000, CompletionTokens: 0},
		},
	}
	r := New(testCorrector(t),
		WithMetrics(testMetrics(t)),
		WithScorer(constScorer(0.6)),
		WithEscalation(escalate.NewGate(), llmcorrect.New(provider)),
		WithCost(config.CostConfig{DisplayRateJPY: 150, MaxPerSessionUSD: 0.1, AlertThresholdUSD: 0.05}),
	)

	text := "[0:00:01 - 0:00:05]\nベルトンさんです\n\n[0:00:05 - 0:00:10]\nベルトンさんです\n"
	segments, _, err := r.ProcessText(context.Background(), text)
	if err != nil {
		t.Fatalf("ProcessText: %v", err)
	}
	if len(provider.CompleteCalls) != 1 {
		t.Fatalf("provider called %d times, want 1 (ceiling should stop the second call)", len(provider.CompleteCalls))
	}
	if !segments[0].LLMUsed {
		t.Error("first segment should have been escalated")
	}
	if segments[1].LLMUsed {
		t.Error("second segment escalated past the cost ceiling")
	}
}

func TestProcessFile(t *testing.T) {
	t.Parallel()

	inDir := t.TempDir()
	outDir := t.TempDir()
	src := filepath.Join(inDir, "lecture.txt")
	if err := os.WriteFile(src, []byte(twoSegmentText), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(testCorrector(t), WithMetrics(testMetrics(t)), WithScorer(constScorer(0.8)))
	stats, err := r.ProcessFile(context.Background(), src, outDir)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if stats.TotalSegments != 2 || stats.HighQualityCount != 2 {
		t.Errorf("stats=%+v", stats)
	}

	out, err := os.ReadFile(filepath.Join(outDir, "lecture_corrected.txt"))
	if err != nil {
		t.Fatalf("output file: %v", err)
	}
	got := string(out)
	if !strings.Contains(got, "[0:00:01 - 0:00:05]\n申します。\n") {
		t.Errorf("output missing corrected first segment:\n%s", got)
	}
	if !strings.Contains(got, "[0:00:05 - 0:00:10]\nこんにちは\n") {
		t.Errorf("output missing second segment:\n%s", got)
	}
}

// recordStore captures inserted runs for assertions.
type recordStore struct {
	mu   sync.Mutex
	runs []statstore.Run
	err  error
}

func (s *recordStore) Insert(_ context.Context, run *statstore.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	run.ID = int64(len(s.runs) + 1)
	s.runs = append(s.runs, *run)
	return nil
}

func (s *recordStore) List(context.Context, int) ([]statstore.Run, error) { return nil, nil }

func TestProcessDir(t *testing.T) {
	t.Parallel()

	inDir := filepath.Join(t.TempDir(), "lectures")
	if err := os.MkdirAll(inDir, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"day1.txt": "[0:00:01 - 0:00:05]\n申しす\n",
		"day2.txt": twoSegmentText,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(inDir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Non-transcript files are ignored.
	if err := os.WriteFile(filepath.Join(inDir, "notes.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := &recordStore{}
	r := New(testCorrector(t),
		WithMetrics(testMetrics(t)),
		WithScorer(constScorer(0.8)),
		WithStatsStore(store),
		WithConcurrency(2),
	)

	stats, err := r.ProcessDir(context.Background(), inDir, "")
	if err != nil {
		t.Fatalf("ProcessDir: %v", err)
	}
	if stats.TotalSegments != 3 {
		t.Errorf("total_segments=%d, want 3", stats.TotalSegments)
	}

	outDir := inDir + "_corrected"
	for _, name := range []string{"day1_corrected.txt", "day2_corrected.txt"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing output %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, "notes_corrected.txt")); err == nil {
		t.Error("non-transcript file was processed")
	}

	data, err := os.ReadFile(filepath.Join(outDir, "batch_statistics.json"))
	if err != nil {
		t.Fatalf("batch statistics: %v", err)
	}
	var onDisk map[string]any
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("batch statistics JSON: %v", err)
	}
	for _, key := range []string{
		"total_segments", "llm_usage", "average_quality", "high_quality_count",
		"total_cost_jpy", "input_tokens", "output_tokens", "processing_timestamp",
	} {
		if _, ok := onDisk[key]; !ok {
			t.Errorf("batch statistics missing key %q", key)
		}
	}
	if got := onDisk["total_segments"].(float64); got != 3 {
		t.Errorf("on-disk total_segments=%v, want 3", got)
	}

	if len(store.runs) != 1 {
		t.Fatalf("store recorded %d runs, want 1", len(store.runs))
	}
	run := store.runs[0]
	if run.SourceFile != inDir || run.TotalSegments != 3 {
		t.Errorf("persisted run=%+v", run)
	}
}

func TestProcessDir_EmptyDir(t *testing.T) {
	t.Parallel()

	r := New(testCorrector(t), WithMetrics(testMetrics(t)))
	if _, err := r.ProcessDir(context.Background(), t.TempDir(), ""); err == nil {
		t.Fatal("ProcessDir accepted a directory without transcripts")
	}
}

func TestProcessDir_SaveStatisticsDisabled(t *testing.T) {
	t.Parallel()

	inDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(inDir, "a.txt"), []byte(twoSegmentText), 0o644); err != nil {
		t.Fatal(err)
	}

	store := &recordStore{}
	r := New(testCorrector(t),
		WithMetrics(testMetrics(t)),
		WithScorer(constScorer(0.5)),
		WithStatsStore(store),
		WithSaveStatistics(false),
	)

	outDir := filepath.Join(t.TempDir(), "out")
	stats, err := r.ProcessDir(context.Background(), inDir, outDir)
	if err != nil {
		t.Fatalf("ProcessDir: %v", err)
	}
	if stats.TotalSegments != 2 {
		t.Errorf("total_segments=%d, want 2", stats.TotalSegments)
	}

	if _, err := os.Stat(filepath.Join(outDir, "batch_statistics.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("batch_statistics.json written although disabled (stat err=%v)", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "a_corrected.txt")); err != nil {
		t.Errorf("corrected output missing: %v", err)
	}
	// The JSON toggle does not affect store persistence.
	if len(store.runs) != 1 {
		t.Errorf("store recorded %d runs, want 1", len(store.runs))
	}
}

func TestProcessDir_StoreFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	inDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(inDir, "a.txt"), []byte(twoSegmentText), 0o644); err != nil {
		t.Fatal(err)
	}

	store := &recordStore{err: errors.New("db down")}
	r := New(testCorrector(t),
		WithMetrics(testMetrics(t)),
		WithScorer(constScorer(0.5)),
		WithStatsStore(store),
	)
	stats, err := r.ProcessDir(context.Background(), inDir, filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("ProcessDir failed on a statistics persistence error: %v", err)
	}
	if stats.TotalSegments != 2 {
		t.Errorf("total_segments=%d, want 2", stats.TotalSegments)
	}
}

func TestScorerFor(t *testing.T) {
	t.Parallel()

	simple := ScorerFor(config.ScorerSimple)
	if got := simple("a", "b", []string{"x", "y"}); math.Abs(got-0.7) > 1e-9 {
		t.Errorf("simple scorer=%v, want 0.7", got)
	}

	weighted := ScorerFor(config.ScorerWeighted)
	if got := weighted("同じ長さ", "同じ長さ", nil); math.Abs(got-0.6) > 1e-9 {
		t.Errorf("weighted scorer=%v, want 0.6 (base plus length bonus)", got)
	}
}
