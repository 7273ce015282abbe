// Package run orchestrates transcript correction: segmentation, the rule
// pipeline, quality scoring, LLM escalation, cost control, and batch
// processing of files and directories.
package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/kousei/internal/config"
	"github.com/MrWong99/kousei/internal/correct"
	"github.com/MrWong99/kousei/internal/escalate"
	"github.com/MrWong99/kousei/internal/llmcorrect"
	"github.com/MrWong99/kousei/internal/observe"
	"github.com/MrWong99/kousei/internal/score"
	"github.com/MrWong99/kousei/internal/segment"
	"github.com/MrWong99/kousei/internal/statstore"
)

// defaultConcurrency bounds how many transcript files a batch run processes
// at once.
const defaultConcurrency = 4

// highQualityThreshold is the cut above which a segment counts as high
// quality in run statistics.
const highQualityThreshold = 0.7

// ScoreFunc rates a correction given the original text, the corrected text,
// and the correction log.
type ScoreFunc func(original, corrected string, corrections []string) float64

// ScorerFor returns the ScoreFunc selected by the config value.
func ScorerFor(s config.Scorer) ScoreFunc {
	if s == config.ScorerSimple {
		return func(_, _ string, corrections []string) float64 {
			return score.Simple(len(corrections))
		}
	}
	return score.Weighted
}

// Stats summarises one processing run. The JSON field names form the
// on-disk statistics contract.
type Stats struct {
	TotalSegments       int     `json:"total_segments"`
	LLMUsage            int     `json:"llm_usage"`
	AverageQuality      float64 `json:"average_quality"`
	HighQualityCount    int     `json:"high_quality_count"`
	TotalCostJPY        float64 `json:"total_cost_jpy"`
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	ProcessingTimestamp string  `json:"processing_timestamp"`
}

// Option configures a Runner.
type Option func(*Runner)

// WithEscalation enables the LLM escalation path: gate decides which
// segments go to the LLM, llm performs the call.
func WithEscalation(gate *escalate.Gate, llm *llmcorrect.Corrector) Option {
	return func(r *Runner) {
		r.gate = gate
		r.llm = llm
	}
}

// WithUseThreshold sets escalation sensitivity: a segment whose rule quality
// falls below t is escalated even when the gate stays quiet. Zero (the
// default) escalates on gate matches only.
func WithUseThreshold(t float64) Option {
	return func(r *Runner) { r.useThreshold = t }
}

// WithCost applies spending bounds and the JPY display rate.
func WithCost(c config.CostConfig) Option {
	return func(r *Runner) { r.cost = c }
}

// WithScorer overrides the default weighted scorer.
func WithScorer(f ScoreFunc) Option {
	return func(r *Runner) { r.scorer = f }
}

// WithMetrics overrides the default metrics instance. Tests use this to
// avoid the global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithConcurrency bounds parallel file processing in ProcessDir.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithStatsStore persists run statistics after directory runs.
func WithStatsStore(s statstore.Store) Option {
	return func(r *Runner) { r.stats = s }
}

// WithSaveStatistics controls whether directory runs write the
// batch_statistics.json summary. Enabled by default.
func WithSaveStatistics(enabled bool) Option {
	return func(r *Runner) { r.saveStats = enabled }
}

// Runner processes transcripts. Safe for concurrent use: all configuration
// is read-only after New, and mutable session state is synchronised.
type Runner struct {
	corrector    *correct.Corrector
	scorer       ScoreFunc
	gate         *escalate.Gate
	llm          *llmcorrect.Corrector
	useThreshold float64
	cost         config.CostConfig
	metrics      *observe.Metrics
	concurrency  int
	stats        statstore.Store
	saveStats    bool

	alertOnce   sync.Once
	ceilingOnce sync.Once
}

// New builds a Runner around the given rule corrector. Without
// [WithEscalation] every segment stays rule-only.
func New(corrector *correct.Corrector, opts ...Option) *Runner {
	r := &Runner{
		corrector:   corrector,
		scorer:      score.Weighted,
		cost:        config.CostConfig{DisplayRateJPY: 150},
		concurrency: defaultConcurrency,
		saveStats:   true,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// ProcessText corrects every segment of a raw transcript. Segments are
// processed in order; cancellation is honoured between segments, so a
// cancelled run returns the context error without leaving a half-written
// segment behind.
func (r *Runner) ProcessText(ctx context.Context, text string) ([]segment.Segment, *Stats, error) {
	segments := segment.Parse(text)

	for i := range segments {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if err := r.processSegment(ctx, &segments[i]); err != nil {
			return nil, nil, err
		}
	}

	return segments, r.statsFor(segments), nil
}

// processSegment runs one segment through the rule pipeline and, when the
// gate fires and spending allows, through LLM escalation.
func (r *Runner) processSegment(ctx context.Context, seg *segment.Segment) error {
	start := time.Now()

	corrected, log := r.corrector.Correct(seg.Original)
	quality := r.scorer(seg.Original, corrected, log)
	path := "rule"

	if r.llm != nil && r.needsEscalation(corrected, quality) && r.escalationAllowed() {
		res, err := r.llm.Correct(ctx, corrected, quality)
		switch {
		case err != nil:
			r.metrics.RecordLLMRequest(ctx, "error")
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			// Transport failure: the segment keeps its rule-corrected text.
			observe.Logger(ctx).Warn("llm escalation failed; keeping rule correction",
				"segment_id", seg.ID, "err", err)
		case res.Rewritten:
			r.metrics.RecordLLMRequest(ctx, "ok")
			r.metrics.RecordLLMTokens(ctx, res.InputTokens, res.OutputTokens)
			corrected = res.Text
			log = append(log, correct.CategoryContext)
			quality = res.Quality
			seg.LLMUsed = true
			path = "llm"
			r.checkSpending(ctx)
		default:
			r.metrics.RecordLLMRequest(ctx, "noop")
			r.metrics.RecordLLMTokens(ctx, res.InputTokens, res.OutputTokens)
			r.checkSpending(ctx)
		}
	}

	seg.Corrected = corrected
	seg.Corrections = log
	seg.Quality = quality

	r.metrics.RecordSegment(ctx, path, score.Bucket(quality), time.Since(start).Seconds(), quality)
	return nil
}

// needsEscalation reports whether a segment should go to the LLM: the gate
// found a residual defect, or the rule quality fell below the use threshold.
func (r *Runner) needsEscalation(corrected string, quality float64) bool {
	if r.gate != nil && r.gate.ShouldEscalate(corrected) {
		return true
	}
	return r.useThreshold > 0 && quality < r.useThreshold
}

// escalationAllowed reports whether the session cost ceiling still permits
// an LLM call.
func (r *Runner) escalationAllowed() bool {
	if r.llm == nil || r.cost.MaxPerSessionUSD <= 0 {
		return r.llm != nil
	}
	_, _, costUSD := r.llm.Accounting().Totals()
	return costUSD < r.cost.MaxPerSessionUSD
}

// checkSpending emits the one-time alert and ceiling warnings once the
// accumulated cost crosses the configured bounds.
func (r *Runner) checkSpending(ctx context.Context) {
	_, _, costUSD := r.llm.Accounting().Totals()

	if r.cost.AlertThresholdUSD > 0 && costUSD >= r.cost.AlertThresholdUSD {
		r.alertOnce.Do(func() {
			observe.Logger(ctx).Warn("llm cost alert threshold crossed",
				"cost_usd", costUSD,
				"threshold_usd", r.cost.AlertThresholdUSD,
			)
		})
	}
	if r.cost.MaxPerSessionUSD > 0 && costUSD >= r.cost.MaxPerSessionUSD {
		r.ceilingOnce.Do(func() {
			observe.Logger(ctx).Warn("llm cost ceiling reached; disabling escalation for this session",
				"cost_usd", costUSD,
				"max_usd", r.cost.MaxPerSessionUSD,
			)
		})
	}
}

// statsFor summarises processed segments together with the session-wide
// token accounting.
func (r *Runner) statsFor(segments []segment.Segment) *Stats {
	s := &Stats{
		TotalSegments:       len(segments),
		ProcessingTimestamp: time.Now().Format("2006-01-02 15:04:05"),
	}

	var qualitySum float64
	for _, seg := range segments {
		qualitySum += seg.Quality
		if seg.LLMUsed {
			s.LLMUsage++
		}
		if seg.Quality > highQualityThreshold {
			s.HighQualityCount++
		}
	}
	if len(segments) > 0 {
		s.AverageQuality = qualitySum / float64(len(segments))
	}

	if r.llm != nil {
		in, out, costUSD := r.llm.Accounting().Totals()
		s.InputTokens = in
		s.OutputTokens = out
		s.TotalCostJPY = costUSD * r.cost.DisplayRateJPY
	}

	return s
}

// ProcessFile corrects one transcript file and writes the result to outDir
// as <name>_corrected.txt.
func (r *Runner) ProcessFile(ctx context.Context, path, outDir string) (*Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("run: read %q: %w", path, err)
	}

	segments, stats, err := r.ProcessText(ctx, string(data))
	if err != nil {
		return nil, err
	}

	name := filepath.Base(path)
	outName := strings.TrimSuffix(name, ".txt") + "_corrected.txt"
	outPath := filepath.Join(outDir, outName)
	if err := os.WriteFile(outPath, []byte(segment.Render(segments)), 0o644); err != nil {
		return nil, fmt.Errorf("run: write %q: %w", outPath, err)
	}

	slog.Info("transcript processed",
		"file", name,
		"segments", stats.TotalSegments,
		"avg_quality", stats.AverageQuality,
		"llm_usage", stats.LLMUsage,
	)
	return stats, nil
}

// ProcessDir corrects every *.txt file in inDir, writing results and, unless
// disabled via [WithSaveStatistics], a batch_statistics.json summary to
// outDir. When outDir is empty it defaults
// to inDir + "_corrected". Files are processed concurrently; a file that
// fails is logged and skipped, it never aborts the batch. Cancellation does
// abort the batch.
func (r *Runner) ProcessDir(ctx context.Context, inDir, outDir string) (*Stats, error) {
	if outDir == "" {
		outDir = strings.TrimSuffix(inDir, string(filepath.Separator)) + "_corrected"
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("run: create output dir %q: %w", outDir, err)
	}

	files, err := filepath.Glob(filepath.Join(inDir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("run: glob %q: %w", inDir, err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("run: no *.txt files in %q", inDir)
	}

	var (
		mu  sync.Mutex
		all []segment.Segment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, path := range files {
		path := path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r.metrics.ActiveJobs.Add(gctx, 1)
			defer r.metrics.ActiveJobs.Add(gctx, -1)

			data, err := os.ReadFile(path)
			if err != nil {
				slog.Error("skipping unreadable transcript", "file", path, "err", err)
				return nil
			}
			segments, _, err := r.ProcessText(gctx, string(data))
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				slog.Error("skipping failed transcript", "file", path, "err", err)
				return nil
			}

			name := filepath.Base(path)
			outPath := filepath.Join(outDir, strings.TrimSuffix(name, ".txt")+"_corrected.txt")
			if err := os.WriteFile(outPath, []byte(segment.Render(segments)), 0o644); err != nil {
				slog.Error("skipping unwritable output", "file", outPath, "err", err)
				return nil
			}

			mu.Lock()
			all = append(all, segments...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := r.statsFor(all)
	if r.saveStats {
		if err := WriteStats(stats, filepath.Join(outDir, "batch_statistics.json")); err != nil {
			return nil, err
		}
	}

	if r.stats != nil {
		rec := r.toRecord(inDir, stats)
		if err := r.stats.Insert(ctx, rec); err != nil {
			slog.Error("failed to persist run statistics", "err", err)
		}
	}

	return stats, nil
}

// WriteStats serialises stats as indented JSON at path.
func WriteStats(stats *Stats, path string) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("run: marshal stats: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("run: write stats %q: %w", path, err)
	}
	return nil
}

// toRecord converts run stats into a persistable store record.
func (r *Runner) toRecord(source string, s *Stats) *statstore.Run {
	var costUSD float64
	if r.llm != nil {
		_, _, costUSD = r.llm.Accounting().Totals()
	}
	return &statstore.Run{
		SourceFile:       source,
		TotalSegments:    s.TotalSegments,
		LLMUsage:         s.LLMUsage,
		AverageQuality:   s.AverageQuality,
		HighQualityCount: s.HighQualityCount,
		InputTokens:      s.InputTokens,
		OutputTokens:     s.OutputTokens,
		CostUSD:          costUSD,
		CostJPY:          s.TotalCostJPY,
	}
}
